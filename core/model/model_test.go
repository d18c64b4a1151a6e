package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

func TestToFloat(t *testing.T) {
	tests := []struct {
		name    string
		in      interface{}
		want    float64
		wantErr bool
	}{
		{"float64", 0.5, 0.5, false},
		{"int", 3, 3, false},
		{"int64", int64(7), 7, false},
		{"string", "1e-3", 1e-3, false},
		{"bool", true, 0, true},
		{"bad string", "abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToFloat("C", tt.in)
			if tt.wantErr {
				var vErr *errors.ValidationError
				assert.True(t, errors.As(err, &vErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToInt(t *testing.T) {
	got, err := ToInt("max_depth", 4.0)
	require.NoError(t, err)
	assert.Equal(t, 4, got)

	_, err = ToInt("max_depth", 4.5)
	assert.Error(t, err)

	got, err = ToInt("k", "12")
	require.NoError(t, err)
	assert.Equal(t, 12, got)

	got64, err := ToInt64("random_state", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got64)
}

func TestToStringAndBool(t *testing.T) {
	s, err := ToString("criterion", "gini")
	require.NoError(t, err)
	assert.Equal(t, "gini", s)

	_, err = ToString("criterion", 1)
	assert.Error(t, err)

	b, err := ToBool("whiten", "true")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = ToBool("whiten", 1.0)
	assert.Error(t, err)
}

func TestOneOf(t *testing.T) {
	assert.NoError(t, OneOf("weights", "distance", "uniform", "distance"))
	err := OneOf("weights", "cosine", "uniform", "distance")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"uniform", "distance"`)
}

func TestCheckXY(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})

	n, p, err := CheckXY("Fit", X, mat.NewDense(3, 1, []float64{0, 1, 0}))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, p)

	_, _, err = CheckXY("Fit", X, mat.NewDense(2, 1, []float64{0, 1}))
	var dimErr *errors.DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 0, dimErr.Axis)

	_, _, err = CheckXY("Fit", X, mat.NewDense(3, 2, nil))
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 1, dimErr.Axis)

	_, _, err = CheckXY("Fit", X, nil)
	assert.Error(t, err)
}

func TestClassHelpers(t *testing.T) {
	y := mat.NewDense(5, 1, []float64{2, 0, 2, 1, 0})
	classes := UniqueClasses(Labels(y))
	assert.Equal(t, []int{0, 1, 2}, classes)
	assert.Equal(t, map[int]int{0: 0, 1: 1, 2: 2}, ClassIndex(classes))

	proba := mat.NewDense(2, 3, []float64{
		0.2, 0.5, 0.3,
		0.4, 0.4, 0.2, // tie goes to the lower index
	})
	pred := PredictFromProba(proba, []int{10, 20, 30})
	assert.Equal(t, 20.0, pred.At(0, 0))
	assert.Equal(t, 10.0, pred.At(1, 0))

	acc := MeanAccuracy(mat.NewDense(4, 1, []float64{0, 1, 1, 2}), mat.NewDense(4, 1, []float64{0, 1, 2, 2}))
	assert.Equal(t, 0.75, acc)
}

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	err := s.RequireFitted("PCA", "Transform")
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))

	s.SetFitted(4, 150)
	require.NoError(t, s.RequireFitted("PCA", "Transform"))
	nFeatures, nSamples := s.GetDimensions()
	assert.Equal(t, 4, nFeatures)
	assert.Equal(t, 150, nSamples)

	assert.NoError(t, s.CheckFeatures("Transform", mat.NewDense(1, 4, nil)))
	assert.Error(t, s.CheckFeatures("Transform", mat.NewDense(1, 3, nil)))

	s.Reset()
	assert.False(t, s.IsFitted())
}

func TestNameOf(t *testing.T) {
	assert.Equal(t, "StateManager", NameOf(NewStateManager()))
	assert.Equal(t, "passthrough", NameOf(nil))
}
