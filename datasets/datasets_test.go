package datasets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

func TestLoadIris(t *testing.T) {
	ds := LoadIris()

	assert.Equal(t, "iris", ds.Name)
	assert.Equal(t, 150, ds.NSamples())
	assert.Equal(t, 4, ds.NFeatures())
	assert.Equal(t, []int{0, 1, 2}, ds.Classes())
	assert.Equal(t, []string{"setosa", "versicolor", "virginica"}, ds.TargetNames)
	assert.Equal(t, []string{"sepal_length", "sepal_width", "petal_length", "petal_width"}, ds.FeatureNames)

	counts := map[float64]int{}
	for i := 0; i < ds.NSamples(); i++ {
		counts[ds.Y.At(i, 0)]++
	}
	assert.Equal(t, map[float64]int{0: 50, 1: 50, 2: 50}, counts)

	// first and last rows
	assert.Equal(t, []float64{5.1, 3.5, 1.4, 0.2}, mat.Row(nil, 0, ds.X))
	assert.Equal(t, []float64{5.9, 3.0, 5.1, 1.8}, mat.Row(nil, 149, ds.X))
}

func TestLoadCSV(t *testing.T) {
	t.Run("numeric target in the middle", func(t *testing.T) {
		data := "a,label,b\n1,0,2\n3,1,4\n"
		ds, err := LoadCSV(strings.NewReader(data), "label")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ds.FeatureNames)
		assert.Nil(t, ds.TargetNames)
		assert.Equal(t, []float64{3, 4}, mat.Row(nil, 1, ds.X))
		assert.Equal(t, 1.0, ds.Y.At(1, 0))
	})

	t.Run("missing target column", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader("a,b\n1,2\n"), "label")
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("non numeric feature", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader("a,y\nfoo,1\n"), "y")
		var ve *errors.ValueError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("no rows", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader("a,y\n"), "y")
		assert.Error(t, err)
	})
}

func TestMakeClassification(t *testing.T) {
	ds, err := MakeClassification(
		WithNSamples(90),
		WithNFeatures(6),
		WithNInformative(2),
		WithNClasses(3),
		WithSeed(7),
	)
	require.NoError(t, err)
	assert.Equal(t, 90, ds.NSamples())
	assert.Equal(t, 6, ds.NFeatures())
	assert.Equal(t, []int{0, 1, 2}, ds.Classes())

	counts := map[float64]int{}
	for i := 0; i < ds.NSamples(); i++ {
		counts[ds.Y.At(i, 0)]++
	}
	assert.Equal(t, map[float64]int{0: 30, 1: 30, 2: 30}, counts)

	again, err := MakeClassification(
		WithNSamples(90),
		WithNFeatures(6),
		WithNInformative(2),
		WithNClasses(3),
		WithSeed(7),
	)
	require.NoError(t, err)
	assert.True(t, mat.Equal(ds.X, again.X), "same seed must give the same data")
	assert.True(t, mat.Equal(ds.Y, again.Y))

	other, err := MakeClassification(WithNSamples(90), WithNFeatures(6), WithNClasses(3), WithSeed(8))
	require.NoError(t, err)
	assert.False(t, mat.Equal(ds.X, other.X))
}

func TestMakeClassificationSeparation(t *testing.T) {
	ds, err := MakeClassification(WithNSamples(200), WithNFeatures(2), WithClassSep(3), WithShuffle(false))
	require.NoError(t, err)

	// class 0 sits at -sep on feature 0, class 1 at +sep
	var sum0, sum1 float64
	for i := 0; i < ds.NSamples(); i++ {
		if ds.Y.At(i, 0) == 0 {
			sum0 += ds.X.At(i, 0)
		} else {
			sum1 += ds.X.At(i, 0)
		}
	}
	assert.Less(t, sum0/100, -2.0)
	assert.Greater(t, sum1/100, 2.0)
}

func TestMakeClassificationValidation(t *testing.T) {
	tests := []struct {
		name  string
		opts  []ClassificationOption
		param string
	}{
		{"one class", []ClassificationOption{WithNClasses(1)}, "n_classes"},
		{"too many classes", []ClassificationOption{WithNClasses(5), WithNInformative(2)}, "n_classes"},
		{"informative above features", []ClassificationOption{WithNFeatures(3), WithNInformative(4)}, "n_informative"},
		{"too few samples", []ClassificationOption{WithNSamples(1)}, "n_samples"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MakeClassification(tt.opts...)
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.param, ve.ParamName)
		})
	}
}
