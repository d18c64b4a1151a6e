package svm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

func accuracy(t *testing.T, s *LinearSVC, X, y mat.Matrix) float64 {
	t.Helper()
	pred, err := s.Predict(X)
	require.NoError(t, err)
	n, _ := X.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(n)
}

func TestLinearSVC_Binary(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		4, 4,
		4, 5,
		5, 4,
		5, 5,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	s := NewLinearSVC(WithMaxIter(200))
	require.NoError(t, s.Fit(X, y))
	assert.Equal(t, 1.0, accuracy(t, s, X, y))
	assert.Len(t, s.Coef(), 1)

	dec, err := s.DecisionFunction(mat.NewDense(2, 2, []float64{0, 0, 5, 5}))
	require.NoError(t, err)
	assert.Less(t, dec.At(0, 0), 0.0)
	assert.Greater(t, dec.At(1, 0), 0.0)

	proba, err := s.PredictProba(X)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-12)
	}
}

func TestLinearSVC_Multiclass(t *testing.T) {
	X := mat.NewDense(9, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		10, 0,
		10, 1,
		11, 0,
		0, 10,
		1, 10,
		0, 11,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	s := NewLinearSVC(WithC(10), WithMaxIter(500))
	require.NoError(t, s.Fit(X, y))
	assert.Len(t, s.Coef(), 3)
	assert.Equal(t, []int{0, 1, 2}, s.Classes())
	assert.GreaterOrEqual(t, accuracy(t, s, X, y), 8.0/9.0)
}

func TestLinearSVC_Deterministic(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 5, 6, 7})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	a := NewLinearSVC(WithRandomState(3))
	b := a.Clone().(*LinearSVC)
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))
	assert.Equal(t, a.Coef(), b.Coef())
	assert.Equal(t, a.Intercept(), b.Intercept())
}

func TestLinearSVC_Errors(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})

	s := NewLinearSVC()
	require.NoError(t, s.SetParams(map[string]interface{}{"C": 0}))
	var ve *errors.ValidationError
	require.True(t, errors.As(s.Fit(X, y), &ve))
	assert.Equal(t, "C", ve.ParamName)

	require.NoError(t, s.SetParams(map[string]interface{}{"C": 1, "max_iter": 0}))
	assert.Error(t, s.Fit(X, y))
	assert.Error(t, s.SetParams(map[string]interface{}{"loss": "hinge"}))
	assert.Error(t, NewLinearSVC().Fit(X, mat.NewDense(4, 1, nil)))

	_, err := NewLinearSVC().Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}
