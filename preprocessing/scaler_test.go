package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

func TestStandardScaler_FitTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10, // 定数特徴量
	})

	scaler := NewStandardScalerDefault()
	Xt, err := model.FitTransform(scaler, X, nil)
	require.NoError(t, err)

	assert.InDelta(t, 2.5, scaler.Mean[0], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), scaler.Scale[0], 1e-12)
	assert.Equal(t, 1.0, scaler.Scale[1], "zero variance column keeps scale 1")

	col := mat.Col(nil, 0, Xt)
	sum := 0.0
	for _, v := range col {
		sum += v
	}
	assert.InDelta(t, 0.0, sum, 1e-12)
	assert.Equal(t, 0.0, Xt.At(2, 1))

	back, err := scaler.InverseTransform(Xt)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(back, X, 1e-12))
}

func TestStandardScaler_WithoutMean(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{2, 4})
	scaler := NewStandardScaler(false, true)
	Xt, err := model.FitTransform(scaler, X, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, Xt.At(0, 0), 1e-12)
	assert.InDelta(t, 4.0, Xt.At(1, 0), 1e-12)
}

func TestStandardScaler_Errors(t *testing.T) {
	scaler := NewStandardScalerDefault()

	_, err := scaler.Transform(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	require.NoError(t, scaler.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), nil))
	_, err = scaler.Transform(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	assert.Error(t, scaler.SetParams(map[string]interface{}{"copy": true}))
}

func TestStandardScaler_ParamsAndClone(t *testing.T) {
	scaler := NewStandardScalerDefault()
	require.NoError(t, scaler.SetParams(map[string]interface{}{"with_mean": false}))
	assert.Equal(t, false, scaler.GetParams()["with_mean"])

	require.NoError(t, scaler.Fit(mat.NewDense(2, 1, []float64{1, 3}), nil))
	clone := scaler.Clone().(*StandardScaler)
	assert.Equal(t, scaler.GetParams(), clone.GetParams())

	_, err := clone.Transform(mat.NewDense(1, 1, nil))
	assert.Error(t, err, "clone must be unfitted")
}

func TestMinMaxScaler(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		0, 5,
		5, 5,
		10, 5,
	})

	scaler := NewMinMaxScaler([2]float64{-1, 1})
	Xt, err := model.FitTransform(scaler, X, nil)
	require.NoError(t, err)

	assert.InDelta(t, -1.0, Xt.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, Xt.At(1, 0), 1e-12)
	assert.InDelta(t, 1.0, Xt.At(2, 0), 1e-12)
	assert.InDelta(t, -1.0, Xt.At(0, 1), 1e-12, "constant feature maps to range minimum")

	back, err := scaler.InverseTransform(Xt)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(back, X, 1e-12))

	require.NoError(t, scaler.SetParams(map[string]interface{}{"feature_min": 2, "feature_max": 1}))
	err = scaler.Fit(X, nil)
	var vErr *errors.ValidationError
	assert.True(t, errors.As(err, &vErr))
}
