package feature_selection

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// VarianceThreshold drops features whose variance does not exceed the
// threshold. The default threshold of 0 drops constant features.
type VarianceThreshold struct {
	state *model.StateManager

	threshold float64

	Variances []float64
	support   []bool
}

// NewVarianceThreshold creates a new VarianceThreshold selector.
func NewVarianceThreshold(threshold float64) *VarianceThreshold {
	return &VarianceThreshold{state: model.NewStateManager(), threshold: threshold}
}

// Fit computes per-feature population variances. y is ignored.
func (v *VarianceThreshold) Fit(X, _ mat.Matrix) error {
	n, d, err := model.CheckX("VarianceThreshold.Fit", X)
	if err != nil {
		return err
	}

	v.Variances = make([]float64, d)
	v.support = make([]bool, d)
	kept := 0
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, X)
		v.Variances[j] = stat.PopVariance(col, nil)
		if v.Variances[j] > v.threshold {
			v.support[j] = true
			kept++
		}
	}
	if kept == 0 {
		return errors.NewValueError("VarianceThreshold.Fit",
			fmt.Sprintf("no feature in X meets the variance threshold %.5f", v.threshold))
	}

	v.state.SetFitted(d, n)
	return nil
}

// Transform keeps the columns whose variance exceeded the threshold.
func (v *VarianceThreshold) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := v.state.RequireFitted("VarianceThreshold", "Transform"); err != nil {
		return nil, err
	}
	if err := v.state.CheckFeatures("VarianceThreshold.Transform", X); err != nil {
		return nil, err
	}
	return selectColumns(X, v.support), nil
}

// GetSupport returns the mask of selected features.
func (v *VarianceThreshold) GetSupport() []bool {
	out := make([]bool, len(v.support))
	copy(out, v.support)
	return out
}

// GetParams returns the selector hyperparameters
func (v *VarianceThreshold) GetParams() map[string]interface{} {
	return map[string]interface{}{"threshold": v.threshold}
}

// SetParams sets the selector hyperparameters
func (v *VarianceThreshold) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		if key != "threshold" {
			return model.UnknownParam("VarianceThreshold", key)
		}
		t, err := model.ToFloat(key, value)
		if err != nil {
			return err
		}
		v.threshold = t
	}
	v.state.Reset()
	return nil
}

// Clone returns an unfitted selector with the same threshold.
func (v *VarianceThreshold) Clone() model.Estimator {
	return NewVarianceThreshold(v.threshold)
}

func (v *VarianceThreshold) String() string {
	return fmt.Sprintf("VarianceThreshold(threshold=%g)", v.threshold)
}
