// Package decomposition provides matrix decomposition transformers.
package decomposition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// PCA is principal component analysis computed from the thin SVD of the
// centered data. Compatible with scikit-learn's PCA for the full solver.
type PCA struct {
	state *model.StateManager

	// Hyperparameters
	nComponents int  // <= 0 keeps min(n_samples, n_features)
	whiten      bool // scale projected components to unit variance

	// Learned attributes
	Mean                   []float64
	Components             *mat.Dense // n_components x n_features, rows are unit vectors
	ExplainedVariance      []float64
	ExplainedVarianceRatio []float64
	SingularValues         []float64
}

// PCAOption is a functional option for PCA.
type PCAOption func(*PCA)

// WithNComponents sets the number of components to keep.
func WithNComponents(n int) PCAOption {
	return func(p *PCA) {
		p.nComponents = n
	}
}

// WithWhiten enables whitening of the projected data.
func WithWhiten(whiten bool) PCAOption {
	return func(p *PCA) {
		p.whiten = whiten
	}
}

// NewPCA creates a new PCA transformer.
func NewPCA(opts ...PCAOption) *PCA {
	p := &PCA{state: model.NewStateManager()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NComponents returns the configured number of components.
func (p *PCA) NComponents() int {
	return p.nComponents
}

// Fit computes the principal axes of X. y is ignored.
func (p *PCA) Fit(X, _ mat.Matrix) error {
	n, d, err := model.CheckX("PCA.Fit", X)
	if err != nil {
		return err
	}

	maxComponents := n
	if d < maxComponents {
		maxComponents = d
	}
	k := p.nComponents
	if k <= 0 {
		k = maxComponents
	}
	if k > maxComponents {
		return errors.NewValidationError("n_components",
			fmt.Sprintf("must be between 1 and min(n_samples, n_features)=%d", maxComponents), p.nComponents)
	}

	// Center the data
	p.Mean = make([]float64, d)
	for j := 0; j < d; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += X.At(i, j)
		}
		p.Mean[j] = sum / float64(n)
	}
	centered := mat.NewDense(n, d, nil)
	centered.Apply(func(i, j int, v float64) float64 {
		return v - p.Mean[j]
	}, X)

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThinV); !ok {
		return errors.NewModelError("PCA.Fit", "decomposition failed", errors.ErrSVDFailed)
	}
	values := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	dof := float64(n - 1)
	if dof < 1 {
		dof = 1
	}
	totalVar := 0.0
	for _, s := range values {
		totalVar += s * s / dof
	}

	p.Components = mat.NewDense(k, d, nil)
	p.ExplainedVariance = make([]float64, k)
	p.ExplainedVarianceRatio = make([]float64, k)
	p.SingularValues = make([]float64, k)

	for c := 0; c < k; c++ {
		// Deterministic sign: the loading with the largest magnitude is positive.
		maxAbs, sign := 0.0, 1.0
		for j := 0; j < d; j++ {
			if a := math.Abs(v.At(j, c)); a > maxAbs {
				maxAbs = a
				sign = math.Copysign(1, v.At(j, c))
			}
		}
		for j := 0; j < d; j++ {
			p.Components.Set(c, j, sign*v.At(j, c))
		}

		p.SingularValues[c] = values[c]
		p.ExplainedVariance[c] = values[c] * values[c] / dof
		if totalVar > 0 {
			p.ExplainedVarianceRatio[c] = p.ExplainedVariance[c] / totalVar
		}
	}

	p.state.SetFitted(d, n)
	return nil
}

// Transform projects X onto the principal axes.
func (p *PCA) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.state.RequireFitted("PCA", "Transform"); err != nil {
		return nil, err
	}
	if err := p.state.CheckFeatures("PCA.Transform", X); err != nil {
		return nil, err
	}

	n, d := X.Dims()
	centered := mat.NewDense(n, d, nil)
	centered.Apply(func(i, j int, v float64) float64 {
		return v - p.Mean[j]
	}, X)

	var projected mat.Dense
	projected.Mul(centered, p.Components.T())

	if p.whiten {
		projected.Apply(func(i, j int, v float64) float64 {
			return errors.SafeDivide(v, math.Sqrt(p.ExplainedVariance[j]))
		}, &projected)
	}

	return &projected, nil
}

// InverseTransform maps projected data back to the original feature space.
func (p *PCA) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.state.RequireFitted("PCA", "InverseTransform"); err != nil {
		return nil, err
	}
	k, _ := p.Components.Dims()
	n, c := X.Dims()
	if c != k {
		return nil, errors.NewDimensionError("PCA.InverseTransform", k, c, 1)
	}

	scaled := mat.DenseCopyOf(X)
	if p.whiten {
		scaled.Apply(func(i, j int, v float64) float64 {
			return v * math.Sqrt(p.ExplainedVariance[j])
		}, scaled)
	}

	var restored mat.Dense
	restored.Mul(scaled, p.Components)
	_, d := restored.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			restored.Set(i, j, restored.At(i, j)+p.Mean[j])
		}
	}
	return &restored, nil
}

// GetParams returns the model hyperparameters
func (p *PCA) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_components": p.nComponents,
		"whiten":       p.whiten,
	}
}

// SetParams sets the model hyperparameters
func (p *PCA) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_components":
			p.nComponents, err = model.ToInt(key, value)
		case "whiten":
			p.whiten, err = model.ToBool(key, value)
		default:
			return model.UnknownParam("PCA", key)
		}
		if err != nil {
			return err
		}
	}
	p.state.Reset()
	return nil
}

// Clone returns an unfitted PCA with the same hyperparameters.
func (p *PCA) Clone() model.Estimator {
	return NewPCA(WithNComponents(p.nComponents), WithWhiten(p.whiten))
}

func (p *PCA) String() string {
	return fmt.Sprintf("PCA(n_components=%d, whiten=%t)", p.nComponents, p.whiten)
}
