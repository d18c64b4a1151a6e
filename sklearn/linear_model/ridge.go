package linear_model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/core/parallel"
	"github.com/YuminosukeSato/scigo-tune/metrics"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// Ridge は L2 正則化付きの線形回帰モデル。alpha = 0 で通常の最小二乗法になる。
type Ridge struct {
	state *model.StateManager

	alpha        float64
	fitIntercept bool

	coef      []float64
	intercept float64
}

// RidgeOption is a functional option for Ridge.
type RidgeOption func(*Ridge)

// WithAlpha sets the L2 penalty strength.
func WithAlpha(alpha float64) RidgeOption {
	return func(r *Ridge) { r.alpha = alpha }
}

// WithRidgeFitIntercept sets whether to fit an unpenalised intercept.
func WithRidgeFitIntercept(fit bool) RidgeOption {
	return func(r *Ridge) { r.fitIntercept = fit }
}

// NewRidge は新しい Ridge 回帰モデルを作成する
func NewRidge(opts ...RidgeOption) *Ridge {
	r := &Ridge{
		state:        model.NewStateManager(),
		alpha:        1.0,
		fitIntercept: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewLinearRegression は正則化なしの Ridge を返す
func NewLinearRegression(opts ...RidgeOption) *Ridge {
	return NewRidge(append([]RidgeOption{WithAlpha(0)}, opts...)...)
}

// Fit は正規方程式 (X^T X + αI) w = X^T y を解いて学習する。切片は正則化しない。
func (r *Ridge) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "Ridge.Fit")

	nSamples, nFeatures, err := model.CheckXY("Ridge.Fit", X, y)
	if err != nil {
		return err
	}
	if r.alpha < 0 {
		return errors.NewValidationError("alpha", "must be non-negative", r.alpha)
	}

	// 切片項のために X に 1 の列を追加
	offset := 0
	if r.fitIntercept {
		offset = 1
	}
	cols := nFeatures + offset
	design := mat.NewDense(nSamples, cols, nil)
	parallel.ParallelizeWithThreshold(nSamples, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			if offset == 1 {
				design.Set(i, 0, 1.0)
			}
			for j := 0; j < nFeatures; j++ {
				design.Set(i, j+offset, X.At(i, j))
			}
		}
	})

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for j := offset; j < cols; j++ {
		gram.Set(j, j, gram.At(j, j)+r.alpha)
	}

	yVec := metrics.ColumnVec(y)
	var rhs mat.VecDense
	rhs.MulVec(design.T(), yVec)

	var w mat.VecDense
	if err := w.SolveVec(&gram, &rhs); err != nil {
		return errors.NewModelError("Ridge.Fit", "solving normal equations", errors.Mark(err, errors.ErrSingularMatrix))
	}

	r.intercept = 0
	if offset == 1 {
		r.intercept = w.AtVec(0)
	}
	r.coef = make([]float64, nFeatures)
	for j := range r.coef {
		r.coef[j] = w.AtVec(j + offset)
	}

	r.state.SetFitted(nFeatures, nSamples)
	return nil
}

// Predict は y = X w + b を返す
func (r *Ridge) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := r.state.RequireFitted("Ridge", "Predict"); err != nil {
		return nil, err
	}
	if err := r.state.CheckFeatures("Ridge.Predict", X); err != nil {
		return nil, err
	}

	n, _ := X.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		pred := r.intercept
		for j, c := range r.coef {
			pred += X.At(i, j) * c
		}
		out.Set(i, 0, pred)
	}
	return out, nil
}

// Score はモデルの決定係数（R²）を返す
func (r *Ridge) Score(X, y mat.Matrix) (float64, error) {
	pred, err := r.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(metrics.ColumnVec(y), metrics.ColumnVec(pred))
}

// Coef returns a copy of the fitted coefficients.
func (r *Ridge) Coef() []float64 {
	return append([]float64(nil), r.coef...)
}

// Intercept returns the fitted intercept.
func (r *Ridge) Intercept() float64 { return r.intercept }

// GetParams returns the model hyperparameters
func (r *Ridge) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"alpha":         r.alpha,
		"fit_intercept": r.fitIntercept,
	}
}

// SetParams sets the model hyperparameters
func (r *Ridge) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "alpha":
			r.alpha, err = model.ToFloat(key, value)
		case "fit_intercept":
			r.fitIntercept, err = model.ToBool(key, value)
		default:
			return model.UnknownParam("Ridge", key)
		}
		if err != nil {
			return err
		}
	}
	r.state.Reset()
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (r *Ridge) Clone() model.Estimator {
	return NewRidge(WithAlpha(r.alpha), WithRidgeFitIntercept(r.fitIntercept))
}

func (r *Ridge) String() string {
	return fmt.Sprintf("Ridge(alpha=%g, fit_intercept=%t)", r.alpha, r.fitIntercept)
}
