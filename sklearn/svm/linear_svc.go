// Package svm provides linear support vector classification.
package svm

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// LinearSVC は hinge 損失の線形サポートベクター分類器です。
// Pegasos（確率的劣勾配法）で学習し、多クラスは one-vs-rest で扱います。
// 切片は定数 1 の特徴量として扱われ、重みと同様に正則化されます。
type LinearSVC struct {
	state *model.StateManager

	// ハイパーパラメータ
	C            float64
	maxIter      int // エポック数
	fitIntercept bool
	randomState  int64

	// 学習パラメータ
	coef      [][]float64
	intercept []float64
	classes   []int
}

// Option is a functional option for LinearSVC
type Option func(*LinearSVC)

// WithC sets the inverse regularization strength.
func WithC(c float64) Option {
	return func(s *LinearSVC) {
		s.C = c
	}
}

// WithMaxIter sets the number of passes over the training data.
func WithMaxIter(n int) Option {
	return func(s *LinearSVC) {
		s.maxIter = n
	}
}

// WithFitIntercept sets whether to learn an intercept.
func WithFitIntercept(fit bool) Option {
	return func(s *LinearSVC) {
		s.fitIntercept = fit
	}
}

// WithRandomState sets the seed of the sample order.
func WithRandomState(seed int64) Option {
	return func(s *LinearSVC) {
		s.randomState = seed
	}
}

// NewLinearSVC creates a new LinearSVC. The default seed is 0 so repeated
// fits on the same data give the same model.
func NewLinearSVC(opts ...Option) *LinearSVC {
	s := &LinearSVC{
		state:        model.NewStateManager(),
		C:            1.0,
		maxIter:      1000,
		fitIntercept: true,
		randomState:  0,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fit trains one Pegasos problem per class (a single one for binary labels).
func (s *LinearSVC) Fit(X, y mat.Matrix) error {
	if s.C <= 0 {
		return errors.NewValidationError("C", "must be positive", s.C)
	}
	if s.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", s.maxIter)
	}
	nSamples, nFeatures, err := model.CheckXY("LinearSVC.Fit", X, y)
	if err != nil {
		return err
	}

	labels := model.Labels(y)
	s.classes = model.UniqueClasses(labels)
	if len(s.classes) < 2 {
		return errors.NewValueError("LinearSVC.Fit",
			fmt.Sprintf("the number of classes has to be greater than one; got %d class", len(s.classes)))
	}

	positives := s.classes
	if len(s.classes) == 2 {
		positives = s.classes[1:]
	}

	// 切片用の列を末尾に追加した行列
	dim := nFeatures
	if s.fitIntercept {
		dim++
	}
	rows := make([][]float64, nSamples)
	for i := range rows {
		rows[i] = make([]float64, dim)
		for j := 0; j < nFeatures; j++ {
			rows[i][j] = X.At(i, j)
		}
		if s.fitIntercept {
			rows[i][nFeatures] = 1
		}
	}

	s.coef = make([][]float64, len(positives))
	s.intercept = make([]float64, len(positives))
	signs := make([]float64, nSamples)
	for k, class := range positives {
		for i, l := range labels {
			if l == class {
				signs[i] = 1
			} else {
				signs[i] = -1
			}
		}
		w := s.pegasos(rows, signs, rand.New(rand.NewSource(s.randomState+int64(k))))
		if err := errors.CheckNumericalStability("LinearSVC.pegasos", w, s.maxIter); err != nil {
			return err
		}
		s.coef[k] = w[:nFeatures]
		if s.fitIntercept {
			s.intercept[k] = w[nFeatures]
		}
	}

	s.state.SetFitted(nFeatures, nSamples)
	return nil
}

// pegasos minimizes lambda/2 ||w||^2 + mean hinge loss with lambda = 1/(C n)
// and returns the average of the iterates from the second half of training.
func (s *LinearSVC) pegasos(rows [][]float64, signs []float64, rng *rand.Rand) []float64 {
	n := len(rows)
	lambda := 1 / (s.C * float64(n))
	radius := 1 / math.Sqrt(lambda)
	w := make([]float64, len(rows[0]))
	avg := make([]float64, len(w))

	total := s.maxIter * n
	t := 0
	averaged := 0
	for epoch := 0; epoch < s.maxIter; epoch++ {
		for _, i := range rng.Perm(n) {
			t++
			eta := 1 / (lambda * float64(t))
			margin := signs[i] * floats.Dot(w, rows[i])
			floats.Scale(1-eta*lambda, w)
			if margin < 1 {
				floats.AddScaled(w, eta*signs[i], rows[i])
			}
			if norm := floats.Norm(w, 2); norm > radius {
				floats.Scale(radius/norm, w)
			}
			if t > total/2 {
				floats.Add(avg, w)
				averaged++
			}
		}
	}
	floats.Scale(1/float64(averaged), avg)
	return avg
}

// DecisionFunction returns signed distances to each hyperplane.
func (s *LinearSVC) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("LinearSVC", "DecisionFunction"); err != nil {
		return nil, err
	}
	if err := s.state.CheckFeatures("LinearSVC.DecisionFunction", X); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	out := mat.NewDense(nSamples, len(s.coef), nil)
	row := make([]float64, nFeatures)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		for k, w := range s.coef {
			out.Set(i, k, floats.Dot(w, row)+s.intercept[k])
		}
	}
	return out, nil
}

// PredictProba returns a softmax over decision values. These are scores
// rescaled to sum to one, not calibrated probabilities.
func (s *LinearSVC) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	dec, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}

	nSamples, _ := dec.Dims()
	k := len(s.classes)
	out := mat.NewDense(nSamples, k, nil)
	row := make([]float64, k)
	for i := 0; i < nSamples; i++ {
		if k == 2 {
			row[0], row[1] = 0, dec.At(i, 0)
		} else {
			mat.Row(row, i, dec)
		}
		errors.Softmax(row)
		out.SetRow(i, row)
	}
	return out, nil
}

// Predict returns the class with the largest decision value.
func (s *LinearSVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := s.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba, s.classes), nil
}

// Classes returns the sorted class labels seen during Fit.
func (s *LinearSVC) Classes() []int {
	return append([]int(nil), s.classes...)
}

// Coef returns the fitted weights, one row per hyperplane.
func (s *LinearSVC) Coef() [][]float64 {
	out := make([][]float64, len(s.coef))
	for i, w := range s.coef {
		out[i] = append([]float64(nil), w...)
	}
	return out
}

// Intercept returns the fitted intercepts.
func (s *LinearSVC) Intercept() []float64 {
	return append([]float64(nil), s.intercept...)
}

// GetParams returns the model hyperparameters
func (s *LinearSVC) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":             s.C,
		"max_iter":      s.maxIter,
		"fit_intercept": s.fitIntercept,
		"random_state":  s.randomState,
	}
}

// SetParams sets the model hyperparameters
func (s *LinearSVC) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "C":
			s.C, err = model.ToFloat(key, value)
		case "max_iter":
			s.maxIter, err = model.ToInt(key, value)
		case "fit_intercept":
			s.fitIntercept, err = model.ToBool(key, value)
		case "random_state":
			s.randomState, err = model.ToInt64(key, value)
		default:
			return model.UnknownParam("LinearSVC", key)
		}
		if err != nil {
			return err
		}
	}
	s.state.Reset()
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (s *LinearSVC) Clone() model.Estimator {
	return NewLinearSVC(WithC(s.C), WithMaxIter(s.maxIter), WithFitIntercept(s.fitIntercept), WithRandomState(s.randomState))
}

func (s *LinearSVC) String() string {
	return fmt.Sprintf("LinearSVC(C=%g, max_iter=%d)", s.C, s.maxIter)
}
