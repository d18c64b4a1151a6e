package linear_model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// LogisticRegression implements logistic regression for classification
// Compatible with scikit-learn's LogisticRegression
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	solver       string  // Solver: "lbfgs" (multinomial), "gd" (one-vs-rest gradient descent)
	maxIter      int     // Maximum iterations
	tol          float64 // Tolerance for stopping
	randomState  int64   // Accepted for compatibility; both solvers start from zero weights

	// Model parameters
	coef      [][]float64 // n_classes x n_features (1 x n_features for binary gd)
	intercept []float64
	classes   []int
	nIter     []int
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		solver:       "lbfgs",
		maxIter:      100,
		tol:          1e-4,
		randomState:  -1,
	}

	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Option functions

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRSolver sets the optimization solver
func WithLRSolver(solver string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.solver = solver
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRRandomState sets the random seed
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.randomState = seed
	}
}

func (lr *LogisticRegression) validate() error {
	if err := model.OneOf("penalty", lr.penalty, "l2", "none"); err != nil {
		return err
	}
	if err := model.OneOf("solver", lr.solver, "lbfgs", "gd"); err != nil {
		return err
	}
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	}
	return nil
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validate(); err != nil {
		return err
	}
	nSamples, nFeatures, err := model.CheckXY("LogisticRegression.Fit", X, y)
	if err != nil {
		return err
	}

	lr.classes = model.UniqueClasses(model.Labels(y))
	if len(lr.classes) < 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("this solver needs samples of at least 2 classes in the data, but the data contains only one class: %d", lr.classes[0]))
	}

	if lr.solver == "lbfgs" {
		err = lr.fitMultinomial(X, y)
	} else {
		err = lr.fitOVR(X, y)
	}
	if err != nil {
		return err
	}

	lr.state.SetFitted(nFeatures, nSamples)
	return nil
}

// fitMultinomial minimizes the mean softmax cross-entropy plus
// ||W||^2 / (2 C n) with L-BFGS. The parameter vector is W (row-major,
// n_classes x n_features) followed by the intercepts.
func (lr *LogisticRegression) fitMultinomial(X, y mat.Matrix) error {
	n, d := X.Dims()
	k := len(lr.classes)
	classIdx := model.ClassIndex(lr.classes)
	target := make([]int, n)
	for i, l := range model.Labels(y) {
		target[i] = classIdx[l]
	}

	lambda := 0.0
	if lr.penalty == "l2" {
		lambda = 1.0 / (lr.C * float64(n))
	}

	Xd := mat.DenseCopyOf(X)
	scores := make([]float64, k)

	// evaluate returns the objective and optionally fills grad.
	evaluate := func(params, grad []float64) float64 {
		W := params[:k*d]
		b := params[k*d:]
		if grad != nil {
			for i := range grad {
				grad[i] = 0
			}
		}

		loss := 0.0
		for i := 0; i < n; i++ {
			row := Xd.RawRowView(i)
			for c := 0; c < k; c++ {
				z := 0.0
				if lr.fitIntercept {
					z = b[c]
				}
				w := W[c*d : (c+1)*d]
				for j, v := range row {
					z += w[j] * v
				}
				scores[c] = z
			}
			lse := errors.LogSumExp(scores)
			loss += lse - scores[target[i]]

			if grad == nil {
				continue
			}
			for c := 0; c < k; c++ {
				residual := math.Exp(scores[c] - lse)
				if c == target[i] {
					residual--
				}
				residual /= float64(n)
				g := grad[c*d : (c+1)*d]
				for j, v := range row {
					g[j] += residual * v
				}
				if lr.fitIntercept {
					grad[k*d+c] += residual
				}
			}
		}
		loss /= float64(n)

		for idx, w := range W {
			loss += 0.5 * lambda * w * w
			if grad != nil {
				grad[idx] += lambda * w
			}
		}
		return loss
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return evaluate(x, nil) },
		Grad: func(grad, x []float64) { evaluate(x, grad) },
	}
	settings := &optimize.Settings{
		GradientThreshold: lr.tol,
		MajorIterations:   lr.maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-10,
			Iterations: 20,
		},
	}

	result, err := optimize.Minimize(problem, make([]float64, k*d+k), settings, &optimize.LBFGS{})
	if result == nil {
		return errors.NewModelError("LogisticRegression.Fit", "optimization failed", err)
	}
	if cerr := errors.CheckNumericalStability("LogisticRegression.lbfgs", result.X, result.MajorIterations); cerr != nil {
		return cerr
	}
	if result.Status == optimize.IterationLimit {
		errors.Warn(errors.NewConvergenceWarning("lbfgs", result.MajorIterations,
			"increase the number of iterations (max_iter) or scale the data"))
	} else if err != nil {
		// ラインサーチが最適点付近で進めなくなった場合は最良点を採用する
		errors.Warn(errors.NewConvergenceWarning("lbfgs", result.MajorIterations, err.Error()))
	}

	lr.coef = make([][]float64, k)
	for c := 0; c < k; c++ {
		lr.coef[c] = append([]float64(nil), result.X[c*d:(c+1)*d]...)
	}
	lr.intercept = append([]float64(nil), result.X[k*d:]...)
	lr.nIter = []int{result.MajorIterations}
	return nil
}

// fitOVR fits one binary classifier per class (a single one for binary
// problems) using gradient descent.
func (lr *LogisticRegression) fitOVR(X, y mat.Matrix) error {
	Xd := mat.DenseCopyOf(X)
	nSamples, nFeatures := Xd.Dims()
	labels := model.Labels(y)

	positives := lr.classes
	if len(lr.classes) == 2 {
		positives = lr.classes[1:]
	}

	lr.coef = make([][]float64, len(positives))
	lr.intercept = make([]float64, len(positives))
	lr.nIter = make([]int, len(positives))

	for idx, class := range positives {
		target := make([]float64, nSamples)
		for i, l := range labels {
			if l == class {
				target[i] = 1
			}
		}
		lr.coef[idx] = make([]float64, nFeatures)
		if err := lr.fitBinary(Xd, target, idx); err != nil {
			return errors.Wrapf(err, "failed to fit class %d", class)
		}
	}
	return nil
}

// fitBinary は減衰するステップ幅の全バッチ勾配降下で1クラス分の重みを学習する。
// 重みは lr.coef[idx] をそのまま更新する。
func (lr *LogisticRegression) fitBinary(X *mat.Dense, target []float64, idx int) error {
	n, d := X.Dims()
	w := mat.NewVecDense(d, lr.coef[idx])
	z := mat.NewVecDense(n, nil)
	residual := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(d, nil)

	lambda := 0.0
	if lr.penalty == "l2" {
		lambda = 1.0 / (lr.C * float64(n))
	}

	for iter := 0; iter < lr.maxIter; iter++ {
		z.MulVec(X, w)
		for i := 0; i < n; i++ {
			residual.SetVec(i, sigmoid(z.AtVec(i)+lr.intercept[idx])-target[i])
		}
		grad.MulVec(X.T(), residual)
		grad.ScaleVec(1/float64(n), grad)
		grad.AddScaledVec(grad, lambda, w)
		gradB := mat.Sum(residual) / float64(n)

		step := 1.0 / (1.0 + 0.1*float64(iter))
		w.AddScaledVec(w, -step, grad)
		if lr.fitIntercept {
			lr.intercept[idx] -= step * gradB
		}
		if err := errors.CheckNumericalStability("LogisticRegression.gd", lr.coef[idx], iter); err != nil {
			return err
		}
		lr.nIter[idx] = iter + 1

		maxGrad := mat.Norm(grad, math.Inf(1))
		if lr.fitIntercept {
			maxGrad = math.Max(maxGrad, math.Abs(gradB))
		}
		if maxGrad < lr.tol {
			return nil
		}
	}

	errors.Warn(errors.NewConvergenceWarning("gd", lr.maxIter,
		"increase the number of iterations (max_iter) or scale the data"))
	return nil
}

// DecisionFunction returns the raw linear scores, one column per class
// (a single column for binary problems fitted with the gd solver).
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "DecisionFunction"); err != nil {
		return nil, err
	}
	if err := lr.state.CheckFeatures("LogisticRegression.DecisionFunction", X); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	W := mat.NewDense(len(lr.coef), nFeatures, nil)
	for c, w := range lr.coef {
		W.SetRow(c, w)
	}
	out := mat.NewDense(nSamples, len(lr.coef), nil)
	out.Mul(X, W.T())
	for i := 0; i < nSamples; i++ {
		floats.Add(out.RawRowView(i), lr.intercept)
	}
	return out, nil
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba, lr.classes), nil
}

// PredictProba returns probability estimates for each class
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}

	nSamples, _ := scores.Dims()
	k := len(lr.classes)
	probas := mat.NewDense(nSamples, k, nil)
	row := make([]float64, len(lr.coef))

	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, scores)
		switch {
		case len(row) == 1:
			p := sigmoid(row[0])
			probas.Set(i, 0, 1-p)
			probas.Set(i, 1, p)
		case lr.solver == "gd":
			// one-vs-rest の確率は各クラスのシグモイドを正規化する
			sum := 0.0
			for c := range row {
				row[c] = sigmoid(row[c])
				sum += row[c]
			}
			for c := range row {
				probas.Set(i, c, errors.SafeDivide(row[c], sum))
			}
		default:
			errors.Softmax(row)
			probas.SetRow(i, row)
		}
	}
	return probas, nil
}

// Classes returns the sorted class labels seen during Fit.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes...)
}

// Coef returns the fitted coefficients.
func (lr *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(lr.coef))
	for i, w := range lr.coef {
		out[i] = append([]float64(nil), w...)
	}
	return out
}

// Intercept returns the fitted intercepts.
func (lr *LogisticRegression) Intercept() []float64 {
	return append([]float64(nil), lr.intercept...)
}

// NIter returns the number of iterations run per fitted problem.
func (lr *LogisticRegression) NIter() []int {
	return append([]int(nil), lr.nIter...)
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return model.MeanAccuracy(predictions, y), nil
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"random_state":  lr.randomState,
		"solver":        lr.solver,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "penalty":
			lr.penalty, err = model.ToString(key, value)
		case "C":
			lr.C, err = model.ToFloat(key, value)
		case "fit_intercept":
			lr.fitIntercept, err = model.ToBool(key, value)
		case "random_state":
			lr.randomState, err = model.ToInt64(key, value)
		case "solver":
			lr.solver, err = model.ToString(key, value)
		case "max_iter":
			lr.maxIter, err = model.ToInt(key, value)
		case "tol":
			lr.tol, err = model.ToFloat(key, value)
		default:
			return model.UnknownParam("LogisticRegression", key)
		}
		if err != nil {
			return err
		}
	}
	lr.state.Reset()
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (lr *LogisticRegression) Clone() model.Estimator {
	return NewLogisticRegression(
		WithLRPenalty(lr.penalty),
		WithLRC(lr.C),
		WithLogisticFitIntercept(lr.fitIntercept),
		WithLRSolver(lr.solver),
		WithLRMaxIter(lr.maxIter),
		WithLRTol(lr.tol),
		WithLRRandomState(lr.randomState),
	)
}

func (lr *LogisticRegression) String() string {
	return fmt.Sprintf("LogisticRegression(C=%g, penalty=%s, solver=%s, max_iter=%d)",
		lr.C, lr.penalty, lr.solver, lr.maxIter)
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
