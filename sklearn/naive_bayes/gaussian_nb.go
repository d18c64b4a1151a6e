// Package naive_bayes provides Gaussian naive Bayes classification.
package naive_bayes

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// GaussianNB はクラスごとに特徴量が独立な正規分布に従うと仮定する分類器です。
// scikit-learn の GaussianNB と互換性を持ち、PartialFit による逐次学習に対応します。
type GaussianNB struct {
	state *model.StateManager

	// ハイパーパラメータ
	varSmoothing float64 // 全特徴量の最大分散に対する分散の下駄の比率

	// 学習パラメータ
	classes    []int
	classCount []float64
	theta      [][]float64 // クラス x 特徴量の平均
	variance   [][]float64 // クラス x 特徴量の分散（epsilon を含まない）
	epsilon    float64
	nSeen      int
}

// Option is a functional option for GaussianNB
type Option func(*GaussianNB)

// WithVarSmoothing sets the portion of the largest feature variance added to
// every variance for stability.
func WithVarSmoothing(v float64) Option {
	return func(nb *GaussianNB) {
		nb.varSmoothing = v
	}
}

// NewGaussianNB creates a new GaussianNB with var_smoothing=1e-9.
func NewGaussianNB(opts ...Option) *GaussianNB {
	nb := &GaussianNB{
		state:        model.NewStateManager(),
		varSmoothing: 1e-9,
	}
	for _, opt := range opts {
		opt(nb)
	}
	return nb
}

// Fit discards any previous state and learns per-class means and variances.
func (nb *GaussianNB) Fit(X, y mat.Matrix) error {
	if _, _, err := model.CheckXY("GaussianNB.Fit", X, y); err != nil {
		return err
	}
	nb.reset()
	return nb.PartialFit(X, y, model.UniqueClasses(model.Labels(y)))
}

func (nb *GaussianNB) reset() {
	nb.state.Reset()
	nb.classes = nil
	nb.classCount = nil
	nb.theta = nil
	nb.variance = nil
	nb.nSeen = 0
}

// PartialFit updates the model with a batch of samples. classes must be given
// on the first call and is ignored afterwards.
func (nb *GaussianNB) PartialFit(X, y mat.Matrix, classes []int) error {
	if nb.varSmoothing < 0 {
		return errors.NewValidationError("var_smoothing", "must be non-negative", nb.varSmoothing)
	}
	nSamples, nFeatures, err := model.CheckXY("GaussianNB.PartialFit", X, y)
	if err != nil {
		return err
	}

	first := nb.classes == nil
	if first {
		if len(classes) == 0 {
			return errors.NewValueError("GaussianNB.PartialFit", "classes must be passed on the first call")
		}
		nb.classes = model.UniqueClasses(classes)
		nb.classCount = make([]float64, len(nb.classes))
		nb.theta = make([][]float64, len(nb.classes))
		nb.variance = make([][]float64, len(nb.classes))
		for c := range nb.classes {
			nb.theta[c] = make([]float64, nFeatures)
			nb.variance[c] = make([]float64, nFeatures)
		}
	} else if err := nb.state.CheckFeatures("GaussianNB.PartialFit", X); err != nil {
		return err
	}

	// epsilon はこのバッチの最大分散から決める
	maxVar := 0.0
	col := make([]float64, nSamples)
	for j := 0; j < nFeatures; j++ {
		mat.Col(col, j, X)
		maxVar = math.Max(maxVar, stat.PopVariance(col, nil))
	}
	if first {
		nb.epsilon = nb.varSmoothing * maxVar
		if nb.epsilon == 0 {
			nb.epsilon = math.Max(nb.varSmoothing, math.SmallestNonzeroFloat64)
		}
	}

	classIdx := model.ClassIndex(nb.classes)
	rows := make([][]int, len(nb.classes))
	for i, l := range model.Labels(y) {
		c, ok := classIdx[l]
		if !ok {
			return errors.NewValueError("GaussianNB.PartialFit",
				fmt.Sprintf("the target label %d is not in the initial classes %v", l, nb.classes))
		}
		rows[c] = append(rows[c], i)
	}

	values := make([]float64, 0, nSamples)
	for c, idx := range rows {
		if len(idx) == 0 {
			continue
		}
		nNew := float64(len(idx))
		nOld := nb.classCount[c]
		total := nOld + nNew
		for j := 0; j < nFeatures; j++ {
			values = values[:0]
			for _, i := range idx {
				values = append(values, X.At(i, j))
			}
			mu, sd := stat.PopMeanStdDev(values, nil)
			newVar := sd * sd

			// 既存の統計量と新しいバッチを結合する（Chan らの更新式）
			oldMu, oldVar := nb.theta[c][j], nb.variance[c][j]
			delta := mu - oldMu
			nb.theta[c][j] = (nOld*oldMu + nNew*mu) / total
			nb.variance[c][j] = (nOld*oldVar + nNew*newVar + nOld*nNew/total*delta*delta) / total
		}
		nb.classCount[c] = total
	}

	nb.nSeen += nSamples
	nb.state.SetFitted(nFeatures, nb.nSeen)
	return nil
}

// jointLogLikelihood returns log P(c) + log P(x|c) for every row and class.
func (nb *GaussianNB) jointLogLikelihood(X mat.Matrix, op string) (*mat.Dense, error) {
	if err := nb.state.RequireFitted("GaussianNB", op); err != nil {
		return nil, err
	}
	if err := nb.state.CheckFeatures("GaussianNB."+op, X); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	k := len(nb.classes)
	out := mat.NewDense(nSamples, k, nil)

	total := 0.0
	for _, cnt := range nb.classCount {
		total += cnt
	}

	for c := 0; c < k; c++ {
		logPrior := math.Log(nb.classCount[c] / total)
		norm := 0.0
		for j := 0; j < nFeatures; j++ {
			norm += math.Log(2 * math.Pi * (nb.variance[c][j] + nb.epsilon))
		}
		for i := 0; i < nSamples; i++ {
			sq := 0.0
			for j := 0; j < nFeatures; j++ {
				d := X.At(i, j) - nb.theta[c][j]
				sq += d * d / (nb.variance[c][j] + nb.epsilon)
			}
			out.Set(i, c, logPrior-0.5*norm-0.5*sq)
		}
	}
	return out, nil
}

// PredictLogProba returns log class probabilities.
func (nb *GaussianNB) PredictLogProba(X mat.Matrix) (mat.Matrix, error) {
	jll, err := nb.jointLogLikelihood(X, "PredictLogProba")
	if err != nil {
		return nil, err
	}
	n, _ := jll.Dims()
	for i := 0; i < n; i++ {
		row := jll.RawRowView(i)
		lse := errors.LogSumExp(row)
		for c := range row {
			row[c] -= lse
		}
	}
	return jll, nil
}

// PredictProba returns class probabilities.
func (nb *GaussianNB) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	jll, err := nb.jointLogLikelihood(X, "PredictProba")
	if err != nil {
		return nil, err
	}
	n, _ := jll.Dims()
	for i := 0; i < n; i++ {
		errors.Softmax(jll.RawRowView(i))
	}
	return jll, nil
}

// Predict returns the most probable class per row.
func (nb *GaussianNB) Predict(X mat.Matrix) (mat.Matrix, error) {
	jll, err := nb.jointLogLikelihood(X, "Predict")
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(jll, nb.classes), nil
}

// Score returns the mean accuracy on the given data.
func (nb *GaussianNB) Score(X, y mat.Matrix) (float64, error) {
	pred, err := nb.Predict(X)
	if err != nil {
		return 0, err
	}
	return model.MeanAccuracy(pred, y), nil
}

// Classes returns the class labels known to the model.
func (nb *GaussianNB) Classes() []int {
	return append([]int(nil), nb.classes...)
}

// NSamplesSeen returns the number of samples used so far.
func (nb *GaussianNB) NSamplesSeen() int {
	return nb.nSeen
}

// Theta returns the per-class feature means.
func (nb *GaussianNB) Theta() [][]float64 {
	out := make([][]float64, len(nb.theta))
	for c := range nb.theta {
		out[c] = append([]float64(nil), nb.theta[c]...)
	}
	return out
}

// Var returns the per-class feature variances including epsilon.
func (nb *GaussianNB) Var() [][]float64 {
	out := make([][]float64, len(nb.variance))
	for c := range nb.variance {
		out[c] = make([]float64, len(nb.variance[c]))
		for j, v := range nb.variance[c] {
			out[c][j] = v + nb.epsilon
		}
	}
	return out
}

// GetParams returns the model hyperparameters
func (nb *GaussianNB) GetParams() map[string]interface{} {
	return map[string]interface{}{"var_smoothing": nb.varSmoothing}
}

// SetParams sets the model hyperparameters
func (nb *GaussianNB) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		if key != "var_smoothing" {
			return model.UnknownParam("GaussianNB", key)
		}
		v, err := model.ToFloat(key, value)
		if err != nil {
			return err
		}
		nb.varSmoothing = v
	}
	nb.reset()
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (nb *GaussianNB) Clone() model.Estimator {
	return NewGaussianNB(WithVarSmoothing(nb.varSmoothing))
}

func (nb *GaussianNB) String() string {
	return fmt.Sprintf("GaussianNB(var_smoothing=%g)", nb.varSmoothing)
}
