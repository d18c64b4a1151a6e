// Package tree provides CART decision tree classifiers.
package tree

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// node は決定木のノードです。葉ノードでは feature が -1 になります。
type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	proba     []float64 // 葉に到達した訓練サンプルのクラス比率
	nSamples  int
}

func (n *node) isLeaf() bool {
	return n.feature < 0
}

// DecisionTreeClassifier は CART アルゴリズムによる決定木分類器です。
// scikit-learn の DecisionTreeClassifier と同じパラメータ名を持ちます。
//
// 分割候補は特徴量の昇順、閾値の昇順で評価され、不純度減少が同じ場合は
// 先に見つかった分割が採用されるため、学習結果は常に決定的です。
type DecisionTreeClassifier struct {
	state *model.StateManager

	// ハイパーパラメータ
	criterion       string // "gini" or "entropy"
	maxDepth        int    // 0 以下は無制限
	minSamplesSplit int
	minSamplesLeaf  int

	// 学習結果
	root        *node
	classes     []int
	importances []float64
	depth       int
	nLeaves     int
}

// Option is a functional option for DecisionTreeClassifier
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity criterion ("gini" or "entropy").
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth limits the tree depth. Values <= 0 mean unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// NewDecisionTreeClassifier creates a new DecisionTreeClassifier
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

func (dt *DecisionTreeClassifier) validate() error {
	if err := model.OneOf("criterion", dt.criterion, "gini", "entropy"); err != nil {
		return err
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	return nil
}

// builder holds the training data shared by the recursive build.
type builder struct {
	X        *mat.Dense
	target   []int // class index per sample
	nClasses int
	nTotal   float64
	gain     []float64 // weighted impurity decrease per feature
	impurity func(counts []float64, total float64) float64
}

// Fit builds the tree from the training data.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	if err := dt.validate(); err != nil {
		return err
	}
	nSamples, nFeatures, err := model.CheckXY("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}

	labels := model.Labels(y)
	dt.classes = model.UniqueClasses(labels)
	classIdx := model.ClassIndex(dt.classes)

	b := &builder{
		X:        mat.DenseCopyOf(X),
		target:   make([]int, nSamples),
		nClasses: len(dt.classes),
		nTotal:   float64(nSamples),
		gain:     make([]float64, nFeatures),
		impurity: gini,
	}
	if dt.criterion == "entropy" {
		b.impurity = entropy
	}
	for i, l := range labels {
		b.target[i] = classIdx[l]
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}

	dt.depth = 0
	dt.nLeaves = 0
	dt.root = dt.build(b, indices, 0)

	total := 0.0
	for _, g := range b.gain {
		total += g
	}
	dt.importances = make([]float64, nFeatures)
	for j, g := range b.gain {
		dt.importances[j] = errors.SafeDivide(g, total)
	}

	dt.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (dt *DecisionTreeClassifier) build(b *builder, indices []int, depth int) *node {
	counts := make([]float64, b.nClasses)
	for _, i := range indices {
		counts[b.target[i]]++
	}
	n := len(indices)
	total := float64(n)
	imp := b.impurity(counts, total)

	if depth > dt.depth {
		dt.depth = depth
	}

	leaf := &node{feature: -1, nSamples: n, proba: make([]float64, b.nClasses)}
	for c, cnt := range counts {
		leaf.proba[c] = cnt / total
	}

	if imp == 0 || n < dt.minSamplesSplit || n < 2*dt.minSamplesLeaf ||
		(dt.maxDepth > 0 && depth >= dt.maxDepth) {
		dt.nLeaves++
		return leaf
	}

	feature, threshold, childImp, ok := dt.bestSplit(b, indices, counts)
	if !ok {
		dt.nLeaves++
		return leaf
	}

	var left, right []int
	for _, i := range indices {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.gain[feature] += total / b.nTotal * (imp - childImp)

	leaf.feature = feature
	leaf.threshold = threshold
	leaf.left = dt.build(b, left, depth+1)
	leaf.right = dt.build(b, right, depth+1)
	return leaf
}

// bestSplit scans every feature and midpoint threshold and returns the split
// with the lowest weighted child impurity.
func (dt *DecisionTreeClassifier) bestSplit(b *builder, indices []int, counts []float64) (int, float64, float64, bool) {
	n := len(indices)
	total := float64(n)
	_, nFeatures := b.X.Dims()

	bestFeature := -1
	bestThreshold := 0.0
	bestImp := math.Inf(1)

	sorted := make([]int, n)
	leftCounts := make([]float64, b.nClasses)
	rightCounts := make([]float64, b.nClasses)

	for j := 0; j < nFeatures; j++ {
		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X.At(sorted[a], j) < b.X.At(sorted[c], j)
		})

		for c := range leftCounts {
			leftCounts[c] = 0
		}
		copy(rightCounts, counts)

		for pos := 0; pos < n-1; pos++ {
			cls := b.target[sorted[pos]]
			leftCounts[cls]++
			rightCounts[cls]--

			nLeft := pos + 1
			nRight := n - nLeft
			if nLeft < dt.minSamplesLeaf || nRight < dt.minSamplesLeaf {
				continue
			}
			v, next := b.X.At(sorted[pos], j), b.X.At(sorted[pos+1], j)
			if v == next {
				continue
			}

			childImp := (float64(nLeft)*b.impurity(leftCounts, float64(nLeft)) +
				float64(nRight)*b.impurity(rightCounts, float64(nRight))) / total
			if childImp < bestImp {
				bestImp = childImp
				bestFeature = j
				bestThreshold = v + (next-v)/2
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, 0, false
	}
	return bestFeature, bestThreshold, bestImp, true
}

func gini(counts []float64, total float64) float64 {
	sum := 0.0
	for _, c := range counts {
		p := c / total
		sum += p * p
	}
	return 1 - sum
}

func entropy(counts []float64, total float64) float64 {
	h := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := c / total
		h -= p * math.Log2(p)
	}
	return h
}

func (dt *DecisionTreeClassifier) leafFor(row []float64) *node {
	n := dt.root
	for !n.isLeaf() {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n
}

// PredictProba returns the class distribution of the leaf each row reaches.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	if err := dt.state.CheckFeatures("DecisionTreeClassifier.PredictProba", X); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	out := mat.NewDense(nSamples, len(dt.classes), nil)
	row := make([]float64, nFeatures)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, dt.leafFor(row).proba)
	}
	return out, nil
}

// Predict returns the majority class of the leaf each row reaches.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba, dt.classes), nil
}

// Score returns the mean accuracy on the given data.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}
	return model.MeanAccuracy(pred, y), nil
}

// Classes returns the sorted class labels seen during Fit.
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes...)
}

// GetFeatureImportances returns the normalized total impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.importances...)
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.depth
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return dt.nLeaves
}

// GetParams returns the model hyperparameters
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
	}
}

// SetParams sets the model hyperparameters
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "criterion":
			dt.criterion, err = model.ToString(key, value)
		case "max_depth":
			if value == nil {
				dt.maxDepth = 0
				continue
			}
			dt.maxDepth, err = model.ToInt(key, value)
		case "min_samples_split":
			dt.minSamplesSplit, err = model.ToInt(key, value)
		case "min_samples_leaf":
			dt.minSamplesLeaf, err = model.ToInt(key, value)
		default:
			return model.UnknownParam("DecisionTreeClassifier", key)
		}
		if err != nil {
			return err
		}
	}
	dt.state.Reset()
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (dt *DecisionTreeClassifier) Clone() model.Estimator {
	return NewDecisionTreeClassifier(
		WithCriterion(dt.criterion),
		WithMaxDepth(dt.maxDepth),
		WithMinSamplesSplit(dt.minSamplesSplit),
		WithMinSamplesLeaf(dt.minSamplesLeaf),
	)
}

func (dt *DecisionTreeClassifier) String() string {
	return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, max_depth=%d, min_samples_split=%d, min_samples_leaf=%d)",
		dt.criterion, dt.maxDepth, dt.minSamplesSplit, dt.minSamplesLeaf)
}
