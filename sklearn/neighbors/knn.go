// Package neighbors provides k-nearest-neighbor classification.
package neighbors

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/core/parallel"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// parallelThreshold is the number of query rows above which prediction is
// spread over all CPUs.
const parallelThreshold = 256

// KNeighborsClassifier votes among the k closest training samples.
type KNeighborsClassifier struct {
	state *model.StateManager

	nNeighbors int
	weights    string // "uniform" or "distance"
	p          int    // Minkowski power: 1 manhattan, 2 euclidean

	X       *mat.Dense
	target  []int // class index per training row
	classes []int
}

// Option is a functional option for KNeighborsClassifier
type Option func(*KNeighborsClassifier)

// WithNNeighbors sets the number of neighbors.
func WithNNeighbors(k int) Option {
	return func(knn *KNeighborsClassifier) {
		knn.nNeighbors = k
	}
}

// WithWeights sets the vote weighting ("uniform" or "distance").
func WithWeights(w string) Option {
	return func(knn *KNeighborsClassifier) {
		knn.weights = w
	}
}

// WithP sets the Minkowski power parameter.
func WithP(p int) Option {
	return func(knn *KNeighborsClassifier) {
		knn.p = p
	}
}

// NewKNeighborsClassifier creates a classifier with 5 uniformly weighted
// euclidean neighbors.
func NewKNeighborsClassifier(opts ...Option) *KNeighborsClassifier {
	knn := &KNeighborsClassifier{
		state:      model.NewStateManager(),
		nNeighbors: 5,
		weights:    "uniform",
		p:          2,
	}
	for _, opt := range opts {
		opt(knn)
	}
	return knn
}

// Fit stores the training data.
func (knn *KNeighborsClassifier) Fit(X, y mat.Matrix) error {
	if err := model.OneOf("weights", knn.weights, "uniform", "distance"); err != nil {
		return err
	}
	if knn.p != 1 && knn.p != 2 {
		return errors.NewValidationError("p", "must be 1 or 2", knn.p)
	}
	nSamples, nFeatures, err := model.CheckXY("KNeighborsClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	if knn.nNeighbors < 1 || knn.nNeighbors > nSamples {
		return errors.NewValidationError("n_neighbors",
			fmt.Sprintf("expected 1 <= n_neighbors <= n_samples_fit=%d", nSamples), knn.nNeighbors)
	}

	labels := model.Labels(y)
	knn.classes = model.UniqueClasses(labels)
	classIdx := model.ClassIndex(knn.classes)
	knn.target = make([]int, nSamples)
	for i, l := range labels {
		knn.target[i] = classIdx[l]
	}
	knn.X = mat.DenseCopyOf(X)

	knn.state.SetFitted(nFeatures, nSamples)
	return nil
}

func (knn *KNeighborsClassifier) distance(a, b []float64) float64 {
	d := 0.0
	if knn.p == 1 {
		for j := range a {
			d += math.Abs(a[j] - b[j])
		}
		return d
	}
	for j := range a {
		diff := a[j] - b[j]
		d += diff * diff
	}
	return math.Sqrt(d)
}

type neighbor struct {
	index    int
	distance float64
}

// KNeighbors returns the training indices and distances of the k nearest
// neighbors of row, closest first. Equal distances keep training order.
func (knn *KNeighborsClassifier) KNeighbors(row []float64) ([]int, []float64) {
	nb := knn.neighbors(row)
	idx := make([]int, len(nb))
	dist := make([]float64, len(nb))
	for i, n := range nb {
		idx[i] = n.index
		dist[i] = n.distance
	}
	return idx, dist
}

func (knn *KNeighborsClassifier) neighbors(row []float64) []neighbor {
	nTrain, _ := knn.X.Dims()
	all := make([]neighbor, nTrain)
	for i := 0; i < nTrain; i++ {
		all[i] = neighbor{index: i, distance: knn.distance(row, knn.X.RawRowView(i))}
	}
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].distance < all[b].distance
	})
	return all[:knn.nNeighbors]
}

// vote fills proba with the (weighted) share of each class among neighbors.
// With distance weighting, exact matches take all the weight.
func (knn *KNeighborsClassifier) vote(nb []neighbor, proba []float64) {
	for c := range proba {
		proba[c] = 0
	}

	exact := false
	if knn.weights == "distance" {
		for _, n := range nb {
			if n.distance == 0 {
				exact = true
				break
			}
		}
	}

	total := 0.0
	for _, n := range nb {
		w := 1.0
		if knn.weights == "distance" {
			switch {
			case exact && n.distance == 0:
				w = 1
			case exact:
				w = 0
			default:
				w = 1 / n.distance
			}
		}
		proba[knn.target[n.index]] += w
		total += w
	}
	for c := range proba {
		proba[c] /= total
	}
}

// PredictProba returns the neighbor vote shares per class.
func (knn *KNeighborsClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := knn.state.RequireFitted("KNeighborsClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	if err := knn.state.CheckFeatures("KNeighborsClassifier.PredictProba", X); err != nil {
		return nil, err
	}

	nSamples, nFeatures := X.Dims()
	out := mat.NewDense(nSamples, len(knn.classes), nil)

	// 各ワーカーは自分の行範囲だけを書き込む
	parallel.ParallelizeWithThreshold(nSamples, parallelThreshold, func(start, end int) {
		row := make([]float64, nFeatures)
		proba := make([]float64, len(knn.classes))
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			knn.vote(knn.neighbors(row), proba)
			out.SetRow(i, proba)
		}
	})
	return out, nil
}

// Predict returns the winning class per row; ties go to the smaller label.
func (knn *KNeighborsClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := knn.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return model.PredictFromProba(proba, knn.classes), nil
}

// Classes returns the sorted class labels seen during Fit.
func (knn *KNeighborsClassifier) Classes() []int {
	return append([]int(nil), knn.classes...)
}

// GetParams returns the model hyperparameters
func (knn *KNeighborsClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_neighbors": knn.nNeighbors,
		"weights":     knn.weights,
		"p":           knn.p,
	}
}

// SetParams sets the model hyperparameters
func (knn *KNeighborsClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_neighbors":
			knn.nNeighbors, err = model.ToInt(key, value)
		case "weights":
			knn.weights, err = model.ToString(key, value)
		case "p":
			knn.p, err = model.ToInt(key, value)
		default:
			return model.UnknownParam("KNeighborsClassifier", key)
		}
		if err != nil {
			return err
		}
	}
	knn.state.Reset()
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters.
func (knn *KNeighborsClassifier) Clone() model.Estimator {
	return NewKNeighborsClassifier(WithNNeighbors(knn.nNeighbors), WithWeights(knn.weights), WithP(knn.p))
}

func (knn *KNeighborsClassifier) String() string {
	return fmt.Sprintf("KNeighborsClassifier(n_neighbors=%d, weights=%s, p=%d)", knn.nNeighbors, knn.weights, knn.p)
}
