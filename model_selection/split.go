// Package model_selection provides cross-validation splitters, search-space
// enumeration and the cross-validated GridSearchCV / RandomizedSearchCV.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// Splitter defines interface for cross-validation splitters
type Splitter interface {
	Split(X, y mat.Matrix) ([]Fold, error)
	GetNSplits() int
}

// Fold represents a single train/test partition. Both index slices are sorted.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomSeed int) *KFold {
	return &KFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold. The first n % k folds get
// one extra test sample.
func (kf *KFold) Split(X, _ mat.Matrix) ([]Fold, error) {
	nSamples, err := checkSplitSize("KFold", X, kf.NSplits)
	if err != nil {
		return nil, err
	}

	indices := arange(nSamples)
	if kf.Shuffle {
		newRand(kf.RandomSeed).Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	assignment := make([]int, nSamples)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits

	current := 0
	for f := 0; f < kf.NSplits; f++ {
		testSize := foldSize
		if f < remainder {
			testSize++
		}
		for _, idx := range indices[current : current+testSize] {
			assignment[idx] = f
		}
		current += testSize
	}

	return foldsFromAssignment(assignment, kf.NSplits), nil
}

func (kf *KFold) String() string {
	return fmt.Sprintf("KFold(n_splits=%d, shuffle=%t, random_state=%d)", kf.NSplits, kf.Shuffle, kf.RandomSeed)
}

// StratifiedKFold implements stratified k-fold cross-validation.
//
// Samples of each class are dealt round-robin over the folds, continuing from
// where the previous class stopped, so every fold receives floor or ceil of
// n_class / k samples of each class and the fold sizes differ by at most one.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed int) *StratifiedKFold {
	return &StratifiedKFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold. A class with
// fewer members than n_splits only triggers a SplitWarning.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]Fold, error) {
	nSamples, err := checkSplitSize("StratifiedKFold", X, skf.NSplits)
	if err != nil {
		return nil, err
	}
	if y == nil {
		return nil, errors.NewValueError("StratifiedKFold.Split", "y is required for stratification")
	}
	if yRows, _ := y.Dims(); yRows != nSamples {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", nSamples, yRows, 0)
	}

	classes, byClass := groupByClass(model.Labels(y))

	minCount := nSamples
	for _, c := range classes {
		if len(byClass[c]) < minCount {
			minCount = len(byClass[c])
		}
	}
	if minCount < skf.NSplits {
		errors.Warn(errors.NewSplitWarning("StratifiedKFold",
			fmt.Sprintf("the least populated class has only %d members, which is less than n_splits=%d", minCount, skf.NSplits)))
	}

	var r *rand.Rand
	if skf.Shuffle {
		r = newRand(skf.RandomSeed)
	}

	assignment := make([]int, nSamples)
	offset := 0
	for _, c := range classes {
		members := byClass[c]
		if r != nil {
			r.Shuffle(len(members), func(i, j int) {
				members[i], members[j] = members[j], members[i]
			})
		}
		for j, idx := range members {
			assignment[idx] = (offset + j) % skf.NSplits
		}
		offset += len(members)
	}

	return foldsFromAssignment(assignment, skf.NSplits), nil
}

func (skf *StratifiedKFold) String() string {
	return fmt.Sprintf("StratifiedKFold(n_splits=%d, shuffle=%t, random_state=%d)", skf.NSplits, skf.Shuffle, skf.RandomSeed)
}

// ShuffleSplit draws NSplits independent random permutations and puts the
// first ceil(TestSize * n) samples of each into the test set.
type ShuffleSplit struct {
	NSplits    int
	TestSize   float64
	RandomSeed int
}

// NewShuffleSplit creates a new shuffle-split splitter
func NewShuffleSplit(nSplits int, testSize float64, randomSeed int) *ShuffleSplit {
	return &ShuffleSplit{
		NSplits:    nSplits,
		TestSize:   testSize,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (ss *ShuffleSplit) GetNSplits() int {
	return ss.NSplits
}

// Split generates the random train/test partitions.
func (ss *ShuffleSplit) Split(X, _ mat.Matrix) ([]Fold, error) {
	if ss.NSplits < 1 {
		return nil, errors.NewValidationError("n_splits", "must be at least 1", ss.NSplits)
	}
	nSamples, _, err := model.CheckX("ShuffleSplit.Split", X)
	if err != nil {
		return nil, err
	}
	nTest, err := testCount(nSamples, ss.TestSize)
	if err != nil {
		return nil, err
	}

	r := newRand(ss.RandomSeed)
	folds := make([]Fold, ss.NSplits)
	for s := range folds {
		perm := r.Perm(nSamples)
		test := append([]int(nil), perm[:nTest]...)
		train := append([]int(nil), perm[nTest:]...)
		sort.Ints(test)
		sort.Ints(train)
		folds[s] = Fold{TrainIndices: train, TestIndices: test}
	}
	return folds, nil
}

func (ss *ShuffleSplit) String() string {
	return fmt.Sprintf("ShuffleSplit(n_splits=%d, test_size=%g, random_state=%d)", ss.NSplits, ss.TestSize, ss.RandomSeed)
}

// TrainTestSplit splits X and y into a random train and test subset.
// With stratify the test set holds round(testSize * n_class) samples of every
// class (at least one whenever the class has two or more members).
func TrainTestSplit(X, y mat.Matrix, testSize float64, seed int, stratify bool) (XTrain, XTest, yTrain, yTest *mat.Dense, err error) {
	nSamples, _, err := model.CheckXY("TrainTestSplit", X, y)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	nTest, err := testCount(nSamples, testSize)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	r := newRand(seed)
	var train, test []int
	if stratify {
		classes, byClass := groupByClass(model.Labels(y))
		for _, c := range classes {
			members := byClass[c]
			r.Shuffle(len(members), func(i, j int) {
				members[i], members[j] = members[j], members[i]
			})
			k := int(math.Round(testSize * float64(len(members))))
			if k == 0 && len(members) > 1 {
				k = 1
			}
			if k == len(members) {
				k--
			}
			test = append(test, members[:k]...)
			train = append(train, members[k:]...)
		}
		if len(test) == 0 || len(train) == 0 {
			return nil, nil, nil, nil, errors.NewValidationError("test_size",
				"stratified split leaves an empty train or test set", testSize)
		}
	} else {
		perm := r.Perm(nSamples)
		test = perm[:nTest]
		train = perm[nTest:]
	}
	sort.Ints(train)
	sort.Ints(test)

	XTrain, yTrain = Subset(X, y, train)
	XTest, yTest = Subset(X, y, test)
	return XTrain, XTest, yTrain, yTest, nil
}

// Subset copies the rows of X (and y, when non-nil) selected by indices, in
// the order given.
func Subset(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.Dense) {
	take := func(m mat.Matrix) *mat.Dense {
		_, c := m.Dims()
		out := mat.NewDense(len(indices), c, nil)
		row := make([]float64, c)
		for i, idx := range indices {
			out.SetRow(i, mat.Row(row, idx, m))
		}
		return out
	}
	if y == nil {
		return take(X), nil
	}
	return take(X), take(y)
}

func checkSplitSize(name string, X mat.Matrix, nSplits int) (int, error) {
	if nSplits < 2 {
		return 0, errors.NewValidationError("n_splits", "must be at least 2", nSplits)
	}
	nSamples, _, err := model.CheckX(name+".Split", X)
	if err != nil {
		return 0, err
	}
	if nSplits > nSamples {
		return 0, errors.NewValidationError("n_splits",
			fmt.Sprintf("cannot be greater than the number of samples (%d)", nSamples), nSplits)
	}
	return nSamples, nil
}

func testCount(nSamples int, testSize float64) (int, error) {
	if !(testSize > 0 && testSize < 1) {
		return 0, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(nSamples)))
	if nTest >= nSamples {
		return 0, errors.NewValidationError("test_size",
			fmt.Sprintf("leaves no training samples out of %d", nSamples), testSize)
	}
	return nTest, nil
}

func foldsFromAssignment(assignment []int, nSplits int) []Fold {
	folds := make([]Fold, nSplits)
	for idx, f := range assignment {
		folds[f].TestIndices = append(folds[f].TestIndices, idx)
		for g := range folds {
			if g != f {
				folds[g].TrainIndices = append(folds[g].TrainIndices, idx)
			}
		}
	}
	return folds
}

func groupByClass(labels []int) ([]int, map[int][]int) {
	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	return model.UniqueClasses(labels), byClass
}

func arange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newRand(seed int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}
