package model_selection

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/datasets"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

func column(n int) *mat.Dense {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return mat.NewDense(n, 1, data)
}

func labelsOf(values ...int) *mat.Dense {
	data := make([]float64, len(values))
	for i, v := range values {
		data[i] = float64(v)
	}
	return mat.NewDense(len(values), 1, data)
}

// assertPartition checks that the test folds partition [0, n) and that train is
// the complement of test in every fold.
func assertPartition(t *testing.T, folds []Fold, n int) {
	t.Helper()
	seen := make([]int, n)
	for f, fold := range folds {
		assert.True(t, sort.IntsAreSorted(fold.TestIndices), "fold %d test not sorted", f)
		assert.True(t, sort.IntsAreSorted(fold.TrainIndices), "fold %d train not sorted", f)
		assert.Equal(t, n, len(fold.TestIndices)+len(fold.TrainIndices), "fold %d", f)

		inTest := map[int]bool{}
		for _, i := range fold.TestIndices {
			inTest[i] = true
			seen[i]++
		}
		for _, i := range fold.TrainIndices {
			assert.False(t, inTest[i], "fold %d: index %d is in train and test", f, i)
		}
	}
	for i, c := range seen {
		assert.Equal(t, 1, c, "index %d appears in %d test folds", i, c)
	}
}

func TestKFold(t *testing.T) {
	X := column(10)

	folds, err := NewKFold(3, false, 0).Split(X, nil)
	require.NoError(t, err)
	require.Len(t, folds, 3)
	assertPartition(t, folds, 10)

	assert.Equal(t, []int{0, 1, 2, 3}, folds[0].TestIndices)
	assert.Equal(t, []int{4, 5, 6}, folds[1].TestIndices)
	assert.Equal(t, []int{7, 8, 9}, folds[2].TestIndices)
}

func TestKFoldShuffleDeterministic(t *testing.T) {
	X := column(20)

	a, err := NewKFold(4, true, 42).Split(X, nil)
	require.NoError(t, err)
	b, err := NewKFold(4, true, 42).Split(X, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assertPartition(t, a, 20)

	plain, err := NewKFold(4, false, 42).Split(X, nil)
	require.NoError(t, err)
	assert.NotEqual(t, plain, a, "shuffled folds should differ from contiguous folds")
}

func TestSplitValidation(t *testing.T) {
	X := column(5)
	y := labelsOf(0, 1, 0, 1, 0)

	tests := []struct {
		name     string
		splitter Splitter
	}{
		{"kfold one split", NewKFold(1, false, 0)},
		{"kfold more splits than samples", NewKFold(6, false, 0)},
		{"stratified one split", NewStratifiedKFold(1, false, 0)},
		{"stratified more splits than samples", NewStratifiedKFold(6, false, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.splitter.Split(X, y)
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, "n_splits", ve.ParamName)
		})
	}
}

func TestStratifiedKFold(t *testing.T) {
	// 7 of class 0, 5 of class 1, 3 of class 2
	y := labelsOf(0, 1, 0, 2, 0, 1, 0, 1, 0, 2, 0, 1, 0, 1, 2)
	X := column(15)

	folds, err := NewStratifiedKFold(3, true, 1).Split(X, y)
	require.NoError(t, err)
	assertPartition(t, folds, 15)

	totals := map[int]int{0: 7, 1: 5, 2: 3}
	for f, fold := range folds {
		counts := map[int]int{}
		for _, i := range fold.TestIndices {
			counts[int(y.At(i, 0))]++
		}
		for class, total := range totals {
			lo, hi := total/3, (total+2)/3
			assert.GreaterOrEqual(t, counts[class], lo, "fold %d class %d", f, class)
			assert.LessOrEqual(t, counts[class], hi, "fold %d class %d", f, class)
		}
		assert.Equal(t, 5, len(fold.TestIndices), "fold %d", f)
	}
}

func TestStratifiedKFoldSmallClassWarns(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	y := labelsOf(0, 0, 0, 0, 0, 1, 1)
	folds, err := NewStratifiedKFold(3, false, 0).Split(column(7), y)
	require.NoError(t, err)
	assertPartition(t, folds, 7)

	require.Len(t, warnings, 1)
	var sw *errors.SplitWarning
	assert.True(t, errors.As(warnings[0], &sw))
}

func TestStratifiedKFoldRequiresY(t *testing.T) {
	_, err := NewStratifiedKFold(2, false, 0).Split(column(4), nil)
	assert.Error(t, err)

	_, err = NewStratifiedKFold(2, false, 0).Split(column(4), labelsOf(0, 1, 0))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestShuffleSplit(t *testing.T) {
	ss := NewShuffleSplit(4, 0.25, 3)
	folds, err := ss.Split(column(10), nil)
	require.NoError(t, err)
	require.Len(t, folds, 4)
	assert.Equal(t, 4, ss.GetNSplits())

	for _, fold := range folds {
		assert.Len(t, fold.TestIndices, 3)
		assert.Len(t, fold.TrainIndices, 7)
		assertPartition(t, []Fold{fold, {TestIndices: fold.TrainIndices, TrainIndices: fold.TestIndices}}, 10)
	}

	again, err := NewShuffleSplit(4, 0.25, 3).Split(column(10), nil)
	require.NoError(t, err)
	assert.Equal(t, folds, again)

	_, err = NewShuffleSplit(4, 1.5, 3).Split(column(10), nil)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestTrainTestSplit(t *testing.T) {
	iris := datasets.LoadIris()

	t.Run("stratified", func(t *testing.T) {
		XTrain, XTest, yTrain, yTest, err := TrainTestSplit(iris.X, iris.Y, 0.2, 0, true)
		require.NoError(t, err)

		rTrain, cTrain := XTrain.Dims()
		rTest, _ := XTest.Dims()
		assert.Equal(t, 120, rTrain)
		assert.Equal(t, 4, cTrain)
		assert.Equal(t, 30, rTest)

		counts := map[float64]int{}
		for i := 0; i < rTest; i++ {
			counts[yTest.At(i, 0)]++
		}
		assert.Equal(t, map[float64]int{0: 10, 1: 10, 2: 10}, counts)

		r, _ := yTrain.Dims()
		assert.Equal(t, 120, r)
	})

	t.Run("plain is deterministic", func(t *testing.T) {
		_, XTest1, _, _, err := TrainTestSplit(iris.X, iris.Y, 0.3, 5, false)
		require.NoError(t, err)
		_, XTest2, _, _, err := TrainTestSplit(iris.X, iris.Y, 0.3, 5, false)
		require.NoError(t, err)
		assert.True(t, mat.Equal(XTest1, XTest2))

		r, _ := XTest1.Dims()
		assert.Equal(t, 45, r)
	})

	t.Run("invalid test size", func(t *testing.T) {
		_, _, _, _, err := TrainTestSplit(iris.X, iris.Y, 0, 0, false)
		assert.Error(t, err)
	})
}

func TestSubset(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		0, 1,
		2, 3,
		4, 5,
		6, 7,
	})
	y := labelsOf(10, 11, 12, 13)

	xs, ys := Subset(X, y, []int{3, 1})
	assert.Equal(t, []float64{6, 7, 2, 3}, xs.RawMatrix().Data)
	assert.Equal(t, []float64{13, 11}, ys.RawMatrix().Data)

	xs, ys = Subset(X, nil, []int{0})
	assert.Equal(t, []float64{0, 1}, xs.RawMatrix().Data)
	assert.Nil(t, ys)
}
