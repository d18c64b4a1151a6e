package model

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// CheckXY validates a supervised training pair and returns its shape.
func CheckXY(op string, X, y mat.Matrix) (nSamples, nFeatures int, err error) {
	if X == nil {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	nSamples, nFeatures = X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if y == nil {
		return 0, 0, errors.NewValueError(op, "y is required")
	}
	yRows, yCols := y.Dims()
	if yRows != nSamples {
		return 0, 0, errors.NewDimensionError(op, nSamples, yRows, 0)
	}
	if yCols != 1 {
		return 0, 0, errors.NewDimensionError(op, 1, yCols, 1)
	}
	return nSamples, nFeatures, nil
}

// CheckX validates a feature matrix and returns its shape.
func CheckX(op string, X mat.Matrix) (nSamples, nFeatures int, err error) {
	if X == nil {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	nSamples, nFeatures = X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	return nSamples, nFeatures, nil
}

// Labels extracts integer class labels from a column vector.
func Labels(y mat.Matrix) []int {
	n, _ := y.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = int(y.At(i, 0))
	}
	return out
}

// UniqueClasses returns the sorted distinct labels.
func UniqueClasses(labels []int) []int {
	seen := make(map[int]struct{}, 8)
	classes := make([]int, 0, 8)
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			classes = append(classes, l)
		}
	}
	sort.Ints(classes)
	return classes
}

// ClassIndex maps each label to its position in classes.
func ClassIndex(classes []int) map[int]int {
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return idx
}

// PredictFromProba picks the most probable class for each row; ties go to
// the lower class index.
func PredictFromProba(proba mat.Matrix, classes []int) *mat.Dense {
	n, k := proba.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(classes[best]))
	}
	return out
}

// MeanAccuracy returns the fraction of rows where pred and y agree as
// integer labels.
func MeanAccuracy(pred, y mat.Matrix) float64 {
	n, _ := y.Dims()
	if n == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < n; i++ {
		if int(pred.At(i, 0)) == int(y.At(i, 0)) {
			correct++
		}
	}
	return float64(correct) / float64(n)
}
