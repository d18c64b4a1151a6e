// Package feature_selection provides univariate and variance based feature
// selectors usable as pipeline steps.
package feature_selection

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// ScoreFunc computes one score and one p-value per feature.
type ScoreFunc func(X, y mat.Matrix) (scores, pvalues []float64, err error)

// FClassif computes the ANOVA F-value between each feature and the class
// labels. Features constant within every class get an F of +Inf (or NaN when
// the feature is constant overall).
func FClassif(X, y mat.Matrix) ([]float64, []float64, error) {
	n, d, err := model.CheckXY("FClassif", X, y)
	if err != nil {
		return nil, nil, err
	}
	labels := model.Labels(y)
	classes := model.UniqueClasses(labels)
	k := len(classes)
	if k < 2 {
		return nil, nil, errors.NewValueError("FClassif", "at least two classes are required")
	}
	if n <= k {
		return nil, nil, errors.NewValueError("FClassif", "need more samples than classes")
	}
	classIdx := model.ClassIndex(classes)

	counts := make([]float64, k)
	for _, l := range labels {
		counts[classIdx[l]]++
	}

	dfBetween := float64(k - 1)
	dfWithin := float64(n - k)
	dist := distuv.F{D1: dfBetween, D2: dfWithin}

	scores := make([]float64, d)
	pvalues := make([]float64, d)
	sums := make([]float64, k)

	for j := 0; j < d; j++ {
		for c := range sums {
			sums[c] = 0
		}
		total := 0.0
		for i := 0; i < n; i++ {
			v := X.At(i, j)
			sums[classIdx[labels[i]]] += v
			total += v
		}
		grand := total / float64(n)

		ssBetween := 0.0
		for c := 0; c < k; c++ {
			diff := sums[c]/counts[c] - grand
			ssBetween += counts[c] * diff * diff
		}
		ssWithin := 0.0
		for i := 0; i < n; i++ {
			c := classIdx[labels[i]]
			diff := X.At(i, j) - sums[c]/counts[c]
			ssWithin += diff * diff
		}

		switch {
		case ssWithin > 0:
			scores[j] = (ssBetween / dfBetween) / (ssWithin / dfWithin)
			pvalues[j] = dist.Survival(scores[j])
		case ssBetween > 0:
			scores[j] = math.Inf(1)
			pvalues[j] = 0
		default:
			scores[j] = math.NaN()
			pvalues[j] = math.NaN()
		}
	}

	return scores, pvalues, nil
}

// Chi2 computes chi-squared statistics between each non-negative feature and
// the class labels, treating feature values as frequencies.
func Chi2(X, y mat.Matrix) ([]float64, []float64, error) {
	n, d, err := model.CheckXY("Chi2", X, y)
	if err != nil {
		return nil, nil, err
	}
	labels := model.Labels(y)
	classes := model.UniqueClasses(labels)
	classIdx := model.ClassIndex(classes)
	k := len(classes)

	observed := mat.NewDense(k, d, nil)
	featureTotals := make([]float64, d)
	classCounts := make([]float64, k)

	for i := 0; i < n; i++ {
		c := classIdx[labels[i]]
		classCounts[c]++
		for j := 0; j < d; j++ {
			v := X.At(i, j)
			if v < 0 {
				return nil, nil, errors.NewValueError("Chi2", "input X must be non-negative")
			}
			observed.Set(c, j, observed.At(c, j)+v)
			featureTotals[j] += v
		}
	}

	dist := distuv.ChiSquared{K: math.Max(float64(k-1), 1)}
	scores := make([]float64, d)
	pvalues := make([]float64, d)
	for j := 0; j < d; j++ {
		chi := 0.0
		for c := 0; c < k; c++ {
			expected := classCounts[c] / float64(n) * featureTotals[j]
			if expected == 0 {
				continue
			}
			diff := observed.At(c, j) - expected
			chi += diff * diff / expected
		}
		scores[j] = chi
		pvalues[j] = dist.Survival(chi)
	}
	return scores, pvalues, nil
}

var scoreFuncs = map[string]ScoreFunc{
	"f_classif": FClassif,
	"chi2":      Chi2,
}
