package experiment

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/decomposition"
	"github.com/YuminosukeSato/scigo-tune/feature_selection"
	"github.com/YuminosukeSato/scigo-tune/pipeline"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
	"github.com/YuminosukeSato/scigo-tune/preprocessing"
	"github.com/YuminosukeSato/scigo-tune/sklearn/linear_model"
	"github.com/YuminosukeSato/scigo-tune/sklearn/naive_bayes"
	"github.com/YuminosukeSato/scigo-tune/sklearn/neighbors"
	"github.com/YuminosukeSato/scigo-tune/sklearn/svm"
	"github.com/YuminosukeSato/scigo-tune/sklearn/tree"
)

// registry maps the names used in experiment files to default-constructed
// estimators.
var registry = map[string]func() model.Estimator{
	"standard_scaler":     func() model.Estimator { return preprocessing.NewStandardScalerDefault() },
	"minmax_scaler":       func() model.Estimator { return preprocessing.NewMinMaxScalerDefault() },
	"pca":                 func() model.Estimator { return decomposition.NewPCA() },
	"select_kbest":        func() model.Estimator { return feature_selection.NewSelectKBest() },
	"variance_threshold":  func() model.Estimator { return feature_selection.NewVarianceThreshold(0) },
	"logistic_regression": func() model.Estimator { return linear_model.NewLogisticRegression() },
	"decision_tree":       func() model.Estimator { return tree.NewDecisionTreeClassifier() },
	"knn":                 func() model.Estimator { return neighbors.NewKNeighborsClassifier() },
	"gaussian_nb":         func() model.Estimator { return naive_bayes.NewGaussianNB() },
	"linear_svc":          func() model.Estimator { return svm.NewLinearSVC() },
}

// NewEstimator builds a registered estimator and applies params.
// "passthrough" yields a nil estimator, which a pipeline treats as an
// identity step.
func NewEstimator(name string, params map[string]interface{}) (model.Estimator, error) {
	if name == pipeline.PassthroughName {
		if len(params) > 0 {
			return nil, errors.NewValidationError(name, "passthrough takes no params", params)
		}
		return nil, nil
	}
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.NewValidationError("estimator",
			fmt.Sprintf("unknown estimator; valid options are %v", EstimatorNames()), name)
	}
	est := ctor()
	if len(params) > 0 {
		if err := est.SetParams(params); err != nil {
			return nil, errors.Wrapf(err, "estimator %q", name)
		}
	}
	return est, nil
}

// EstimatorNames lists the registered names, passthrough included.
func EstimatorNames() []string {
	names := make([]string, 0, len(registry)+1)
	for n := range registry {
		names = append(names, n)
	}
	names = append(names, pipeline.PassthroughName)
	sort.Strings(names)
	return names
}
