// Package scigotune selects hyperparameters and preprocessing steps for
// classifier pipelines by cross-validated grid and randomized search.
//
// scigo-tune offers a scikit-learn-like API: estimators with GetParams,
// SetParams and Clone, pipelines addressed with "<step>__<param>" keys, and
// GridSearchCV / RandomizedSearchCV that evaluate every candidate on every
// split in parallel and refit the winner.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/scigo-tune/datasets"
//	    "github.com/YuminosukeSato/scigo-tune/decomposition"
//	    "github.com/YuminosukeSato/scigo-tune/model_selection"
//	    "github.com/YuminosukeSato/scigo-tune/pipeline"
//	    "github.com/YuminosukeSato/scigo-tune/preprocessing"
//	    "github.com/YuminosukeSato/scigo-tune/sklearn/linear_model"
//	)
//
//	func main() {
//	    iris := datasets.LoadIris()
//
//	    pipe := pipeline.MustNew(
//	        pipeline.NewStep("scale", preprocessing.NewStandardScalerDefault()),
//	        pipeline.NewStep("pca", decomposition.NewPCA()),
//	        pipeline.NewStep("clf", linear_model.NewLogisticRegression()),
//	    )
//
//	    search := model_selection.NewGridSearchCV(pipe, []model_selection.Grid{
//	        {"pca__n_components": {1, 2, 3, 4}, "clf__C": {0.01, 0.1, 1.0, 10.0}},
//	    }, model_selection.WithCVFolds(5), model_selection.WithNJobs(-1))
//
//	    if err := search.Fit(context.Background(), iris.X, iris.Y); err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(model_selection.FormatParams(search.BestParams), search.BestScore)
//	}
//
// # Packages
//
//   - model_selection: splitters, parameter grids and samplers, scorers,
//     CrossValidate, GridSearchCV, RandomizedSearchCV
//   - pipeline: chained transformers ending in an estimator
//   - sklearn/linear_model, sklearn/svm, sklearn/tree, sklearn/neighbors,
//     sklearn/naive_bayes: estimators
//   - preprocessing, decomposition, feature_selection: transformers
//   - metrics: classification and regression metrics
//   - datasets: iris, synthetic classification data, CSV loading
//   - experiment: HCL experiment files and the builtin notebook cells
//   - report: gonum/plot charts of search results
//   - core/model, core/parallel: estimator contracts and worker pools
//   - pkg/errors, pkg/log: typed errors, warnings and zerolog logging
//
// The scigo-tune command (cmd/scigo-tune) runs experiment files:
//
//	scigo-tune list
//	scigo-tune run --name pca_logistic --n-jobs 4 --plot-dir plots
//	scigo-tune run --file experiments.hcl
package scigotune
