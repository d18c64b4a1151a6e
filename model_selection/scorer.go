package model_selection

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/metrics"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// Scorer evaluates a fitted estimator on held-out data. Greater is better for
// every scorer; losses are negated.
type Scorer interface {
	Name() string
	Score(est model.Estimator, X, y mat.Matrix) (float64, error)
}

type vecMetric func(yTrue, yPred *mat.VecDense) (float64, error)

// quietMetric returns its warnings instead of emitting them.
type quietMetric func(yTrue, yPred *mat.VecDense) (float64, []error, error)

// deferredScorer is implemented by scorers whose metric may warn. The search
// collects the warnings of every split and reports each distinct one once.
type deferredScorer interface {
	scoreDeferred(est model.Estimator, X, y mat.Matrix) (float64, []error, error)
}

// predictScorer scores Predict output with a metric.
type predictScorer struct {
	name   string
	sign   float64
	metric vecMetric
	quiet  quietMetric
}

func (s *predictScorer) Name() string { return s.name }

func (s *predictScorer) Score(est model.Estimator, X, y mat.Matrix) (float64, error) {
	v, warnings, err := s.scoreDeferred(est, X, y)
	for _, w := range warnings {
		errors.Warn(w)
	}
	return v, err
}

func (s *predictScorer) scoreDeferred(est model.Estimator, X, y mat.Matrix) (float64, []error, error) {
	p, ok := est.(model.Predictor)
	if !ok {
		return 0, nil, errors.NewValueError("Scorer."+s.name, fmt.Sprintf("%s cannot predict", model.NameOf(est)))
	}
	pred, err := p.Predict(X)
	if err != nil {
		return 0, nil, err
	}
	yTrue, yPred := metrics.ColumnVec(y), metrics.ColumnVec(pred)
	if s.quiet != nil {
		v, warnings, err := s.quiet(yTrue, yPred)
		if err != nil {
			return 0, nil, err
		}
		return s.sign * v, warnings, nil
	}
	v, err := s.metric(yTrue, yPred)
	if err != nil {
		return 0, nil, err
	}
	return s.sign * v, nil, nil
}

// probaScorer scores PredictProba output.
type probaScorer struct {
	name   string
	sign   float64
	metric func(yTrue *mat.VecDense, proba mat.Matrix, classes []int) (float64, error)
}

func (s *probaScorer) Name() string { return s.name }

func (s *probaScorer) Score(est model.Estimator, X, y mat.Matrix) (float64, error) {
	clf, ok := est.(model.Classifier)
	if !ok {
		return 0, errors.NewValueError("Scorer."+s.name, fmt.Sprintf("%s does not provide PredictProba", model.NameOf(est)))
	}
	proba, err := clf.PredictProba(X)
	if err != nil {
		return 0, err
	}
	v, err := s.metric(metrics.ColumnVec(y), proba, clf.Classes())
	if err != nil {
		return 0, err
	}
	return s.sign * v, nil
}

// estimatorScorer defers to the estimator's own Score method and falls back
// to accuracy.
type estimatorScorer struct{}

func (estimatorScorer) Name() string { return "score" }

func (estimatorScorer) Score(est model.Estimator, X, y mat.Matrix) (float64, error) {
	if s, ok := est.(interface {
		Score(X, y mat.Matrix) (float64, error)
	}); ok {
		return s.Score(X, y)
	}
	return scorers["accuracy"].Score(est, X, y)
}

func averaged(metric, average string) quietMetric {
	return func(yTrue, yPred *mat.VecDense) (float64, []error, error) {
		if average == "micro" {
			acc, err := metrics.Accuracy(yTrue, yPred)
			return acc, nil, err
		}
		cs, err := metrics.ComputeClassScores(yTrue, yPred)
		if err != nil {
			return 0, nil, err
		}
		p, r, f, err := cs.Average(average)
		if err != nil {
			return 0, nil, err
		}
		switch metric {
		case "precision":
			return p, cs.Warnings(), nil
		case "recall":
			return r, cs.Warnings(), nil
		default:
			return f, cs.Warnings(), nil
		}
	}
}

func binaryAUC(yTrue *mat.VecDense, proba mat.Matrix, classes []int) (float64, error) {
	if len(classes) != 2 {
		return 0, errors.NewValueError("roc_auc", fmt.Sprintf("requires a binary problem, got %d classes", len(classes)))
	}
	n := yTrue.Len()
	target := mat.NewVecDense(n, nil)
	score := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if int(yTrue.AtVec(i)) == classes[1] {
			target.SetVec(i, 1)
		}
		score.SetVec(i, proba.At(i, 1))
	}
	return metrics.AUC(target, score)
}

var scorers = map[string]Scorer{
	"accuracy":                    &predictScorer{name: "accuracy", sign: 1, metric: metrics.Accuracy},
	"balanced_accuracy":           &predictScorer{name: "balanced_accuracy", sign: 1, metric: metrics.BalancedAccuracy},
	"f1_macro":                    &predictScorer{name: "f1_macro", sign: 1, quiet: averaged("f1", "macro")},
	"f1_weighted":                 &predictScorer{name: "f1_weighted", sign: 1, quiet: averaged("f1", "weighted")},
	"f1_micro":                    &predictScorer{name: "f1_micro", sign: 1, quiet: averaged("f1", "micro")},
	"precision_macro":             &predictScorer{name: "precision_macro", sign: 1, quiet: averaged("precision", "macro")},
	"recall_macro":                &predictScorer{name: "recall_macro", sign: 1, quiet: averaged("recall", "macro")},
	"neg_log_loss":                &probaScorer{name: "neg_log_loss", sign: -1, metric: metrics.LogLoss},
	"roc_auc":                     &probaScorer{name: "roc_auc", sign: 1, metric: binaryAUC},
	"r2":                          &predictScorer{name: "r2", sign: 1, metric: metrics.R2Score},
	"explained_variance":          &predictScorer{name: "explained_variance", sign: 1, metric: metrics.ExplainedVarianceScore},
	"neg_mean_squared_error":      &predictScorer{name: "neg_mean_squared_error", sign: -1, metric: metrics.MSE},
	"neg_root_mean_squared_error": &predictScorer{name: "neg_root_mean_squared_error", sign: -1, metric: metrics.RMSE},
	"neg_mean_absolute_error":     &predictScorer{name: "neg_mean_absolute_error", sign: -1, metric: metrics.MAE},
	"neg_mean_absolute_percentage_error": &predictScorer{
		name: "neg_mean_absolute_percentage_error", sign: -1, metric: metrics.MAPE,
	},
}

// GetScorer looks up a scorer by its scikit-learn name. The empty name
// selects the estimator's own Score method.
func GetScorer(name string) (Scorer, error) {
	if name == "" {
		return estimatorScorer{}, nil
	}
	s, ok := scorers[name]
	if !ok {
		return nil, errors.NewValidationError("scoring",
			fmt.Sprintf("unknown scorer; valid options are %v", ScorerNames()), name)
	}
	return s, nil
}

// ScorerNames lists the registered scorer names in sorted order.
func ScorerNames() []string {
	names := make([]string, 0, len(scorers))
	for n := range scorers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
