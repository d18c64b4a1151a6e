package model_selection

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/core/parallel"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
	"github.com/YuminosukeSato/scigo-tune/pkg/log"
)

// CVScores stores per-split cross-validation results. Times are in seconds.
// TrainScores is nil unless WithReturnTrainScore(true) was given.
type CVScores struct {
	TestScores  []float64
	TrainScores []float64
	FitTimes    []float64
	ScoreTimes  []float64
}

// Mean returns the mean test score.
func (cv *CVScores) Mean() float64 {
	if len(cv.TestScores) == 0 {
		return 0.0
	}
	return stat.Mean(cv.TestScores, nil)
}

// Std returns the population standard deviation of the test scores.
func (cv *CVScores) Std() float64 {
	if len(cv.TestScores) == 0 {
		return 0.0
	}
	return stat.PopStdDev(cv.TestScores, nil)
}

// splitData holds the materialized matrices of one fold. The matrices are
// shared read-only between jobs.
type splitData struct {
	XTrain, yTrain *mat.Dense
	XTest, yTest   *mat.Dense
}

func materialize(X, y mat.Matrix, folds []Fold) []splitData {
	out := make([]splitData, len(folds))
	for i, f := range folds {
		out[i].XTrain, out[i].yTrain = Subset(X, y, f.TrainIndices)
		out[i].XTest, out[i].yTest = Subset(X, y, f.TestIndices)
	}
	return out
}

// fitResult is the outcome of one (candidate, split) job.
type fitResult struct {
	testScore  float64
	trainScore float64
	fitTime    float64
	scoreTime  float64
	warnings   []error
	err        error
}

// fitAndScore fits a fresh clone of est with params on one split and scores it.
// Panics inside Fit, Predict or the scorer are returned as errors.
func fitAndScore(est model.Estimator, params map[string]interface{}, data splitData,
	scorer Scorer, returnTrain bool, op string) fitResult {

	var res fitResult
	clone := est.Clone()
	if len(params) > 0 {
		if err := clone.SetParams(params); err != nil {
			res.err = err
			return res
		}
	}

	start := time.Now()
	err := errors.SafeExecute(op, func() error {
		return clone.Fit(data.XTrain, data.yTrain)
	})
	res.fitTime = time.Since(start).Seconds()
	if err != nil {
		res.err = err
		return res
	}

	start = time.Now()
	err = errors.SafeExecute(op, func() error {
		s, err := scoreCollecting(scorer, clone, data.XTest, data.yTest, &res)
		res.testScore = s
		return err
	})
	res.scoreTime = time.Since(start).Seconds()
	if err != nil {
		res.err = err
		return res
	}

	if returnTrain {
		res.err = errors.SafeExecute(op, func() error {
			s, err := scoreCollecting(scorer, clone, data.XTrain, data.yTrain, &res)
			res.trainScore = s
			return err
		})
	}
	return res
}

func scoreCollecting(scorer Scorer, est model.Estimator, X, y mat.Matrix, res *fitResult) (float64, error) {
	ds, ok := scorer.(deferredScorer)
	if !ok {
		return scorer.Score(est, X, y)
	}
	s, warnings, err := ds.scoreDeferred(est, X, y)
	res.warnings = append(res.warnings, warnings...)
	return s, err
}

// reportScoreWarnings emits each distinct scoring warning once, in job order,
// and logs how many splits raised it.
func reportScoreWarnings(logger log.Logger, results []fitResult) {
	var order []string
	first := map[string]error{}
	count := map[string]int{}
	for _, r := range results {
		for _, w := range r.warnings {
			msg := w.Error()
			if _, seen := first[msg]; !seen {
				first[msg] = w
				order = append(order, msg)
			}
			count[msg]++
		}
	}
	for _, msg := range order {
		errors.Warn(first[msg])
		logger.Debug("Scoring warning repeated across splits",
			log.WarningKey, msg,
			log.SplitsKey, count[msg],
		)
	}
}

// handleFailure applies the error_score policy to a failed job. It returns a
// non-nil error only when the run must abort.
func (c *config) handleFailure(res *fitResult, candidate, split int, params map[string]interface{}) error {
	if res.err == nil {
		return nil
	}
	if c.raiseOnError {
		return errors.NewFitError(candidate, split, params, res.err)
	}
	errors.Warn(errors.NewFitFailedWarning(candidate, split, params, c.errorScore, res.err))
	res.testScore = c.errorScore
	res.trainScore = c.errorScore
	return nil
}

// CrossValidate evaluates est by cross-validation. Each split is fitted on a
// fresh Clone, so est itself is left untouched.
//
//	scores, err := model_selection.CrossValidate(ctx, pipe, X, y,
//	    model_selection.WithCVFolds(5),
//	    model_selection.WithScoring("f1_macro"),
//	)
func CrossValidate(ctx context.Context, est model.Estimator, X, y mat.Matrix, opts ...Option) (*CVScores, error) {
	cfg := newConfig("CrossValidate", opts)

	if _, _, err := model.CheckXY("CrossValidate", X, y); err != nil {
		return nil, err
	}
	scorer, err := GetScorer(cfg.scoring)
	if err != nil {
		return nil, err
	}
	folds, err := cfg.splitter(est).Split(X, y)
	if err != nil {
		return nil, err
	}
	data := materialize(X, y, folds)

	results := make([]fitResult, len(folds))
	err = parallel.ForEach(ctx, len(folds), cfg.nJobs, func(_ context.Context, i int) error {
		res := fitAndScore(est, nil, data[i], scorer, cfg.returnTrainScore, fmt.Sprintf("CrossValidate split %d", i))
		if err := cfg.handleFailure(&res, -1, i, nil); err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	reportScoreWarnings(cfg.logger, results)

	scores := &CVScores{
		TestScores: make([]float64, len(folds)),
		FitTimes:   make([]float64, len(folds)),
		ScoreTimes: make([]float64, len(folds)),
	}
	if cfg.returnTrainScore {
		scores.TrainScores = make([]float64, len(folds))
	}
	for i, r := range results {
		scores.TestScores[i] = r.testScore
		scores.FitTimes[i] = r.fitTime
		scores.ScoreTimes[i] = r.scoreTime
		if cfg.returnTrainScore {
			scores.TrainScores[i] = r.trainScore
		}
	}

	cfg.logger.Debug("Cross-validation finished",
		log.ModelNameKey, model.NameOf(est),
		log.SplitsKey, len(folds),
		log.ScoringKey, scorer.Name(),
		log.ScoreKey, scores.Mean(),
	)
	return scores, nil
}

// CrossValScore returns only the per-split test scores.
func CrossValScore(ctx context.Context, est model.Estimator, X, y mat.Matrix, opts ...Option) ([]float64, error) {
	scores, err := CrossValidate(ctx, est, X, y, opts...)
	if err != nil {
		return nil, err
	}
	return scores.TestScores, nil
}
