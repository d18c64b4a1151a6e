package model_selection

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/core/parallel"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
	"github.com/YuminosukeSato/scigo-tune/pkg/log"
)

// candidates is implemented by ParameterGrid and ParameterSampler.
type candidates interface {
	Len() int
	At(i int) map[string]interface{}
}

// baseSearch holds what GridSearchCV and RandomizedSearchCV share: the
// configuration, the evaluation loop and the fitted results.
type baseSearch struct {
	name      string
	estimator model.Estimator
	cfg       config

	// 学習結果
	CVResults     *CVResults
	BestIndex     int
	BestParams    map[string]interface{}
	BestScore     float64
	BestEstimator model.Estimator
	NSplits       int
	RefitTime     float64

	scorer Scorer
	fitted bool
}

func newBaseSearch(name string, estimator model.Estimator, opts []Option) baseSearch {
	return baseSearch{
		name:      name,
		estimator: estimator,
		cfg:       newConfig(name, opts),
		BestIndex: -1,
	}
}

// run evaluates every (candidate, split) pair on the worker pool, ranks the
// candidates and refits the best one.
func (s *baseSearch) run(ctx context.Context, X, y mat.Matrix, source candidates) error {
	s.fitted = false
	s.BestEstimator = nil

	if s.estimator == nil {
		return errors.NewValidationError("estimator", "must not be nil", nil)
	}
	nSamples, nFeatures, err := model.CheckXY(s.name+".Fit", X, y)
	if err != nil {
		return err
	}
	scorer, err := GetScorer(s.cfg.scoring)
	if err != nil {
		return err
	}
	folds, err := s.cfg.splitter(s.estimator).Split(X, y)
	if err != nil {
		return err
	}
	data := materialize(X, y, folds)

	nCandidates := source.Len()
	nSplits := len(folds)
	params := make([]map[string]interface{}, nCandidates)
	for i := range params {
		params[i] = source.At(i)
	}

	logger := s.cfg.logger.With(
		log.ModelNameKey, model.NameOf(s.estimator),
		log.OperationKey, log.OperationSearch,
	)
	logger.Info("Search started",
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.CandidatesKey, nCandidates,
		log.SplitsKey, nSplits,
		log.JobsKey, parallel.Workers(s.cfg.nJobs),
		log.ScoringKey, scorer.Name(),
	)
	start := time.Now()

	results := make([]fitResult, nCandidates*nSplits)
	err = parallel.ForEach(ctx, len(results), s.cfg.nJobs, func(_ context.Context, j int) error {
		c, sp := j/nSplits, j%nSplits
		op := fmt.Sprintf("%s candidate %d split %d", s.name, c, sp)
		res := fitAndScore(s.estimator, params[c], data[sp], scorer, s.cfg.returnTrainScore, op)
		if err := s.cfg.handleFailure(&res, c, sp, params[c]); err != nil {
			return err
		}
		if logger.Enabled(ctx, log.LevelDebug) {
			logger.Debug("Candidate evaluated",
				log.CandidateKey, c,
				log.SplitKey, sp,
				log.ScoreKey, res.testScore,
				log.ParamsKey, FormatParams(params[c]),
			)
		}
		results[j] = res
		return nil
	})
	if err != nil {
		logger.Error("Search aborted", err)
		return err
	}
	reportScoreWarnings(logger, results)

	s.scorer = scorer
	s.NSplits = nSplits
	s.CVResults = newCVResults(scorer.Name(), params, results, nSplits, s.cfg.returnTrainScore)
	s.BestIndex = s.CVResults.BestIndex()
	s.BestParams = s.CVResults.Params[s.BestIndex]
	s.BestScore = s.CVResults.MeanTestScore[s.BestIndex]

	for _, m := range s.CVResults.MeanTestScore {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			logger.Warn("One or more of the test scores are non-finite")
			break
		}
	}

	if s.cfg.refit {
		best := s.estimator.Clone()
		if err := best.SetParams(s.BestParams); err != nil {
			return errors.Wrapf(err, "%s: refit with best params", s.name)
		}
		refitStart := time.Now()
		err := errors.SafeExecute(s.name+".refit", func() error {
			return best.Fit(X, y)
		})
		if err != nil {
			return errors.Wrapf(err, "%s: refit with best params", s.name)
		}
		s.RefitTime = time.Since(refitStart).Seconds()
		s.BestEstimator = best
		logger.Debug("Best candidate refitted",
			log.OperationKey, log.OperationRefit,
			log.PhaseKey, log.PhaseTraining,
			log.DurationMsKey, time.Since(refitStart).Milliseconds(),
		)
	}
	s.fitted = true

	logger.Info("Search finished",
		log.RankKey, 1,
		log.CandidateKey, s.BestIndex,
		log.ScoreKey, s.BestScore,
		log.ParamsKey, FormatParams(s.BestParams),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// IsFitted reports whether Fit completed.
func (s *baseSearch) IsFitted() bool { return s.fitted }

// GetCVResults returns the per-candidate results of the last Fit.
func (s *baseSearch) GetCVResults() *CVResults { return s.CVResults }

// GetBestParams returns the parameters of the rank-1 candidate.
func (s *baseSearch) GetBestParams() map[string]interface{} { return s.BestParams }

// GetBestScore returns the mean test score of the rank-1 candidate.
func (s *baseSearch) GetBestScore() float64 { return s.BestScore }

// GetBestEstimator returns the refitted best estimator, or nil when refit
// was disabled.
func (s *baseSearch) GetBestEstimator() model.Estimator { return s.BestEstimator }

func (s *baseSearch) best(method string) (model.Estimator, error) {
	if !s.fitted {
		return nil, errors.NewNotFittedError(s.name, method)
	}
	if s.BestEstimator == nil {
		return nil, errors.NewNotFittedError(s.name, method+" (refit=false)")
	}
	return s.BestEstimator, nil
}

// Predict calls Predict on the refitted best estimator.
func (s *baseSearch) Predict(X mat.Matrix) (mat.Matrix, error) {
	est, err := s.best("Predict")
	if err != nil {
		return nil, err
	}
	p, ok := est.(model.Predictor)
	if !ok {
		return nil, errors.NewValueError(s.name+".Predict", model.NameOf(est)+" cannot predict")
	}
	return p.Predict(X)
}

// PredictProba calls PredictProba on the refitted best estimator.
func (s *baseSearch) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	est, err := s.best("PredictProba")
	if err != nil {
		return nil, err
	}
	c, ok := est.(model.Classifier)
	if !ok {
		return nil, errors.NewValueError(s.name+".PredictProba", model.NameOf(est)+" does not provide PredictProba")
	}
	return c.PredictProba(X)
}

// Classes returns the class labels of the refitted best estimator.
func (s *baseSearch) Classes() []int {
	if c, ok := s.BestEstimator.(model.Classifier); ok {
		return c.Classes()
	}
	return nil
}

// Score evaluates the refitted best estimator with the search's scorer.
func (s *baseSearch) Score(X, y mat.Matrix) (float64, error) {
	est, err := s.best("Score")
	if err != nil {
		return 0, err
	}
	return s.scorer.Score(est, X, y)
}

// GridSearchCV exhaustively evaluates every candidate of a parameter grid by
// cross-validation.
//
//	search := model_selection.NewGridSearchCV(pipe, []model_selection.Grid{
//	    {"reduce_dim": {pca, kbest}, "clf__C": {0.1, 1.0, 10.0}},
//	}, model_selection.WithCVFolds(5), model_selection.WithNJobs(-1))
//	err := search.Fit(ctx, X, y)
type GridSearchCV struct {
	baseSearch
	ParamGrid []Grid
}

// NewGridSearchCV creates a grid search. The grid is validated by Fit.
func NewGridSearchCV(estimator model.Estimator, paramGrid []Grid, opts ...Option) *GridSearchCV {
	return &GridSearchCV{
		baseSearch: newBaseSearch("GridSearchCV", estimator, opts),
		ParamGrid:  paramGrid,
	}
}

// Fit runs the search. Cancelling ctx stops dispatching new fits and returns
// ctx.Err().
func (g *GridSearchCV) Fit(ctx context.Context, X, y mat.Matrix) error {
	pg, err := NewParameterGrid(g.ParamGrid...)
	if err != nil {
		return err
	}
	return g.run(ctx, X, y, pg)
}

func (g *GridSearchCV) String() string {
	return fmt.Sprintf("GridSearchCV(estimator=%s, candidates=%d)", model.NameOf(g.estimator), countGrid(g.ParamGrid))
}

func countGrid(grids []Grid) int {
	pg, err := NewParameterGrid(grids...)
	if err != nil {
		return 0
	}
	return pg.Len()
}

// RandomizedSearchCV evaluates NIter candidates drawn from
// ParamDistributions. The draw is seeded by WithRandomState.
type RandomizedSearchCV struct {
	baseSearch
	ParamDistributions Space
	NIter              int
}

// NewRandomizedSearchCV creates a randomized search.
func NewRandomizedSearchCV(estimator model.Estimator, distributions Space, nIter int, opts ...Option) *RandomizedSearchCV {
	return &RandomizedSearchCV{
		baseSearch:         newBaseSearch("RandomizedSearchCV", estimator, opts),
		ParamDistributions: distributions,
		NIter:              nIter,
	}
}

// Fit runs the search. Cancelling ctx stops dispatching new fits and returns
// ctx.Err().
func (r *RandomizedSearchCV) Fit(ctx context.Context, X, y mat.Matrix) error {
	ps, err := NewParameterSampler(r.ParamDistributions, r.NIter, r.cfg.randomState)
	if err != nil {
		return err
	}
	return r.run(ctx, X, y, ps)
}

func (r *RandomizedSearchCV) String() string {
	return fmt.Sprintf("RandomizedSearchCV(estimator=%s, n_iter=%d, random_state=%d)",
		model.NameOf(r.estimator), r.NIter, r.cfg.randomState)
}
