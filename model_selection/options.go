package model_selection

import (
	"math"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/log"
)

// DefaultCVFolds is the number of folds used when no splitter is given.
const DefaultCVFolds = 5

// config holds the settings shared by CrossValidate and the searches.
type config struct {
	cv               Splitter
	cvFolds          int
	scoring          string
	nJobs            int
	refit            bool
	returnTrainScore bool
	errorScore       float64
	raiseOnError     bool
	logger           log.Logger
	randomState      int
}

func defaultConfig() config {
	return config{
		cvFolds:    DefaultCVFolds,
		nJobs:      1,
		refit:      true,
		errorScore: math.NaN(),
	}
}

// Option configures CrossValidate, GridSearchCV and RandomizedSearchCV.
type Option func(*config)

// WithCV sets an explicit splitter.
func WithCV(cv Splitter) Option {
	return func(c *config) {
		c.cv = cv
	}
}

// WithCVFolds sets the number of folds of the default splitter:
// StratifiedKFold for classifiers, KFold otherwise. Ignored when WithCV is set.
func WithCVFolds(k int) Option {
	return func(c *config) {
		c.cvFolds = k
	}
}

// WithScoring selects a scorer by name (see ScorerNames). The empty name uses
// the estimator's Score method.
func WithScoring(name string) Option {
	return func(c *config) {
		c.scoring = name
	}
}

// WithNJobs bounds the number of concurrent fits. n <= 0 uses every CPU.
func WithNJobs(n int) Option {
	return func(c *config) {
		c.nJobs = n
	}
}

// WithRefit controls whether the best candidate is refitted on the full data.
func WithRefit(refit bool) Option {
	return func(c *config) {
		c.refit = refit
	}
}

// WithReturnTrainScore also scores every split on its training part.
func WithReturnTrainScore(v bool) Option {
	return func(c *config) {
		c.returnTrainScore = v
	}
}

// WithErrorScore sets the score recorded for a failed fit (default NaN).
// A FitFailedWarning is emitted for each failure.
func WithErrorScore(score float64) Option {
	return func(c *config) {
		c.errorScore = score
		c.raiseOnError = false
	}
}

// WithErrorScoreRaise aborts the whole run on the first failed fit.
func WithErrorScoreRaise() Option {
	return func(c *config) {
		c.raiseOnError = true
	}
}

// WithLogger sets the logger; the default is log.GetLoggerWithName of the
// search type.
func WithLogger(l log.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithRandomState seeds RandomizedSearchCV's parameter sampler.
func WithRandomState(seed int) Option {
	return func(c *config) {
		c.randomState = seed
	}
}

func newConfig(name string, opts []Option) config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = log.GetLoggerWithName(name)
	}
	return c
}

// splitter returns the configured splitter or the default for est.
func (c *config) splitter(est model.Estimator) Splitter {
	if c.cv != nil {
		return c.cv
	}
	if isClassifier(est) {
		return NewStratifiedKFold(c.cvFolds, false, 0)
	}
	return NewKFold(c.cvFolds, false, 0)
}

func isClassifier(est model.Estimator) bool {
	if c, ok := est.(interface{ IsClassifier() bool }); ok {
		return c.IsClassifier()
	}
	_, ok := est.(model.Classifier)
	return ok
}
