package experiment

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/metrics"
	"github.com/YuminosukeSato/scigo-tune/model_selection"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
	"github.com/YuminosukeSato/scigo-tune/pkg/log"
	"github.com/YuminosukeSato/scigo-tune/report"
)

// previewRows is how many held-out predictions are printed.
const previewRows = 10

// RunOptions override per-run settings of an experiment.
type RunOptions struct {
	// NJobs overrides the experiment's n_jobs when non-zero.
	NJobs int
	// PlotDir receives "<name>.png" when non-empty.
	PlotDir string
	// Logger defaults to log.GetLoggerWithName("experiment").
	Logger log.Logger
}

// Outcome summarises one executed experiment.
type Outcome struct {
	Name       string
	Search     string
	Results    *model_selection.CVResults
	BestParams map[string]interface{}
	BestScore  float64
	// TestScore is the scorer's value on the held-out split.
	TestScore float64
	// TestAccuracy is the plain accuracy on the held-out split.
	TestAccuracy float64
	PlotPath     string
	Duration     time.Duration
}

// searcher is satisfied by GridSearchCV and RandomizedSearchCV.
type searcher interface {
	fmt.Stringer
	Fit(ctx context.Context, X, y mat.Matrix) error
	Predict(X mat.Matrix) (mat.Matrix, error)
	Score(X, y mat.Matrix) (float64, error)
	GetCVResults() *model_selection.CVResults
	GetBestParams() map[string]interface{}
	GetBestScore() float64
}

// Run executes one experiment: it splits the dataset into train and
// held-out parts, searches on the train part and reports the refitted
// winner on the held-out part. Text goes to out.
func Run(ctx context.Context, exp *Experiment, out io.Writer, opts RunOptions) (*Outcome, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("experiment")
	}
	logger = logger.With(log.ExperimentKey, exp.Name)

	nJobs := exp.NJobs
	if opts.NJobs != 0 {
		nJobs = opts.NJobs
	}

	ds, err := exp.LoadDataset()
	if err != nil {
		return nil, errors.Wrapf(err, "experiment %q: loading dataset", exp.Name)
	}
	XTrain, XTest, yTrain, yTest, err := model_selection.TrainTestSplit(ds.X, ds.Y, exp.TestSize, exp.Seed, true)
	if err != nil {
		return nil, errors.Wrapf(err, "experiment %q: splitting dataset", exp.Name)
	}
	nTrain, _ := XTrain.Dims()
	nTest, _ := XTest.Dims()

	logger.Info("Experiment started",
		log.DatasetKey, ds.Name,
		log.SamplesKey, ds.NSamples(),
		log.FeaturesKey, ds.NFeatures(),
		log.ClassesKey, len(ds.Classes()),
		log.RandomSeedKey, exp.Seed,
	)

	search, err := exp.newSearch(nJobs, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "experiment %q", exp.Name)
	}

	title := exp.Title
	if title == "" {
		title = exp.Name
	}
	fmt.Fprintf(out, "=== %s ===\n", title)
	fmt.Fprintf(out, "dataset: %s (%d samples, %d features, %d classes), train %d / test %d\n",
		ds.Name, ds.NSamples(), ds.NFeatures(), len(ds.Classes()), nTrain, nTest)
	fmt.Fprintf(out, "search:  %s\n", search)

	if err := search.Fit(ctx, XTrain, yTrain); err != nil {
		return nil, errors.Wrapf(err, "experiment %q: search failed", exp.Name)
	}

	results := search.GetCVResults()
	outcome := &Outcome{
		Name:       exp.Name,
		Search:     exp.Search,
		Results:    results,
		BestParams: search.GetBestParams(),
		BestScore:  search.GetBestScore(),
	}

	fmt.Fprintf(out, "best params: %s\n", model_selection.FormatParams(outcome.BestParams))
	fmt.Fprintf(out, "best cv score (%s): %.4f\n\n", results.Scoring, outcome.BestScore)
	if err := results.Table(out, exp.TopN); err != nil {
		return nil, errors.Wrap(err, "writing result table")
	}

	if outcome.TestScore, err = search.Score(XTest, yTest); err != nil {
		return nil, errors.Wrapf(err, "experiment %q: scoring held-out split", exp.Name)
	}
	pred, err := search.Predict(XTest)
	if err != nil {
		return nil, errors.Wrapf(err, "experiment %q: predicting held-out split", exp.Name)
	}
	yTrue, yPred := metrics.ColumnVec(yTest), metrics.ColumnVec(pred)
	if outcome.TestAccuracy, err = metrics.Accuracy(yTrue, yPred); err != nil {
		return nil, err
	}

	logger.Debug("Held-out split scored",
		log.PhaseKey, log.PhaseTesting,
		log.SamplesKey, nTest,
		log.ScoreKey, outcome.TestScore,
	)

	if results.Scoring == "accuracy" {
		fmt.Fprintf(out, "\nheld-out accuracy: %.4f\n", outcome.TestAccuracy)
	} else {
		fmt.Fprintf(out, "\nheld-out %s: %.4f (accuracy %.4f)\n", results.Scoring, outcome.TestScore, outcome.TestAccuracy)
	}
	n := min(previewRows, nTest)
	fmt.Fprintf(out, "predicted: %v\n", labelPreview(yPred, n))
	fmt.Fprintf(out, "actual:    %v\n\n", labelPreview(yTrue, n))

	rep, err := metrics.ClassificationReport(yTrue, yPred, ds.TargetNames)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, rep)

	if opts.PlotDir != "" {
		path := filepath.Join(opts.PlotDir, exp.Name+".png")
		if err := report.PlotCVResults(results, path, title); err != nil {
			return nil, errors.Wrapf(err, "experiment %q: plotting results", exp.Name)
		}
		outcome.PlotPath = path
		fmt.Fprintf(out, "plot written to %s\n\n", path)
	}

	outcome.Duration = time.Since(start)
	logger.Info("Experiment finished",
		log.ScoringKey, results.Scoring,
		log.ScoreKey, outcome.BestScore,
		log.AccuracyKey, outcome.TestAccuracy,
		log.DurationMsKey, outcome.Duration.Milliseconds(),
	)
	return outcome, nil
}

// RunAll runs the experiments in order and stops at the first failure.
func RunAll(ctx context.Context, exps []*Experiment, out io.Writer, opts RunOptions) ([]*Outcome, error) {
	outcomes := make([]*Outcome, 0, len(exps))
	for _, exp := range exps {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		o, err := Run(ctx, exp, out, opts)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func (e *Experiment) newSearch(nJobs int, logger log.Logger) (searcher, error) {
	est, err := e.BuildEstimator()
	if err != nil {
		return nil, err
	}
	opts := []model_selection.Option{
		model_selection.WithCVFolds(e.CV),
		model_selection.WithScoring(e.Scoring),
		model_selection.WithNJobs(nJobs),
		model_selection.WithRandomState(e.Seed),
		model_selection.WithLogger(logger),
	}
	switch e.Search {
	case SearchGrid:
		grids := e.Grids
		if len(grids) == 0 {
			grids = []model_selection.Grid{{}}
		}
		return model_selection.NewGridSearchCV(est, grids, opts...), nil
	case SearchRandom:
		return model_selection.NewRandomizedSearchCV(est, e.Distributions, e.NIter, opts...), nil
	default:
		return nil, errors.NewValidationError("search", "unknown search kind", e.Search)
	}
}

func labelPreview(v *mat.VecDense, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = int(v.AtVec(i))
	}
	return out
}
