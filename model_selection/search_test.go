package model_selection

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/datasets"
	"github.com/YuminosukeSato/scigo-tune/decomposition"
	"github.com/YuminosukeSato/scigo-tune/feature_selection"
	"github.com/YuminosukeSato/scigo-tune/metrics"
	"github.com/YuminosukeSato/scigo-tune/pipeline"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
	"github.com/YuminosukeSato/scigo-tune/pkg/log"
	"github.com/YuminosukeSato/scigo-tune/preprocessing"
	"github.com/YuminosukeSato/scigo-tune/sklearn/linear_model"
	"github.com/YuminosukeSato/scigo-tune/sklearn/neighbors"
	"github.com/YuminosukeSato/scigo-tune/sklearn/tree"
)

// stubClassifier predicts the majority class; mode "error" and "panic" make Fit fail.
type stubClassifier struct {
	mode     string
	majority float64
}

func (s *stubClassifier) Fit(X, y mat.Matrix) error {
	switch s.mode {
	case "error":
		return errors.New("boom")
	case "panic":
		panic("kaboom")
	}
	counts := map[float64]int{}
	best, bestCount := 0.0, -1
	n, _ := y.Dims()
	for i := 0; i < n; i++ {
		counts[y.At(i, 0)]++
	}
	for label, c := range counts {
		if c > bestCount || (c == bestCount && label < best) {
			best, bestCount = label, c
		}
	}
	s.majority = best
	return nil
}

func (s *stubClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	n, _ := X.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, s.majority)
	}
	return out, nil
}

func (s *stubClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{"mode": s.mode}
}

func (s *stubClassifier) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		if k != "mode" {
			return model.UnknownParam("stubClassifier", k)
		}
		mode, err := model.ToString(k, v)
		if err != nil {
			return err
		}
		s.mode = mode
	}
	return nil
}

func (s *stubClassifier) Clone() model.Estimator {
	return &stubClassifier{mode: s.mode}
}

func silenceWarnings(t *testing.T) *[]error {
	t.Helper()
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })
	return &warnings
}

func TestRankMin(t *testing.T) {
	nan := math.NaN()
	assert.Equal(t, []int{1, 3, 1, 4}, rankMin([]float64{0.9, 0.8, 0.9, nan}))
	assert.Equal(t, []int{2, 1, 3, 3}, rankMin([]float64{0.5, 0.7, nan, nan}))
	assert.Equal(t, []int{1, 1}, rankMin([]float64{nan, nan}))
}

func TestGridSearchCVDecisionTree(t *testing.T) {
	silenceWarnings(t)
	iris := datasets.LoadIris()

	logger, _ := log.NewTestLogger(log.LevelDebug)
	search := NewGridSearchCV(tree.NewDecisionTreeClassifier(), []Grid{{
		"max_depth": {1, 2, 3},
		"criterion": {"gini", "entropy"},
	}}, WithCVFolds(5), WithLogger(logger))

	require.NoError(t, search.Fit(context.Background(), iris.X, iris.Y))

	res := search.CVResults
	require.Equal(t, 6, res.Len())
	assert.Equal(t, 5, search.NSplits)
	assert.Equal(t, "score", res.Scoring)

	best := search.BestIndex
	assert.Equal(t, 1, res.RankTestScore[best])
	assert.Equal(t, res.Params[best], search.BestParams)
	assert.Equal(t, res.MeanTestScore[best], search.BestScore)
	for i, m := range res.MeanTestScore {
		assert.LessOrEqual(t, m, search.BestScore, "candidate %d", i)
		assert.Len(t, res.SplitTestScores[i], 5)
	}
	for i := 0; i < best; i++ {
		assert.NotEqual(t, 1, res.RankTestScore[i], "best must be the lowest index with rank 1")
	}
	assert.Greater(t, search.BestScore, 0.9)
	assert.Nil(t, res.MeanTrainScore)

	pred, err := search.Predict(iris.X)
	require.NoError(t, err)
	acc, err := metrics.Accuracy(metrics.ColumnVec(iris.Y), metrics.ColumnVec(pred))
	require.NoError(t, err)
	assert.Greater(t, acc, 0.9)

	score, err := search.Score(iris.X, iris.Y)
	require.NoError(t, err)
	assert.InDelta(t, acc, score, 1e-12)
	assert.Equal(t, []int{0, 1, 2}, search.Classes())

	assert.True(t, logger.ContainsMessage("Search started"))
	assert.True(t, logger.ContainsField(log.CandidatesKey, 6.0))
	assert.True(t, logger.ContainsField(log.SplitsKey, 5.0))
	assert.Equal(t, 30, logger.CountMessage("Candidate evaluated"))
	assert.Equal(t, 1, logger.CountMessage("Search finished"))
}

func TestGridSearchCVParallelMatchesSequential(t *testing.T) {
	silenceWarnings(t)
	iris := datasets.LoadIris()

	newSearch := func(nJobs int) *GridSearchCV {
		return NewGridSearchCV(neighbors.NewKNeighborsClassifier(), []Grid{{
			"n_neighbors": {1, 3, 5, 7, 9},
			"weights":     {"uniform", "distance"},
		}}, WithCV(NewStratifiedKFold(4, true, 3)), WithNJobs(nJobs), WithReturnTrainScore(true))
	}

	seq := newSearch(1)
	require.NoError(t, seq.Fit(context.Background(), iris.X, iris.Y))
	par := newSearch(4)
	require.NoError(t, par.Fit(context.Background(), iris.X, iris.Y))

	assert.Equal(t, seq.CVResults.SplitTestScores, par.CVResults.SplitTestScores)
	assert.Equal(t, seq.CVResults.SplitTrainScores, par.CVResults.SplitTrainScores)
	assert.Equal(t, seq.CVResults.RankTestScore, par.CVResults.RankTestScore)
	assert.Equal(t, seq.BestParams, par.BestParams)
	assert.Equal(t, seq.BestIndex, par.BestIndex)

	// 1-NN memorises the training set
	for c, p := range seq.CVResults.Params {
		if p["n_neighbors"] == 1 {
			assert.Equal(t, 1.0, seq.CVResults.MeanTrainScore[c])
		}
	}
}

func TestGridSearchCVPipelineStepSelection(t *testing.T) {
	silenceWarnings(t)
	iris := datasets.LoadIris()

	pipe, err := pipeline.New(
		pipeline.NewStep("scale", preprocessing.NewStandardScalerDefault()),
		pipeline.NewStep("reduce_dim", decomposition.NewPCA(decomposition.WithNComponents(2))),
		pipeline.NewStep("clf", linear_model.NewLogisticRegression()),
	)
	require.NoError(t, err)

	search := NewGridSearchCV(pipe, []Grid{
		{
			"reduce_dim": {
				decomposition.NewPCA(decomposition.WithNComponents(2)),
				feature_selection.NewSelectKBest(feature_selection.WithK(2)),
			},
			"clf__C": {0.1, 1.0},
		},
		{
			"reduce_dim": {pipeline.PassthroughName},
			"clf__C":     {1.0},
		},
	}, WithCVFolds(3), WithScoring("f1_macro"), WithNJobs(-1))

	require.NoError(t, search.Fit(context.Background(), iris.X, iris.Y))
	require.Equal(t, 5, search.CVResults.Len())
	assert.Equal(t, "f1_macro", search.CVResults.Scoring)
	assert.Greater(t, search.BestScore, 0.85)

	// the original pipeline is never fitted or mutated
	step, ok := pipe.NamedStep("reduce_dim")
	require.True(t, ok)
	assert.IsType(t, &decomposition.PCA{}, step)

	proba, err := search.PredictProba(iris.X)
	require.NoError(t, err)
	r, c := proba.Dims()
	assert.Equal(t, 150, r)
	assert.Equal(t, 3, c)

	var buf bytes.Buffer
	require.NoError(t, search.CVResults.Table(&buf, 3))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "rank"))
	assert.True(t, strings.HasPrefix(lines[1], "1 "))
	assert.Contains(t, buf.String(), "clf__C")
}

func TestRandomizedSearchCV(t *testing.T) {
	silenceWarnings(t)
	iris := datasets.LoadIris()

	space := Space{
		"max_depth":         RandInt{Low: 1, High: 6},
		"min_samples_split": RandInt{Low: 2, High: 11},
		"criterion":         NewChoice("gini", "entropy"),
	}
	run := func(seed int) *RandomizedSearchCV {
		s := NewRandomizedSearchCV(tree.NewDecisionTreeClassifier(), space, 8,
			WithRandomState(seed), WithCVFolds(3), WithNJobs(2))
		require.NoError(t, s.Fit(context.Background(), iris.X, iris.Y))
		return s
	}

	a := run(11)
	b := run(11)
	assert.Equal(t, 8, a.CVResults.Len())
	assert.Equal(t, a.CVResults.Params, b.CVResults.Params)
	assert.Equal(t, a.CVResults.MeanTestScore, b.CVResults.MeanTestScore)
	assert.Greater(t, a.BestScore, 0.85)
	assert.Contains(t, a.String(), "n_iter=8")
}

func TestRandomizedSearchCVBalancedAccuracyParallelMatchesSequential(t *testing.T) {
	silenceWarnings(t)
	ds, err := datasets.MakeClassification(
		datasets.WithNSamples(240),
		datasets.WithNFeatures(6),
		datasets.WithNInformative(4),
		datasets.WithNClasses(4),
		datasets.WithSeed(3),
	)
	require.NoError(t, err)

	pipe := pipeline.MustNew(
		pipeline.NewStep("scale", preprocessing.NewMinMaxScalerDefault()),
		pipeline.NewStep("knn", neighbors.NewKNeighborsClassifier()),
	)
	space := Space{
		"knn__n_neighbors": RandInt{Low: 1, High: 31},
		"knn__weights":     NewChoice("uniform", "distance"),
		"knn__p":           NewChoice(1, 2),
	}
	run := func(nJobs int) *RandomizedSearchCV {
		s := NewRandomizedSearchCV(pipe, space, 15,
			WithRandomState(3), WithCVFolds(5), WithScoring("balanced_accuracy"), WithNJobs(nJobs))
		require.NoError(t, s.Fit(context.Background(), ds.X, ds.Y))
		return s
	}

	seq := run(1)
	for i := 0; i < 3; i++ {
		par := run(4)
		assert.Equal(t, seq.CVResults.Params, par.CVResults.Params)
		assert.Equal(t, seq.CVResults.SplitTestScores, par.CVResults.SplitTestScores)
		assert.Equal(t, seq.CVResults.MeanTestScore, par.CVResults.MeanTestScore)
		assert.Equal(t, seq.CVResults.RankTestScore, par.CVResults.RankTestScore)
		assert.Equal(t, seq.BestIndex, par.BestIndex)
	}

	// 同じパラメータの候補は同じ順位を共有する
	res := seq.CVResults
	for i := range res.Params {
		for j := i + 1; j < len(res.Params); j++ {
			if FormatParams(res.Params[i]) == FormatParams(res.Params[j]) {
				assert.Equal(t, res.RankTestScore[i], res.RankTestScore[j], "candidates %d and %d", i, j)
			}
		}
	}
}

func TestSearchReportsScoringWarningOnce(t *testing.T) {
	warnings := silenceWarnings(t)
	iris := datasets.LoadIris()
	logger, _ := log.NewTestLogger(log.LevelDebug)

	// 多数派クラスしか予測しないので、どの分割でも precision が未定義になる
	search := NewGridSearchCV(&stubClassifier{}, []Grid{{"mode": {"a", "b"}}},
		WithCV(NewStratifiedKFold(3, true, 0)), WithScoring("precision_macro"), WithLogger(logger))
	require.NoError(t, search.Fit(context.Background(), iris.X, iris.Y))

	require.Len(t, *warnings, 1)
	var uw *errors.UndefinedMetricWarning
	require.True(t, errors.As((*warnings)[0], &uw))
	assert.Equal(t, "precision", uw.Metric)
	assert.True(t, logger.ContainsField(log.WarningKey, (*warnings)[0].Error()))
	assert.True(t, logger.ContainsField(log.SplitsKey, 6.0))

	// 直接のスコア計算ではその場で警告する
	_, err := search.Score(iris.X, iris.Y)
	require.NoError(t, err)
	assert.Len(t, *warnings, 2)

	_, err = CrossValScore(context.Background(), &stubClassifier{}, iris.X, iris.Y,
		WithCV(NewStratifiedKFold(3, true, 0)), WithScoring("f1_macro"))
	require.NoError(t, err)
	assert.Len(t, *warnings, 3)
}

func TestSearchErrorScore(t *testing.T) {
	iris := datasets.LoadIris()
	grid := []Grid{{"mode": {"ok", "error", "panic"}}}

	t.Run("failures score NaN and warn", func(t *testing.T) {
		warnings := silenceWarnings(t)
		search := NewGridSearchCV(&stubClassifier{}, grid,
			WithCV(NewStratifiedKFold(3, true, 0)), WithScoring("accuracy"), WithNJobs(3))
		require.NoError(t, search.Fit(context.Background(), iris.X, iris.Y))

		res := search.CVResults
		assert.False(t, math.IsNaN(res.MeanTestScore[0]))
		assert.True(t, math.IsNaN(res.MeanTestScore[1]))
		assert.True(t, math.IsNaN(res.MeanTestScore[2]))
		assert.Equal(t, []int{1, 2, 2}, res.RankTestScore)
		assert.Equal(t, 0, search.BestIndex)

		fitFailed := 0
		for _, w := range *warnings {
			var ff *errors.FitFailedWarning
			if errors.As(w, &ff) {
				fitFailed++
			}
		}
		assert.Equal(t, 6, fitFailed)
	})

	t.Run("numeric error score", func(t *testing.T) {
		silenceWarnings(t)
		search := NewGridSearchCV(&stubClassifier{}, grid,
			WithCV(NewStratifiedKFold(3, true, 0)), WithErrorScore(0))
		require.NoError(t, search.Fit(context.Background(), iris.X, iris.Y))
		assert.Equal(t, []float64{0, 0, 0}, search.CVResults.SplitTestScores[2])
	})

	t.Run("raise aborts", func(t *testing.T) {
		silenceWarnings(t)
		search := NewGridSearchCV(&stubClassifier{}, []Grid{{"mode": {"ok", "error"}}},
			WithCVFolds(3), WithErrorScoreRaise())
		err := search.Fit(context.Background(), iris.X, iris.Y)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "candidate 1")
		assert.Contains(t, err.Error(), "boom")
		assert.False(t, search.IsFitted())
	})

	t.Run("panic becomes an error", func(t *testing.T) {
		silenceWarnings(t)
		search := NewGridSearchCV(&stubClassifier{}, []Grid{{"mode": {"panic"}}},
			WithCVFolds(3), WithErrorScoreRaise())
		err := search.Fit(context.Background(), iris.X, iris.Y)
		var pe *errors.PanicError
		require.True(t, errors.As(err, &pe), "got %v", err)
	})

	t.Run("invalid parameter value counts as a failed fit", func(t *testing.T) {
		silenceWarnings(t)
		search := NewGridSearchCV(linear_model.NewLogisticRegression(), []Grid{{"penalty": {"l2", "l7"}}},
			WithCVFolds(3))
		require.NoError(t, search.Fit(context.Background(), iris.X, iris.Y))
		assert.True(t, math.IsNaN(search.CVResults.MeanTestScore[1]))
		assert.Equal(t, 0, search.BestIndex)
	})
}

func TestSearchContextCancelled(t *testing.T) {
	iris := datasets.LoadIris()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	search := NewGridSearchCV(tree.NewDecisionTreeClassifier(), []Grid{{"max_depth": {1, 2}}})
	err := search.Fit(ctx, iris.X, iris.Y)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, search.IsFitted())
}

func TestSearchNotFitted(t *testing.T) {
	silenceWarnings(t)
	iris := datasets.LoadIris()

	search := NewGridSearchCV(tree.NewDecisionTreeClassifier(), []Grid{{"max_depth": {1, 2}}}, WithRefit(false))
	_, err := search.Predict(iris.X)
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))

	require.NoError(t, search.Fit(context.Background(), iris.X, iris.Y))
	assert.Nil(t, search.BestEstimator)
	_, err = search.PredictProba(iris.X)
	require.True(t, errors.As(err, &nf))
	assert.NotNil(t, search.BestParams)
}

func TestSearchValidation(t *testing.T) {
	iris := datasets.LoadIris()

	t.Run("unknown scorer", func(t *testing.T) {
		search := NewGridSearchCV(tree.NewDecisionTreeClassifier(), []Grid{{"max_depth": {1}}}, WithScoring("accuracyy"))
		err := search.Fit(context.Background(), iris.X, iris.Y)
		var ve *errors.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "scoring", ve.ParamName)
	})

	t.Run("empty grid values", func(t *testing.T) {
		search := NewGridSearchCV(tree.NewDecisionTreeClassifier(), []Grid{{"max_depth": {}}})
		var ve *errors.ValidationError
		assert.True(t, errors.As(search.Fit(context.Background(), iris.X, iris.Y), &ve))
	})

	t.Run("too many folds", func(t *testing.T) {
		search := NewGridSearchCV(tree.NewDecisionTreeClassifier(), []Grid{{"max_depth": {1}}}, WithCVFolds(151))
		var ve *errors.ValidationError
		assert.True(t, errors.As(search.Fit(context.Background(), iris.X, iris.Y), &ve))
	})

	t.Run("mismatched rows", func(t *testing.T) {
		search := NewGridSearchCV(tree.NewDecisionTreeClassifier(), []Grid{{"max_depth": {1}}})
		y := mat.NewDense(10, 1, nil)
		var de *errors.DimensionError
		assert.True(t, errors.As(search.Fit(context.Background(), iris.X, y), &de))
	})
}

func TestCrossValidate(t *testing.T) {
	silenceWarnings(t)
	iris := datasets.LoadIris()
	est := tree.NewDecisionTreeClassifier(tree.WithMaxDepth(3))

	scores, err := CrossValidate(context.Background(), est, iris.X, iris.Y,
		WithCVFolds(5), WithReturnTrainScore(true), WithNJobs(2))
	require.NoError(t, err)
	assert.Len(t, scores.TestScores, 5)
	assert.Len(t, scores.TrainScores, 5)
	assert.Len(t, scores.FitTimes, 5)
	assert.Greater(t, scores.Mean(), 0.9)
	assert.GreaterOrEqual(t, scores.Std(), 0.0)

	// est itself stays unfitted
	_, err = est.Predict(iris.X)
	assert.Error(t, err)

	plain, err := CrossValScore(context.Background(), est, iris.X, iris.Y, WithCVFolds(5))
	require.NoError(t, err)
	assert.Equal(t, scores.TestScores, plain)
}

func TestScorers(t *testing.T) {
	silenceWarnings(t)
	iris := datasets.LoadIris()

	clf := linear_model.NewLogisticRegression()
	require.NoError(t, clf.Fit(iris.X, iris.Y))

	for _, name := range []string{"accuracy", "balanced_accuracy", "f1_macro", "f1_weighted", "precision_macro", "recall_macro"} {
		s, err := GetScorer(name)
		require.NoError(t, err)
		v, err := s.Score(clf, iris.X, iris.Y)
		require.NoError(t, err, name)
		assert.Greater(t, v, 0.9, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}

	nll, err := GetScorer("neg_log_loss")
	require.NoError(t, err)
	v, err := nll.Score(clf, iris.X, iris.Y)
	require.NoError(t, err)
	assert.Less(t, v, 0.0)

	auc, err := GetScorer("roc_auc")
	require.NoError(t, err)
	_, err = auc.Score(clf, iris.X, iris.Y)
	assert.Error(t, err, "roc_auc is binary only")

	_, err = GetScorer("nope")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	names := ScorerNames()
	assert.Contains(t, names, "neg_mean_squared_error")
	assert.Contains(t, names, "r2")
}

func TestGridSearchCVRegression(t *testing.T) {
	silenceWarnings(t)

	// y = 3*x0 - 2*x1 + 0.5 with a little deterministic noise
	n := 60
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x0, x1 := float64(i%10), float64(i/10)
		X.Set(i, 0, x0)
		X.Set(i, 1, x1)
		y.Set(i, 0, 3*x0-2*x1+0.5+0.1*math.Sin(float64(i)))
	}

	search := NewGridSearchCV(linear_model.NewRidge(), []Grid{
		{"alpha": {0.0, 1.0, 1000.0}},
	}, WithScoring("r2"), WithCVFolds(4), WithRandomState(0))
	require.NoError(t, search.Fit(context.Background(), X, y))

	// regressors are split with plain KFold
	_, ok := search.cfg.splitter(search.estimator).(*KFold)
	assert.True(t, ok)

	res := search.GetCVResults()
	assert.Equal(t, "r2", res.Scoring)
	assert.Equal(t, 3, res.RankTestScore[2], "heavy shrinkage ranks last")
	assert.Greater(t, search.GetBestScore(), 0.99)

	mse, err := GetScorer("neg_mean_squared_error")
	require.NoError(t, err)
	v, err := mse.Score(search.GetBestEstimator(), X, y)
	require.NoError(t, err)
	assert.Less(t, v, 0.0)
	assert.Greater(t, v, -0.1)
}
