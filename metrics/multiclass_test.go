package metrics

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

func vec(values ...float64) *mat.VecDense {
	return mat.NewVecDense(len(values), values)
}

func TestConfusionMatrix(t *testing.T) {
	yTrue := vec(0, 1, 2, 2, 1, 0)
	yPred := vec(0, 2, 2, 2, 1, 1)

	cm, labels, err := ConfusionMatrix(yTrue, yPred, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, labels)
	want := mat.NewDense(3, 3, []float64{
		1, 1, 0,
		0, 1, 1,
		0, 0, 2,
	})
	assert.True(t, mat.Equal(want, cm))

	cm, _, err = ConfusionMatrix(yTrue, yPred, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, 2.0, cm.At(0, 0))
	assert.Equal(t, 1.0, cm.At(1, 1))
}

func TestPrecisionRecallF1(t *testing.T) {
	yTrue := vec(0, 0, 1, 1, 1, 2)
	yPred := vec(0, 1, 1, 1, 0, 2)

	s, err := PrecisionRecallFSupport(yTrue, yPred)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 2.0 / 3.0, 1}, s.Precision, 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 2.0 / 3.0, 1}, s.Recall, 1e-12)
	assert.Equal(t, []float64{2, 3, 1}, s.Support)

	tests := []struct {
		average string
		want    float64
	}{
		{"macro", (0.5 + 2.0/3.0 + 1) / 3},
		{"weighted", (2*0.5 + 3*2.0/3.0 + 1) / 6},
		{"micro", 4.0 / 6.0},
	}
	for _, tt := range tests {
		t.Run(tt.average, func(t *testing.T) {
			p, r, f, err := PrecisionRecallF1(yTrue, yPred, tt.average)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, p, 1e-12)
			assert.InDelta(t, tt.want, r, 1e-12)
			assert.InDelta(t, tt.want, f, 1e-12)
		})
	}

	_, _, _, err = PrecisionRecallF1(yTrue, yPred, "samples")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestPrecisionUndefinedWarns(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	p, _, _, err := PrecisionRecallF1(vec(0, 1), vec(0, 0), "macro")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, p, 1e-12)

	require.Len(t, warnings, 1)
	var uw *errors.UndefinedMetricWarning
	require.True(t, errors.As(warnings[0], &uw))
	assert.Equal(t, "precision", uw.Metric)
}

func TestBalancedAccuracy(t *testing.T) {
	got, err := BalancedAccuracy(vec(0, 0, 0, 0, 1, 1), vec(0, 0, 0, 0, 0, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, got, 1e-12)

	_, err = BalancedAccuracy(nil, vec(1))
	assert.Error(t, err)
}

func TestBalancedAccuracyBitIdentical(t *testing.T) {
	// 4クラス、再現率は 3/5, 2/3, 5/7, 2/3
	yTrue := vec(3, 3, 3, 3, 3, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 2, 2, 2)
	yPred := vec(3, 3, 3, 0, 1, 0, 0, 1, 1, 1, 1, 1, 1, 0, 2, 2, 2, 0)

	want := (2.0/3.0 + 5.0/7.0 + 2.0/3.0 + 3.0/5.0) / 4
	for i := 0; i < 500; i++ {
		got, err := BalancedAccuracy(yTrue, yPred)
		require.NoError(t, err)
		require.Equal(t, math.Float64bits(want), math.Float64bits(got), "call %d", i)
	}
}

func TestComputeClassScoresDefersWarnings(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	// ラベル 2 は予測されるが正解に現れず、ラベル 1 は予測されない
	s, err := ComputeClassScores(vec(0, 1, 0), vec(0, 2, 0))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, s.UndefinedPrecision)
	assert.True(t, s.UndefinedRecall)

	deferred := s.Warnings()
	require.Len(t, deferred, 2)
	var uw *errors.UndefinedMetricWarning
	require.True(t, errors.As(deferred[0], &uw))
	assert.Equal(t, "precision", uw.Metric)
	require.True(t, errors.As(deferred[1], &uw))
	assert.Equal(t, "recall", uw.Metric)

	p, _, _, err := s.Average("macro")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, p, 1e-12)
	_, _, _, err = s.Average("micro")
	assert.Error(t, err)
}

func TestLogLoss(t *testing.T) {
	proba := mat.NewDense(3, 3, []float64{
		0.7, 0.2, 0.1,
		0.1, 0.8, 0.1,
		0.2, 0.2, 0.6,
	})
	got, err := LogLoss(vec(0, 1, 2), proba, []int{0, 1, 2})
	require.NoError(t, err)
	want := -(math.Log(0.7) + math.Log(0.8) + math.Log(0.6)) / 3
	assert.InDelta(t, want, got, 1e-12)

	_, err = LogLoss(vec(0, 1, 5), proba, []int{0, 1, 2})
	assert.Error(t, err, "unknown label")
	_, err = LogLoss(vec(0, 1), proba, []int{0, 1, 2})
	assert.Error(t, err)

	zero := mat.NewDense(1, 2, []float64{1, 0})
	got, err = LogLoss(vec(1), zero, []int{0, 1})
	require.NoError(t, err)
	assert.False(t, math.IsInf(got, 0), "probabilities are clipped")
}

func TestClassificationReport(t *testing.T) {
	report, err := ClassificationReport(vec(0, 1, 2, 2), vec(0, 1, 2, 1), []string{"setosa", "versicolor", "virginica"})
	require.NoError(t, err)
	assert.Contains(t, report, "setosa")
	assert.Contains(t, report, "virginica")
	assert.Contains(t, report, "macro avg")
	assert.Contains(t, report, "weighted avg")

	lines := strings.Split(strings.TrimSpace(report), "\n")
	assert.Contains(t, lines[0], "precision")
}

func TestMAPEAndExplainedVariance(t *testing.T) {
	mape, err := MAPE(vec(1, 2, 0, 4), vec(1.5, 2, 3, 3))
	require.NoError(t, err)
	assert.InDelta(t, (50.0+0+25.0)/3, mape, 1e-9)

	_, err = MAPE(vec(0, 0), vec(1, 1))
	assert.Error(t, err)

	ev, err := ExplainedVarianceScore(vec(1, 2, 3), vec(2, 3, 4))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ev, 1e-12, "a constant offset is fully explained")
}

func TestColumnVec(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{1, 9, 2, 9, 3, 9})
	v := ColumnVec(m)
	assert.Equal(t, []float64{1, 2, 3}, mat.Col(nil, 0, v))
	assert.Nil(t, ColumnVec(nil))
}
