package model_selection

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
)

// CVResults is the cv_results_ table of a search, one entry per candidate in
// enumeration order. Train score fields are nil unless train scores were
// requested.
type CVResults struct {
	Scoring string
	Params  []map[string]interface{}

	SplitTestScores [][]float64 // [candidate][split]
	MeanTestScore   []float64
	StdTestScore    []float64
	RankTestScore   []int

	SplitTrainScores [][]float64
	MeanTrainScore   []float64
	StdTrainScore    []float64

	MeanFitTime   []float64
	StdFitTime    []float64
	MeanScoreTime []float64
	StdScoreTime  []float64
}

// newCVResults aggregates job results laid out candidate-major.
func newCVResults(scoring string, params []map[string]interface{}, results []fitResult, nSplits int, withTrain bool) *CVResults {
	n := len(params)
	r := &CVResults{
		Scoring:         scoring,
		Params:          params,
		SplitTestScores: make([][]float64, n),
		MeanTestScore:   make([]float64, n),
		StdTestScore:    make([]float64, n),
		MeanFitTime:     make([]float64, n),
		StdFitTime:      make([]float64, n),
		MeanScoreTime:   make([]float64, n),
		StdScoreTime:    make([]float64, n),
	}
	if withTrain {
		r.SplitTrainScores = make([][]float64, n)
		r.MeanTrainScore = make([]float64, n)
		r.StdTrainScore = make([]float64, n)
	}

	test := make([]float64, nSplits)
	train := make([]float64, nSplits)
	fit := make([]float64, nSplits)
	score := make([]float64, nSplits)
	for c := 0; c < n; c++ {
		for s := 0; s < nSplits; s++ {
			job := results[c*nSplits+s]
			test[s] = job.testScore
			train[s] = job.trainScore
			fit[s] = job.fitTime
			score[s] = job.scoreTime
		}
		r.SplitTestScores[c] = append([]float64(nil), test...)
		r.MeanTestScore[c], r.StdTestScore[c] = stat.PopMeanStdDev(test, nil)
		r.MeanFitTime[c], r.StdFitTime[c] = stat.PopMeanStdDev(fit, nil)
		r.MeanScoreTime[c], r.StdScoreTime[c] = stat.PopMeanStdDev(score, nil)
		if withTrain {
			r.SplitTrainScores[c] = append([]float64(nil), train...)
			r.MeanTrainScore[c], r.StdTrainScore[c] = stat.PopMeanStdDev(train, nil)
		}
	}
	r.RankTestScore = rankMin(r.MeanTestScore)
	return r
}

// rankMin ranks scores in descending order; ties share the smallest rank.
// NaN scores share the rank after every finite score, or rank 1 if all are NaN.
func rankMin(scores []float64) []int {
	ranks := make([]int, len(scores))
	valid := 0
	for _, s := range scores {
		if !math.IsNaN(s) {
			valid++
		}
	}
	for i, s := range scores {
		if math.IsNaN(s) {
			ranks[i] = valid + 1
			if valid == 0 {
				ranks[i] = 1
			}
			continue
		}
		better := 0
		for _, o := range scores {
			if !math.IsNaN(o) && o > s {
				better++
			}
		}
		ranks[i] = better + 1
	}
	return ranks
}

// Len returns the number of candidates.
func (r *CVResults) Len() int { return len(r.Params) }

// BestIndex returns the lowest candidate index with rank 1.
func (r *CVResults) BestIndex() int {
	for i, rank := range r.RankTestScore {
		if rank == 1 {
			return i
		}
	}
	return 0
}

// Order returns candidate indices sorted by rank, then by index.
func (r *CVResults) Order() []int {
	order := arange(r.Len())
	sort.SliceStable(order, func(a, b int) bool {
		return r.RankTestScore[order[a]] < r.RankTestScore[order[b]]
	})
	return order
}

// Table writes the topN best candidates as an aligned text table.
// topN <= 0 writes every candidate.
func (r *CVResults) Table(w io.Writer, topN int) error {
	order := r.Order()
	if topN > 0 && topN < len(order) {
		order = order[:topN]
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "rank\tmean_test\tstd_test"
	if r.MeanTrainScore != nil {
		header += "\tmean_train"
	}
	header += "\tfit_time\tparams"
	if _, err := fmt.Fprintln(tw, header); err != nil {
		return err
	}
	for _, i := range order {
		row := fmt.Sprintf("%d\t%.4f\t%.4f", r.RankTestScore[i], r.MeanTestScore[i], r.StdTestScore[i])
		if r.MeanTrainScore != nil {
			row += fmt.Sprintf("\t%.4f", r.MeanTrainScore[i])
		}
		row += fmt.Sprintf("\t%.3fs\t%s", r.MeanFitTime[i], FormatParams(r.Params[i]))
		if _, err := fmt.Fprintln(tw, row); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// FormatParams renders a parameter setting with sorted keys, e.g.
// {clf__C: 1, reduce_dim: PCA(n_components=2, whiten=false)}.
func FormatParams(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, formatValue(params[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case fmt.Stringer:
		return x.String()
	case model.Estimator:
		return model.NameOf(x)
	case float64:
		return fmt.Sprintf("%.6g", x)
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
