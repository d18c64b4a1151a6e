package feature_selection

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// AllFeatures is the value of k that keeps every feature.
const AllFeatures = -1

// SelectKBest keeps the k features with the highest univariate scores.
type SelectKBest struct {
	state *model.StateManager

	k         int    // AllFeatures keeps everything
	scoreFunc string // "f_classif" or "chi2"

	Scores  []float64
	PValues []float64
	support []bool
}

// SelectKBestOption is a functional option for SelectKBest
type SelectKBestOption func(*SelectKBest)

// WithK sets the number of features to keep. Use AllFeatures to keep all.
func WithK(k int) SelectKBestOption {
	return func(s *SelectKBest) {
		s.k = k
	}
}

// WithScoreFunc selects the scoring function by name.
func WithScoreFunc(name string) SelectKBestOption {
	return func(s *SelectKBest) {
		s.scoreFunc = name
	}
}

// NewSelectKBest creates a selector keeping 10 features scored by ANOVA F.
func NewSelectKBest(opts ...SelectKBestOption) *SelectKBest {
	s := &SelectKBest{
		state:     model.NewStateManager(),
		k:         10,
		scoreFunc: "f_classif",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fit scores every feature against y and records which ones are kept.
func (s *SelectKBest) Fit(X, y mat.Matrix) error {
	fn, ok := scoreFuncs[s.scoreFunc]
	if !ok {
		return errors.NewValidationError("score_func", "must be one of \"f_classif\", \"chi2\"", s.scoreFunc)
	}
	_, d, err := model.CheckXY("SelectKBest.Fit", X, y)
	if err != nil {
		return err
	}

	k := s.k
	if k == AllFeatures {
		k = d
	}
	if k < 1 || k > d {
		return errors.NewValidationError("k",
			fmt.Sprintf("should be between 1 and n_features=%d; use \"all\" to keep every feature", d), s.k)
	}

	scores, pvalues, err := fn(X, y)
	if err != nil {
		return err
	}
	s.Scores = scores
	s.PValues = pvalues

	// Highest score first, NaN last, ties keep column order.
	order := make([]int, d)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if math.IsNaN(sb) {
			return !math.IsNaN(sa)
		}
		if math.IsNaN(sa) {
			return false
		}
		return sa > sb
	})

	s.support = make([]bool, d)
	for _, j := range order[:k] {
		s.support[j] = true
	}

	n, _ := X.Dims()
	s.state.SetFitted(d, n)
	return nil
}

// Transform keeps the selected columns in their original order.
func (s *SelectKBest) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("SelectKBest", "Transform"); err != nil {
		return nil, err
	}
	if err := s.state.CheckFeatures("SelectKBest.Transform", X); err != nil {
		return nil, err
	}
	return selectColumns(X, s.support), nil
}

// GetSupport returns the mask of selected features.
func (s *SelectKBest) GetSupport() []bool {
	out := make([]bool, len(s.support))
	copy(out, s.support)
	return out
}

// GetParams returns the selector hyperparameters. k is reported as "all"
// when every feature is kept.
func (s *SelectKBest) GetParams() map[string]interface{} {
	var k interface{} = s.k
	if s.k == AllFeatures {
		k = "all"
	}
	return map[string]interface{}{
		"k":          k,
		"score_func": s.scoreFunc,
	}
}

// SetParams sets the selector hyperparameters. k accepts an integer or "all".
func (s *SelectKBest) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "k":
			if str, ok := value.(string); ok && str == "all" {
				s.k = AllFeatures
			} else {
				s.k, err = model.ToInt(key, value)
			}
		case "score_func":
			s.scoreFunc, err = model.ToString(key, value)
		default:
			return model.UnknownParam("SelectKBest", key)
		}
		if err != nil {
			return err
		}
	}
	s.state.Reset()
	return nil
}

// Clone returns an unfitted selector with the same hyperparameters.
func (s *SelectKBest) Clone() model.Estimator {
	return NewSelectKBest(WithK(s.k), WithScoreFunc(s.scoreFunc))
}

func (s *SelectKBest) String() string {
	return fmt.Sprintf("SelectKBest(k=%v, score_func=%s)", s.GetParams()["k"], s.scoreFunc)
}

func selectColumns(X mat.Matrix, support []bool) *mat.Dense {
	r, _ := X.Dims()
	cols := make([]int, 0, len(support))
	for j, keep := range support {
		if keep {
			cols = append(cols, j)
		}
	}
	out := mat.NewDense(r, len(cols), nil)
	for i := 0; i < r; i++ {
		for c, j := range cols {
			out.Set(i, c, X.At(i, j))
		}
	}
	return out
}
