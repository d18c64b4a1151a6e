package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// Distribution is a parameter distribution for RandomizedSearchCV.
type Distribution interface {
	// Sample draws one value using src.
	Sample(src rand.Source) interface{}
	String() string
}

// Uniform is the continuous uniform distribution on [Loc, Loc+Scale).
type Uniform struct {
	Loc   float64
	Scale float64
}

// Sample draws a float64.
func (u Uniform) Sample(src rand.Source) interface{} {
	return distuv.Uniform{Min: u.Loc, Max: u.Loc + u.Scale, Src: src}.Rand()
}

func (u Uniform) String() string { return fmt.Sprintf("uniform(loc=%g, scale=%g)", u.Loc, u.Scale) }

// LogUniform is uniform in log space on [Low, High); use it for C-like
// parameters that span orders of magnitude.
type LogUniform struct {
	Low  float64
	High float64
}

// Sample draws a float64.
func (l LogUniform) Sample(src rand.Source) interface{} {
	return math.Exp(distuv.Uniform{Min: math.Log(l.Low), Max: math.Log(l.High), Src: src}.Rand())
}

func (l LogUniform) String() string { return fmt.Sprintf("loguniform(%g, %g)", l.Low, l.High) }

// RandInt draws integers uniformly from [Low, High).
type RandInt struct {
	Low  int
	High int
}

// Sample draws an int.
func (r RandInt) Sample(src rand.Source) interface{} {
	return r.Low + rand.New(src).IntN(r.High-r.Low)
}

func (r RandInt) String() string { return fmt.Sprintf("randint(%d, %d)", r.Low, r.High) }

// Choice picks one of Values uniformly. Values may be estimators.
type Choice struct {
	Values []interface{}
}

// NewChoice is shorthand for Choice{Values: values}.
func NewChoice(values ...interface{}) Choice {
	return Choice{Values: values}
}

// Sample returns one of the values.
func (c Choice) Sample(src rand.Source) interface{} {
	return c.Values[rand.New(src).IntN(len(c.Values))]
}

func (c Choice) String() string { return fmt.Sprintf("choice(%v)", c.Values) }

func validateDistribution(name string, d Distribution) error {
	switch v := d.(type) {
	case nil:
		return errors.NewValidationError(name, "distribution is nil", d)
	case Uniform:
		if !(v.Scale > 0) {
			return errors.NewValidationError(name, "uniform scale must be positive", v.Scale)
		}
	case LogUniform:
		if !(v.Low > 0 && v.High > v.Low) {
			return errors.NewValidationError(name, "loguniform requires 0 < low < high", v)
		}
	case RandInt:
		if v.High <= v.Low {
			return errors.NewValidationError(name, "randint requires low < high", v)
		}
	case Choice:
		if len(v.Values) == 0 {
			return errors.NewValidationError(name, "choice needs at least one value", v)
		}
	}
	return nil
}

// Space maps parameter names to distributions.
type Space map[string]Distribution

// ParameterSampler draws a fixed list of candidates from a Space.
//
// When every distribution is a Choice the space is finite: candidates are then
// drawn from the full grid without replacement, and if the grid has fewer than
// nIter points the sampler warns and returns the whole grid. Otherwise every
// candidate is drawn independently. The same seed always yields the same list.
type ParameterSampler struct {
	space      Space
	nIter      int
	seed       int
	candidates []map[string]interface{}
}

// NewParameterSampler validates the space and draws the candidates.
func NewParameterSampler(space Space, nIter int, seed int) (*ParameterSampler, error) {
	if len(space) == 0 {
		return nil, errors.NewValidationError("param_distributions", "at least one distribution is required", space)
	}
	if nIter < 1 {
		return nil, errors.NewValidationError("n_iter", "must be at least 1", nIter)
	}

	keys := make([]string, 0, len(space))
	for k := range space {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	allChoice := true
	for _, k := range keys {
		if err := validateDistribution(k, space[k]); err != nil {
			return nil, err
		}
		if _, ok := space[k].(Choice); !ok {
			allChoice = false
		}
	}

	ps := &ParameterSampler{space: space, nIter: nIter, seed: seed}
	src := rand.NewPCG(uint64(seed), uint64(seed))

	if allChoice {
		grid := make(Grid, len(space))
		for _, k := range keys {
			grid[k] = space[k].(Choice).Values
		}
		pg, err := NewParameterGrid(grid)
		if err != nil {
			return nil, err
		}

		n := nIter
		if pg.Len() < nIter {
			errors.Warn(errors.NewSearchSpaceWarning("ParameterSampler",
				fmt.Sprintf("the total space of parameters %d is smaller than n_iter=%d; running %d iterations", pg.Len(), nIter, pg.Len())))
			n = pg.Len()
		}
		idxs := make([]int, n)
		sampleuv.WithoutReplacement(idxs, pg.Len(), src)
		for _, i := range idxs {
			ps.candidates = append(ps.candidates, pg.At(i))
		}
		return ps, nil
	}

	ps.candidates = make([]map[string]interface{}, nIter)
	for i := range ps.candidates {
		params := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			params[k] = space[k].Sample(src)
		}
		ps.candidates[i] = params
	}
	return ps, nil
}

// Len returns the number of candidates actually drawn.
func (ps *ParameterSampler) Len() int { return len(ps.candidates) }

// At returns the i-th candidate.
func (ps *ParameterSampler) At(i int) map[string]interface{} {
	out := make(map[string]interface{}, len(ps.candidates[i]))
	for k, v := range ps.candidates[i] {
		out[k] = v
	}
	return out
}

// All returns every drawn candidate.
func (ps *ParameterSampler) All() []map[string]interface{} {
	out := make([]map[string]interface{}, ps.Len())
	for i := range out {
		out[i] = ps.At(i)
	}
	return out
}
