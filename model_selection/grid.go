package model_selection

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat/combin"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// Grid maps a parameter name ("C", "clf__max_depth", "reduce_dim") to the
// values to try.
type Grid map[string][]interface{}

// ParameterGrid enumerates the Cartesian product of one or more grids.
//
// Candidates are ordered grid by grid; within a grid the keys are sorted and
// the last key varies fastest:
//
//	g, _ := NewParameterGrid(Grid{"a": {1, 2}, "b": {true, false}})
//	g.All() // [{a:1 b:true} {a:1 b:false} {a:2 b:true} {a:2 b:false}]
type ParameterGrid struct {
	grids []Grid
	keys  [][]string
	dims  [][]int
	sizes []int
}

// NewParameterGrid validates the grids and builds the enumerator. A grid with
// no keys contributes a single empty candidate.
func NewParameterGrid(grids ...Grid) (*ParameterGrid, error) {
	if len(grids) == 0 {
		return nil, errors.NewValidationError("param_grid", "at least one grid is required", grids)
	}

	pg := &ParameterGrid{
		grids: grids,
		keys:  make([][]string, len(grids)),
		dims:  make([][]int, len(grids)),
		sizes: make([]int, len(grids)),
	}
	for g, grid := range grids {
		keys := make([]string, 0, len(grid))
		for k := range grid {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		dims := make([]int, len(keys))
		for i, k := range keys {
			if len(grid[k]) == 0 {
				return nil, errors.NewValidationError(k, "parameter grid values must be a non-empty list", grid[k])
			}
			dims[i] = len(grid[k])
		}

		pg.keys[g] = keys
		pg.dims[g] = dims
		if len(keys) == 0 {
			pg.sizes[g] = 1
		} else {
			pg.sizes[g] = combin.Card(dims)
		}
	}
	return pg, nil
}

// Len returns the total number of candidates.
func (pg *ParameterGrid) Len() int {
	total := 0
	for _, s := range pg.sizes {
		total += s
	}
	return total
}

// At returns the i-th candidate. It panics if i is out of range.
func (pg *ParameterGrid) At(i int) map[string]interface{} {
	if i < 0 || i >= pg.Len() {
		panic(fmt.Sprintf("model_selection: ParameterGrid index %d out of range [0, %d)", i, pg.Len()))
	}

	g := 0
	for i >= pg.sizes[g] {
		i -= pg.sizes[g]
		g++
	}

	keys := pg.keys[g]
	params := make(map[string]interface{}, len(keys))
	if len(keys) == 0 {
		return params
	}
	sub := combin.SubFor(nil, i, pg.dims[g])
	for j, k := range keys {
		params[k] = pg.grids[g][k][sub[j]]
	}
	return params
}

// All returns every candidate in enumeration order.
func (pg *ParameterGrid) All() []map[string]interface{} {
	out := make([]map[string]interface{}, pg.Len())
	for i := range out {
		out[i] = pg.At(i)
	}
	return out
}
