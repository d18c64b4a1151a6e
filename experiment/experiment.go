// Package experiment describes search experiments as data. Each experiment
// corresponds to one notebook cell: load a dataset, build an estimator or
// pipeline, declare a grid or distributions, run the cross-validated search
// and report the winner.
//
// Experiments are written in HCL:
//
//	experiment "pca_logistic" {
//	  dataset "iris" {}
//	  search  = "grid"
//	  cv      = 5
//
//	  step "scale" { estimator = "standard_scaler" }
//	  step "pca"   { estimator = "pca" }
//	  step "clf"   { estimator = "logistic_regression" }
//
//	  grid {
//	    param "pca__n_components" { values = [1, 2, 3, 4] }
//	    param "clf__C"            { values = [0.01, 0.1, 1, 10] }
//	  }
//	}
package experiment

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/datasets"
	"github.com/YuminosukeSato/scigo-tune/model_selection"
	"github.com/YuminosukeSato/scigo-tune/pipeline"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// Search kinds.
const (
	SearchGrid   = "grid"
	SearchRandom = "random"
)

// Experiment is a fully decoded experiment.
type Experiment struct {
	Name     string
	Title    string
	Dataset  DatasetSpec
	Search   string
	NIter    int
	CV       int
	Scoring  string
	Seed     int
	TestSize float64
	TopN     int
	NJobs    int

	Steps         []StepSpec
	Grids         []model_selection.Grid
	Distributions model_selection.Space
}

// DatasetSpec selects the data: "iris", "synthetic" or "csv".
type DatasetSpec struct {
	Kind         string
	NSamples     int
	NFeatures    int
	NInformative int
	NClasses     int
	ClassSep     float64
	Path         string
	Target       string
}

// StepSpec is one pipeline step.
type StepSpec struct {
	Name      string
	Estimator string
	Params    map[string]interface{}
}

// ---- HCL schema ----

type hclFile struct {
	Experiments []*hclExperiment `hcl:"experiment,block"`
}

type hclExperiment struct {
	Name          string             `hcl:"name,label"`
	Title         string             `hcl:"title,optional"`
	Search        string             `hcl:"search,optional"`
	NIter         int                `hcl:"n_iter,optional"`
	CV            int                `hcl:"cv,optional"`
	Scoring       string             `hcl:"scoring,optional"`
	Seed          int                `hcl:"seed,optional"`
	TestSize      float64            `hcl:"test_size,optional"`
	TopN          int                `hcl:"top_n,optional"`
	NJobs         int                `hcl:"n_jobs,optional"`
	Dataset       *hclDataset        `hcl:"dataset,block"`
	Steps         []*hclStep         `hcl:"step,block"`
	Grids         []*hclGrid         `hcl:"grid,block"`
	Distributions []*hclDistribution `hcl:"distribution,block"`
}

type hclDataset struct {
	Kind         string  `hcl:"kind,label"`
	NSamples     int     `hcl:"n_samples,optional"`
	NFeatures    int     `hcl:"n_features,optional"`
	NInformative int     `hcl:"n_informative,optional"`
	NClasses     int     `hcl:"n_classes,optional"`
	ClassSep     float64 `hcl:"class_sep,optional"`
	Path         string  `hcl:"path,optional"`
	Target       string  `hcl:"target,optional"`
}

type hclStep struct {
	Name      string    `hcl:"name,label"`
	Estimator string    `hcl:"estimator"`
	Params    cty.Value `hcl:"params,optional"`
}

type hclGrid struct {
	Params []*hclParam `hcl:"param,block"`
}

type hclParam struct {
	Name       string          `hcl:"name,label"`
	Values     cty.Value       `hcl:"values,optional"`
	Estimators []*hclEstimator `hcl:"estimator,block"`
}

type hclEstimator struct {
	Name   string    `hcl:"name,label"`
	Params cty.Value `hcl:"params,optional"`
}

type hclDistribution struct {
	Name       string          `hcl:"name,label"`
	Kind       string          `hcl:"kind"`
	Low        *float64        `hcl:"low,optional"`
	High       *float64        `hcl:"high,optional"`
	Values     cty.Value       `hcl:"values,optional"`
	Estimators []*hclEstimator `hcl:"estimator,block"`
}

// Parse decodes every experiment in src. filename is only used in diagnostics.
func Parse(src []byte, filename string) ([]*Experiment, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to parse HCL file %s", filename)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to decode HCL file %s", filename)
	}

	out := make([]*Experiment, 0, len(parsed.Experiments))
	seen := map[string]bool{}
	for _, h := range parsed.Experiments {
		if seen[h.Name] {
			return nil, errors.NewValidationError("experiment", "duplicate experiment name", h.Name)
		}
		seen[h.Name] = true

		exp, err := h.convert()
		if err != nil {
			return nil, errors.Wrapf(err, "experiment %q in %s", h.Name, filename)
		}
		out = append(out, exp)
	}
	return out, nil
}

// LoadFile reads and parses an experiment file.
func LoadFile(path string) ([]*Experiment, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read experiment file %s", path)
	}
	return Parse(src, path)
}

// Find returns the experiment with the given name.
func Find(exps []*Experiment, name string) (*Experiment, error) {
	for _, e := range exps {
		if e.Name == name {
			return e, nil
		}
	}
	names := make([]string, len(exps))
	for i, e := range exps {
		names[i] = e.Name
	}
	return nil, errors.NewValidationError("name", fmt.Sprintf("no such experiment; have %v", names), name)
}

func (h *hclExperiment) convert() (*Experiment, error) {
	exp := &Experiment{
		Name:     h.Name,
		Title:    h.Title,
		Search:   h.Search,
		NIter:    h.NIter,
		CV:       h.CV,
		Scoring:  h.Scoring,
		Seed:     h.Seed,
		TestSize: h.TestSize,
		TopN:     h.TopN,
		NJobs:    h.NJobs,
		Dataset:  DatasetSpec{Kind: "iris"},
	}
	exp.applyDefaults()

	if h.Dataset != nil {
		exp.Dataset = DatasetSpec{
			Kind:         h.Dataset.Kind,
			NSamples:     h.Dataset.NSamples,
			NFeatures:    h.Dataset.NFeatures,
			NInformative: h.Dataset.NInformative,
			NClasses:     h.Dataset.NClasses,
			ClassSep:     h.Dataset.ClassSep,
			Path:         h.Dataset.Path,
			Target:       h.Dataset.Target,
		}
	}

	for _, s := range h.Steps {
		params, err := ctyToParams(s.Name, s.Params)
		if err != nil {
			return nil, err
		}
		exp.Steps = append(exp.Steps, StepSpec{Name: s.Name, Estimator: s.Estimator, Params: params})
	}

	for _, g := range h.Grids {
		grid := model_selection.Grid{}
		for _, p := range g.Params {
			values, err := paramValues(p.Name, p.Values, p.Estimators)
			if err != nil {
				return nil, err
			}
			grid[p.Name] = values
		}
		exp.Grids = append(exp.Grids, grid)
	}

	if len(h.Distributions) > 0 {
		exp.Distributions = model_selection.Space{}
	}
	for _, d := range h.Distributions {
		dist, err := d.convert()
		if err != nil {
			return nil, err
		}
		exp.Distributions[d.Name] = dist
	}

	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return exp, nil
}

func (d *hclDistribution) convert() (model_selection.Distribution, error) {
	bounds := func() (float64, float64, error) {
		if d.Low == nil || d.High == nil {
			return 0, 0, errors.NewValidationError(d.Name, d.Kind+" needs low and high", nil)
		}
		return *d.Low, *d.High, nil
	}

	switch d.Kind {
	case "uniform":
		lo, hi, err := bounds()
		if err != nil {
			return nil, err
		}
		return model_selection.Uniform{Loc: lo, Scale: hi - lo}, nil
	case "loguniform":
		lo, hi, err := bounds()
		if err != nil {
			return nil, err
		}
		return model_selection.LogUniform{Low: lo, High: hi}, nil
	case "randint":
		lo, hi, err := bounds()
		if err != nil {
			return nil, err
		}
		return model_selection.RandInt{Low: int(lo), High: int(hi)}, nil
	case "choice":
		values, err := paramValues(d.Name, d.Values, d.Estimators)
		if err != nil {
			return nil, err
		}
		return model_selection.NewChoice(values...), nil
	default:
		return nil, errors.NewValidationError(d.Name+".kind",
			"must be one of uniform, loguniform, randint, choice", d.Kind)
	}
}

// paramValues merges literal values and estimator blocks into one list.
// Estimator candidates are built now; pipelines clone them on assignment.
func paramValues(name string, values cty.Value, estimators []*hclEstimator) ([]interface{}, error) {
	var out []interface{}
	if !values.IsNull() {
		list, err := ctyToList(name, values)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	for _, e := range estimators {
		params, err := ctyToParams(name+"."+e.Name, e.Params)
		if err != nil {
			return nil, err
		}
		if e.Name == pipeline.PassthroughName {
			out = append(out, pipeline.PassthroughName)
			continue
		}
		est, err := NewEstimator(e.Name, params)
		if err != nil {
			return nil, err
		}
		out = append(out, est)
	}
	if len(out) == 0 {
		return nil, errors.NewValidationError(name, "needs values or estimator blocks", nil)
	}
	return out, nil
}

func (e *Experiment) applyDefaults() {
	if e.Search == "" {
		e.Search = SearchGrid
	}
	if e.CV == 0 {
		e.CV = model_selection.DefaultCVFolds
	}
	if e.Scoring == "" {
		e.Scoring = "accuracy"
	}
	if e.NIter == 0 {
		e.NIter = 10
	}
	if e.TestSize == 0 {
		e.TestSize = 0.25
	}
	if e.TopN == 0 {
		e.TopN = 5
	}
	if e.NJobs == 0 {
		e.NJobs = 1
	}
}

// Validate checks the experiment without touching any data.
func (e *Experiment) Validate() error {
	if err := model.OneOf("search", e.Search, SearchGrid, SearchRandom); err != nil {
		return err
	}
	if err := model.OneOf("dataset", e.Dataset.Kind, "iris", "synthetic", "csv"); err != nil {
		return err
	}
	if e.Dataset.Kind == "csv" && (e.Dataset.Path == "" || e.Dataset.Target == "") {
		return errors.NewValidationError("dataset", "csv needs path and target", e.Dataset)
	}
	if len(e.Steps) == 0 {
		return errors.NewValidationError("step", "at least one step is required", nil)
	}
	if e.Search == SearchRandom && len(e.Distributions) == 0 {
		return errors.NewValidationError("distribution", "random search needs at least one distribution", nil)
	}
	if e.Search == SearchGrid && len(e.Distributions) > 0 {
		return errors.NewValidationError("distribution", "only allowed with search = \"random\"", e.Name)
	}
	if e.Search == SearchRandom && len(e.Grids) > 0 {
		return errors.NewValidationError("grid", "only allowed with search = \"grid\"", e.Name)
	}
	if _, err := model_selection.GetScorer(e.Scoring); err != nil {
		return err
	}
	_, err := e.BuildEstimator()
	return err
}

// BuildEstimator returns a fresh estimator for the experiment's steps: the
// bare estimator for a single step, a pipeline otherwise.
func (e *Experiment) BuildEstimator() (model.Estimator, error) {
	steps := make([]pipeline.Step, 0, len(e.Steps))
	for _, s := range e.Steps {
		est, err := NewEstimator(s.Estimator, s.Params)
		if err != nil {
			return nil, errors.Wrapf(err, "step %q", s.Name)
		}
		steps = append(steps, pipeline.NewStep(s.Name, est))
	}
	if len(steps) == 1 {
		if steps[0].Estimator == nil {
			return nil, errors.NewValidationError("step", "a single step cannot be passthrough", e.Steps[0].Name)
		}
		return steps[0].Estimator, nil
	}
	return pipeline.New(steps...)
}

// LoadDataset loads the experiment's data. Synthetic data uses the
// experiment seed.
func (e *Experiment) LoadDataset() (*datasets.Dataset, error) {
	d := e.Dataset
	switch d.Kind {
	case "iris":
		return datasets.LoadIris(), nil
	case "synthetic":
		opts := []datasets.ClassificationOption{datasets.WithSeed(e.Seed)}
		if d.NSamples > 0 {
			opts = append(opts, datasets.WithNSamples(d.NSamples))
		}
		if d.NFeatures > 0 {
			opts = append(opts, datasets.WithNFeatures(d.NFeatures))
		}
		if d.NInformative > 0 {
			opts = append(opts, datasets.WithNInformative(d.NInformative))
		}
		if d.NClasses > 0 {
			opts = append(opts, datasets.WithNClasses(d.NClasses))
		}
		if d.ClassSep > 0 {
			opts = append(opts, datasets.WithClassSep(d.ClassSep))
		}
		return datasets.MakeClassification(opts...)
	case "csv":
		f, err := os.Open(d.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "error opening file %s", d.Path)
		}
		defer f.Close()
		ds, err := datasets.LoadCSV(f, d.Target)
		if err != nil {
			return nil, err
		}
		ds.Name = d.Path
		return ds, nil
	default:
		return nil, errors.NewValidationError("dataset", "unknown dataset kind", d.Kind)
	}
}
