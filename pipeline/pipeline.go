// Package pipeline chains named transformers and a final estimator into a
// single estimator whose steps and step parameters can be searched over.
//
// Parameters of a step are addressed as "<step>__<param>"; the step name on
// its own addresses the whole step, so a search can swap one transformer for
// another or for "passthrough":
//
//	p, _ := pipeline.New(
//	    pipeline.NewStep("scale", preprocessing.NewStandardScalerDefault()),
//	    pipeline.NewStep("reduce_dim", decomposition.NewPCA()),
//	    pipeline.NewStep("clf", linear_model.NewLogisticRegression()),
//	)
//	_ = p.SetParams(map[string]interface{}{
//	    "reduce_dim": pipeline.PassthroughName,
//	    "clf__C":     10.0,
//	})
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
	"github.com/YuminosukeSato/scigo-tune/pkg/log"
)

// PassthroughName is the parameter value that disables a step.
const PassthroughName = "passthrough"

const separator = "__"

// Step is a named pipeline stage. A nil Estimator passes data through unchanged.
type Step struct {
	Name      string
	Estimator model.Estimator
}

// NewStep creates a named step.
func NewStep(name string, est model.Estimator) Step {
	return Step{Name: name, Estimator: est}
}

// Pipeline applies its intermediate steps as transformers and fits the final
// step on the transformed data.
type Pipeline struct {
	state  *model.StateManager
	steps  []Step
	logger log.Logger
}

// New creates a pipeline. Step names must be non-empty, unique and must not
// contain "__".
func New(steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, errors.NewValidationError("steps", "a pipeline needs at least one step", 0)
	}
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.Name == "" || strings.Contains(s.Name, separator) {
			return nil, errors.NewValidationError("steps", "step names must be non-empty and must not contain \"__\"", s.Name)
		}
		if seen[s.Name] {
			return nil, errors.NewValidationError("steps", "step names must be unique", s.Name)
		}
		seen[s.Name] = true
	}
	return &Pipeline{
		state:  model.NewStateManager(),
		steps:  append([]Step(nil), steps...),
		logger: log.GetLoggerWithName("pipeline"),
	}, nil
}

// MustNew is like New but panics on invalid steps. It is meant for
// package-level literals and tests.
func MustNew(steps ...Step) *Pipeline {
	p, err := New(steps...)
	if err != nil {
		panic(err)
	}
	return p
}

// Steps returns a copy of the steps.
func (p *Pipeline) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// NamedStep returns the estimator of the named step.
func (p *Pipeline) NamedStep(name string) (model.Estimator, bool) {
	i := p.indexOf(name)
	if i < 0 {
		return nil, false
	}
	return p.steps[i].Estimator, true
}

func (p *Pipeline) indexOf(name string) int {
	for i, s := range p.steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func (p *Pipeline) final() Step {
	return p.steps[len(p.steps)-1]
}

// transformers checks that every intermediate step can transform.
func (p *Pipeline) transformers() ([]model.Transformer, error) {
	out := make([]model.Transformer, len(p.steps)-1)
	for i, s := range p.steps[:len(p.steps)-1] {
		if s.Estimator == nil {
			continue
		}
		t, ok := s.Estimator.(model.Transformer)
		if !ok {
			return nil, errors.NewValidationError(s.Name,
				fmt.Sprintf("intermediate steps must be transformers or %q, got %s", PassthroughName, model.NameOf(s.Estimator)),
				model.NameOf(s.Estimator))
		}
		out[i] = t
	}
	return out, nil
}

// Fit fits each intermediate transformer on the output of the previous one,
// then fits the final estimator.
func (p *Pipeline) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "Pipeline.Fit")

	ts, err := p.transformers()
	if err != nil {
		return err
	}
	nSamples, nFeatures, err := model.CheckX("Pipeline.Fit", X)
	if err != nil {
		return err
	}

	Xt := X
	for i, t := range ts {
		if t == nil {
			continue
		}
		Xt, err = model.FitTransform(t, Xt, y)
		if err != nil {
			return errors.Wrapf(err, "pipeline step %q", p.steps[i].Name)
		}
		if p.logger.Enabled(context.Background(), log.LevelDebug) {
			_, cols := Xt.Dims()
			p.logger.Debug("Step fitted", log.ComponentKey, p.steps[i].Name, log.FeaturesKey, cols)
		}
	}

	last := p.final()
	if last.Estimator != nil {
		if err := last.Estimator.Fit(Xt, y); err != nil {
			return errors.Wrapf(err, "pipeline step %q", last.Name)
		}
	}

	p.state.SetFitted(nFeatures, nSamples)
	return nil
}

// transformUpTo applies the fitted intermediate steps to X.
func (p *Pipeline) transformUpTo(X mat.Matrix, op string) (mat.Matrix, error) {
	if err := p.state.RequireFitted("Pipeline", op); err != nil {
		return nil, err
	}
	if err := p.state.CheckFeatures("Pipeline."+op, X); err != nil {
		return nil, err
	}
	Xt := X
	for _, s := range p.steps[:len(p.steps)-1] {
		if s.Estimator == nil {
			continue
		}
		var err error
		Xt, err = s.Estimator.(model.Transformer).Transform(Xt)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline step %q", s.Name)
		}
	}
	return Xt, nil
}

// Predict transforms X and calls Predict on the final step.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transformUpTo(X, "Predict")
	if err != nil {
		return nil, err
	}
	pred, ok := p.final().Estimator.(model.Predictor)
	if !ok {
		return nil, errors.NewValueError("Pipeline.Predict", "final step "+p.final().Name+" cannot predict")
	}
	return pred.Predict(Xt)
}

// PredictProba transforms X and calls PredictProba on the final step.
func (p *Pipeline) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transformUpTo(X, "PredictProba")
	if err != nil {
		return nil, err
	}
	clf, ok := p.final().Estimator.(model.Classifier)
	if !ok {
		return nil, errors.NewValueError("Pipeline.PredictProba", "final step "+p.final().Name+" is not a classifier")
	}
	return clf.PredictProba(Xt)
}

// Transform applies every step; the final step must be a transformer or
// passthrough.
func (p *Pipeline) Transform(X mat.Matrix) (mat.Matrix, error) {
	Xt, err := p.transformUpTo(X, "Transform")
	if err != nil {
		return nil, err
	}
	last := p.final()
	if last.Estimator == nil {
		return Xt, nil
	}
	t, ok := last.Estimator.(model.Transformer)
	if !ok {
		return nil, errors.NewValueError("Pipeline.Transform", "final step "+last.Name+" is not a transformer")
	}
	return t.Transform(Xt)
}

// Classes returns the class labels of the final classifier, or nil.
func (p *Pipeline) Classes() []int {
	if clf, ok := p.final().Estimator.(model.Classifier); ok {
		return clf.Classes()
	}
	return nil
}

// IsClassifier reports whether the final step is a classifier.
func (p *Pipeline) IsClassifier() bool {
	_, ok := p.final().Estimator.(model.Classifier)
	return ok
}

// GetParams returns every step under its name plus every step parameter as
// "<step>__<param>".
func (p *Pipeline) GetParams() map[string]interface{} {
	params := make(map[string]interface{})
	for _, s := range p.steps {
		if s.Estimator == nil {
			params[s.Name] = PassthroughName
			continue
		}
		params[s.Name] = s.Estimator
		for k, v := range s.Estimator.GetParams() {
			params[s.Name+separator+k] = v
		}
	}
	return params
}

// SetParams replaces whole steps first, then routes "<step>__<param>" keys to
// the step's own SetParams.
func (p *Pipeline) SetParams(params map[string]interface{}) error {
	nested := make(map[string]map[string]interface{})

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		name, sub, isNested := strings.Cut(key, separator)
		i := p.indexOf(name)
		if i < 0 {
			return errors.NewValidationError(key, "invalid parameter for Pipeline: no step named "+name, key)
		}
		if isNested {
			if nested[name] == nil {
				nested[name] = make(map[string]interface{})
			}
			nested[name][sub] = value
			continue
		}

		est, err := stepValue(key, value)
		if err != nil {
			return err
		}
		p.steps[i].Estimator = est
	}

	for _, s := range p.steps {
		sub, ok := nested[s.Name]
		if !ok {
			continue
		}
		if s.Estimator == nil {
			return errors.NewValidationError(s.Name, "cannot set parameters of a passthrough step", sub)
		}
		if err := s.Estimator.SetParams(sub); err != nil {
			return errors.Wrapf(err, "pipeline step %q", s.Name)
		}
	}

	p.state.Reset()
	return nil
}

// stepValue turns a parameter value into a step estimator. Estimators are
// cloned so the same grid value can be used by many candidates.
func stepValue(key string, value interface{}) (model.Estimator, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if v == PassthroughName {
			return nil, nil
		}
	case model.Estimator:
		return v.Clone(), nil
	}
	return nil, errors.NewValidationError(key, "a step must be an estimator or \"passthrough\"", value)
}

// Clone returns an unfitted pipeline whose steps are clones of this one's.
func (p *Pipeline) Clone() model.Estimator {
	steps := make([]Step, len(p.steps))
	for i, s := range p.steps {
		steps[i] = Step{Name: s.Name}
		if s.Estimator != nil {
			steps[i].Estimator = s.Estimator.Clone()
		}
	}
	return &Pipeline{state: model.NewStateManager(), steps: steps, logger: p.logger}
}

func (p *Pipeline) String() string {
	parts := make([]string, len(p.steps))
	for i, s := range p.steps {
		desc := PassthroughName
		if s.Estimator != nil {
			if st, ok := s.Estimator.(fmt.Stringer); ok {
				desc = st.String()
			} else {
				desc = model.NameOf(s.Estimator)
			}
		}
		parts[i] = fmt.Sprintf("(%q, %s)", s.Name, desc)
	}
	return "Pipeline(steps=[" + strings.Join(parts, ", ") + "])"
}
