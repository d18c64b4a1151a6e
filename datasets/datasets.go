// Package datasets provides the toy datasets used by the experiments: the
// embedded iris table, a synthetic Gaussian-cluster generator and a CSV loader
// for user data.
package datasets

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/scigo-tune/core/model"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

//go:embed data/iris.csv
var irisCSV string

// Dataset is a feature matrix with integer class labels.
type Dataset struct {
	Name         string
	X            *mat.Dense // n_samples x n_features
	Y            *mat.Dense // n_samples x 1
	FeatureNames []string
	// TargetNames[i] names label i. Empty when labels were numeric.
	TargetNames []string
}

// NSamples returns the number of rows.
func (d *Dataset) NSamples() int {
	r, _ := d.X.Dims()
	return r
}

// NFeatures returns the number of columns.
func (d *Dataset) NFeatures() int {
	_, c := d.X.Dims()
	return c
}

// Classes returns the sorted distinct labels.
func (d *Dataset) Classes() []int {
	return model.UniqueClasses(model.Labels(d.Y))
}

// LoadIris returns Fisher's iris data: 150 samples, 4 features, 3 classes
// (0 setosa, 1 versicolor, 2 virginica).
func LoadIris() *Dataset {
	ds, err := LoadCSV(strings.NewReader(irisCSV), "species")
	if err != nil {
		panic(fmt.Sprintf("datasets: embedded iris data is corrupt: %v", err))
	}
	ds.Name = "iris"
	return ds
}

// LoadCSV reads a CSV with a header row. targetColumn names the label column;
// every other column must be numeric. Numeric labels are used as they are,
// otherwise the distinct label strings are sorted and numbered from 0.
func LoadCSV(r io.Reader, targetColumn string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "error reading data header")
	}
	target := -1
	featureNames := make([]string, 0, len(header)-1)
	for i, col := range header {
		if col == targetColumn {
			target = i
			continue
		}
		featureNames = append(featureNames, col)
	}
	if target < 0 {
		return nil, errors.NewValidationError("target_column", fmt.Sprintf("not found in header %v", header), targetColumn)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "error reading data rows")
	}
	if len(records) == 0 {
		return nil, errors.NewModelError("LoadCSV", "empty data", errors.ErrEmptyData)
	}

	nFeatures := len(featureNames)
	data := make([]float64, 0, len(records)*nFeatures)
	rawTargets := make([]string, len(records))
	for line, rec := range records {
		for i, field := range rec {
			if i == target {
				rawTargets[line] = field
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.NewValueError("LoadCSV",
					fmt.Sprintf("line %d column %q: %v", line+2, header[i], err))
			}
			data = append(data, v)
		}
	}

	labels, targetNames := encodeTargets(rawTargets)
	y := mat.NewDense(len(records), 1, labels)

	return &Dataset{
		X:            mat.NewDense(len(records), nFeatures, data),
		Y:            y,
		FeatureNames: featureNames,
		TargetNames:  targetNames,
	}, nil
}

func encodeTargets(raw []string) ([]float64, []string) {
	labels := make([]float64, len(raw))
	numeric := true
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			numeric = false
			break
		}
		labels[i] = v
	}
	if numeric {
		return labels, nil
	}

	seen := map[string]struct{}{}
	var names []string
	for _, s := range raw {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			names = append(names, s)
		}
	}
	sort.Strings(names)
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	for i, s := range raw {
		labels[i] = float64(index[s])
	}
	return labels, names
}

// ClassificationOption configures MakeClassification.
type ClassificationOption func(*classificationConfig)

type classificationConfig struct {
	nSamples     int
	nFeatures    int
	nInformative int
	nClasses     int
	classSep     float64
	shuffle      bool
	seed         int
}

// WithNSamples sets the number of rows (default 100).
func WithNSamples(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nSamples = n }
}

// WithNFeatures sets the total number of features (default 20).
func WithNFeatures(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nFeatures = n }
}

// WithNInformative sets how many leading features carry class signal (default 2).
func WithNInformative(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nInformative = n }
}

// WithNClasses sets the number of classes (default 2).
func WithNClasses(n int) ClassificationOption {
	return func(c *classificationConfig) { c.nClasses = n }
}

// WithClassSep scales the distance between class centroids (default 1.0).
func WithClassSep(sep float64) ClassificationOption {
	return func(c *classificationConfig) { c.classSep = sep }
}

// WithShuffle controls whether the rows are shuffled (default true).
func WithShuffle(shuffle bool) ClassificationOption {
	return func(c *classificationConfig) { c.shuffle = shuffle }
}

// WithSeed sets the random seed (default 0).
func WithSeed(seed int) ClassificationOption {
	return func(c *classificationConfig) { c.seed = seed }
}

// MakeClassification generates a random n-class problem.
//
// Each class is a unit-variance Gaussian cluster centred on a distinct vertex
// of a hypercube with side 2*class_sep spanned by the first n_informative
// features. The remaining features are standard normal noise. Classes are
// balanced (sample i has label i mod n_classes before shuffling) and the same
// seed always yields the same data.
func MakeClassification(opts ...ClassificationOption) (*Dataset, error) {
	cfg := classificationConfig{
		nSamples:     100,
		nFeatures:    20,
		nInformative: 2,
		nClasses:     2,
		classSep:     1.0,
		shuffle:      true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case cfg.nClasses < 2:
		return nil, errors.NewValidationError("n_classes", "must be at least 2", cfg.nClasses)
	case cfg.nSamples < cfg.nClasses:
		return nil, errors.NewValidationError("n_samples", "must be at least n_classes", cfg.nSamples)
	case cfg.nInformative < 1 || cfg.nInformative > cfg.nFeatures:
		return nil, errors.NewValidationError("n_informative", "must be in [1, n_features]", cfg.nInformative)
	case cfg.nInformative < 31 && cfg.nClasses > 1<<cfg.nInformative:
		return nil, errors.NewValidationError("n_classes",
			fmt.Sprintf("n_classes must be smaller or equal 2**n_informative (%d)", 1<<cfg.nInformative), cfg.nClasses)
	}

	src := rand.NewPCG(uint64(cfg.seed), uint64(cfg.seed))
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	X := mat.NewDense(cfg.nSamples, cfg.nFeatures, nil)
	labels := make([]float64, cfg.nSamples)
	for i := 0; i < cfg.nSamples; i++ {
		c := i % cfg.nClasses
		labels[i] = float64(c)
		for j := 0; j < cfg.nFeatures; j++ {
			v := noise.Rand()
			if j < cfg.nInformative {
				if c>>j&1 == 1 {
					v += cfg.classSep
				} else {
					v -= cfg.classSep
				}
			}
			X.Set(i, j, v)
		}
	}

	if cfg.shuffle {
		perm := rand.New(src).Perm(cfg.nSamples)
		shuffled := mat.NewDense(cfg.nSamples, cfg.nFeatures, nil)
		shuffledLabels := make([]float64, cfg.nSamples)
		for dst, from := range perm {
			shuffled.SetRow(dst, X.RawRowView(from))
			shuffledLabels[dst] = labels[from]
		}
		X, labels = shuffled, shuffledLabels
	}

	names := make([]string, cfg.nFeatures)
	for j := range names {
		names[j] = fmt.Sprintf("x%d", j)
	}
	return &Dataset{
		Name:         "make_classification",
		X:            X,
		Y:            mat.NewDense(cfg.nSamples, 1, labels),
		FeatureNames: names,
	}, nil
}
