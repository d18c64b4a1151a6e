// Package model defines the estimator contracts shared by every learner,
// transformer, pipeline and search in scigo-tune.
package model

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Estimator is anything that can be fitted and whose hyperparameters can be
// read, changed and copied. Parameter names follow scikit-learn ("C",
// "max_depth", "n_components").
type Estimator interface {
	// Fit learns from X (n_samples x n_features) and y (n_samples x 1).
	// Unsupervised transformers accept a nil y.
	Fit(X, y mat.Matrix) error

	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}

	// SetParams sets the model's hyperparameters. Unknown keys are an error.
	SetParams(params map[string]interface{}) error

	// Clone returns an unfitted estimator with identical hyperparameters.
	Clone() Estimator
}

// Predictor is an estimator that produces one prediction per row.
type Predictor interface {
	Estimator

	// Predict returns an n_samples x 1 matrix of predictions.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier combines interfaces for classification models.
type Classifier interface {
	Predictor

	// PredictProba returns probability estimates for each class,
	// columns ordered as Classes().
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted class labels seen during fitting.
	Classes() []int
}

// Transformer is an estimator that maps a feature matrix to a new one.
type Transformer interface {
	Estimator

	// Transform applies the learned transformation.
	Transform(X mat.Matrix) (mat.Matrix, error)
}

// InverseTransformer can map transformed data back to the input space.
type InverseTransformer interface {
	Transformer
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}

// FitTransform fits t on X, y and returns the transformed X.
func FitTransform(t Transformer, X, y mat.Matrix) (mat.Matrix, error) {
	if err := t.Fit(X, y); err != nil {
		return nil, err
	}
	return t.Transform(X)
}

// NameOf returns the bare type name of an estimator, e.g. "PCA".
func NameOf(e interface{}) string {
	if e == nil {
		return "passthrough"
	}
	name := fmt.Sprintf("%T", e)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
