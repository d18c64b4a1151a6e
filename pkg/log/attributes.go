// Package log defines standard attribute keys for machine learning operations.
//
// Using these keys keeps the search runner, the estimators and the CLI
// consistent, so log output from a whole search can be filtered by
// "search.candidate" or "ml.operation".

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "LogisticRegression", "Pipeline", "GridSearchCV"
	ModelNameKey = "model.name"

	// OperationKey specifies the machine learning operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of distinct class labels.
	ClassesKey = "data.classes"

	// DatasetKey names the dataset a cell loaded.
	DatasetKey = "data.name"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"

	// ScoreKey records the value of the configured scorer.
	ScoreKey = "metrics.score"

	// ScoringKey names the scorer in use, e.g. "accuracy" or "f1_macro".
	ScoringKey = "metrics.scoring"
)

// Search Context
const (
	// ExperimentKey names the experiment (notebook cell) being run.
	ExperimentKey = "search.experiment"

	// CandidatesKey records how many parameter settings a search evaluates.
	CandidatesKey = "search.candidates"

	// CandidateKey identifies one parameter setting by index.
	CandidateKey = "search.candidate"

	// SplitsKey records the number of cross-validation splits.
	SplitsKey = "search.splits"

	// SplitKey identifies one cross-validation split by index.
	SplitKey = "search.split"

	// JobsKey records the worker pool size.
	JobsKey = "search.n_jobs"

	// ParamsKey contains a parameter setting.
	ParamsKey = "search.params"

	// RankKey records the rank of a candidate.
	RankKey = "search.rank"
)

// Errors and Configuration
const (
	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"

	// WarningKey carries the message of a library warning.
	WarningKey = "error.warning"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit    = "fit"
	OperationSearch = "search"
	OperationRefit  = "refit"

	PhaseTraining = "training"
	PhaseTesting  = "testing"
)
