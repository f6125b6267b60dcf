// Package log defines standard attribute keys for training-run logging.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so that log records from different stages can be filtered uniformly.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "LinearRegression", "RandomForestRegressor", "ColumnTransformer"
	ModelNameKey = "model.name"

	// ModelKindKey is the catalog key the estimator was selected with.
	// Examples: "linear_regression", "random_forest_regressor"
	ModelKindKey = "model.kind"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "evaluate", "explain"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// StageKey names the run stage (split, fit, evaluate, importance, explain, sink).
	StageKey = "run.stage"

	// RunIDKey is the tracking-sink run identifier.
	RunIDKey = "run.id"

	// ArtifactKey is the path of an artifact handed to the sink.
	ArtifactKey = "run.artifact"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// NumericColumnsKey is the number of numeric input columns.
	NumericColumnsKey = "data.numeric_columns"

	// CategoricalColumnsKey is the number of categorical input columns.
	CategoricalColumnsKey = "data.categorical_columns"

	// TrainSamplesKey and TestSamplesKey describe a split.
	TrainSamplesKey = "data.train_samples"
	TestSamplesKey  = "data.test_samples"
)

// Performance and Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// MSEKey, MAEKey and R2ScoreKey are the regression metrics.
	MSEKey     = "metrics.mse"
	MAEKey     = "metrics.mae"
	R2ScoreKey = "metrics.r2_score"

	// TopFeatureKey is the most attributed feature of an explanation.
	TopFeatureKey = "explain.top_feature"

	// ImportanceSourceKey is "impurity" or "coefficient".
	ImportanceSourceKey = "importance.source"
)

// Hyperparameters and Configuration
const (
	// NEstimatorsKey records the ensemble size.
	NEstimatorsKey = "hyperparams.n_estimators"

	// MaxDepthKey records the maximum tree depth (0 = unbounded).
	MaxDepthKey = "hyperparams.max_depth"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Error Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information extracted from
	// cockroachdb/errors values.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationEvaluate  = "evaluate"
	OperationExplain   = "explain"
	OperationSplit     = "split"
)
