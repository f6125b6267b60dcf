// Package model provides the estimator contracts shared by every regressor
// in the catalog.
package model

// ImportanceSource describes where an importance vector came from.
type ImportanceSource string

const (
	// ImpurityImportance is the normalised mean decrease in impurity of a tree ensemble.
	ImpurityImportance ImportanceSource = "impurity"
	// CoefficientImportance is the absolute value of linear coefficients.
	CoefficientImportance ImportanceSource = "coefficient"
)

// Regressor is an estimator that fits a continuous target.
//
// FeatureImportances is a compile-time capability: every regressor states
// whether it exposes an importance signal instead of callers probing for one.
// ok is false when the model has no such signal or is not fitted.
type Regressor interface {
	Fitter
	Predictor

	// Name returns the estimator type name used in logs and errors.
	Name() string

	// FeatureImportances returns one score per input feature.
	FeatureImportances() (scores []float64, source ImportanceSource, ok bool)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}
