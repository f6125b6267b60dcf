// Package models is the closed catalog of regressors a run can train.
//
// Each catalog entry is one Spec case. A case carries its hyperparameters,
// builds its untrained estimator and binds the attribution algorithm that
// explains the fitted estimator, so adding a kind means adding exactly one
// case here.
package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/explain"
	"github.com/YuminosukeSato/shapgo/linear"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
	"github.com/YuminosukeSato/shapgo/sklearn/ensemble"
)

// Kind is a catalog key.
type Kind string

const (
	LinearRegression      Kind = "linear_regression"
	RandomForestRegressor Kind = "random_forest_regressor"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{LinearRegression, RandomForestRegressor}
}

// Hyperparameters are the tunables read from configuration. Only
// random_forest_regressor uses them.
type Hyperparameters struct {
	NEstimators     int
	MaxDepth        int // 0 = unbounded
	MinSamplesSplit int
	RandomState     int64
}

// Param is one hyperparameter as logged to a tracking sink.
type Param struct {
	Key   string
	Value interface{}
}

// Spec is one case of the catalog. It is sealed: only this package
// implements it.
type Spec interface {
	Kind() Kind
	// Params returns the hyperparameters in a fixed order.
	Params() []Param
	// New returns an untrained estimator.
	New() model.Regressor
	// Explainer binds the attribution algorithm for an estimator fitted from
	// this Spec. background is the transformed training matrix.
	Explainer(fitted model.Regressor, background mat.Matrix) (explain.Explainer, error)

	sealed()
}

// Select validates hp and returns the Spec for kind.
func Select(kind string, hp Hyperparameters) (Spec, error) {
	switch Kind(kind) {
	case LinearRegression:
		return LinearRegressionSpec{}, nil
	case RandomForestRegressor:
		spec := RandomForestSpec{
			NEstimators:     hp.NEstimators,
			MaxDepth:        hp.MaxDepth,
			MinSamplesSplit: hp.MinSamplesSplit,
			RandomState:     hp.RandomState,
		}
		if err := spec.validate(); err != nil {
			return nil, err
		}
		return spec, nil
	default:
		return nil, errors.NewUnsupportedModelError("select", kind)
	}
}

// LinearRegressionSpec selects ordinary least squares.
type LinearRegressionSpec struct{}

func (LinearRegressionSpec) sealed() {}

// Kind implements Spec.
func (LinearRegressionSpec) Kind() Kind { return LinearRegression }

// Params implements Spec.
func (LinearRegressionSpec) Params() []Param { return nil }

// New implements Spec.
func (LinearRegressionSpec) New() model.Regressor { return linear.NewLinearRegression() }

// Explainer binds linear SHAP against the background column means.
func (s LinearRegressionSpec) Explainer(fitted model.Regressor, background mat.Matrix) (explain.Explainer, error) {
	lr, ok := fitted.(*linear.LinearRegression)
	if !ok {
		return nil, errors.NewUnsupportedModelError("explain", fitted.Name())
	}
	if err := lr.RequireFitted(lr.Name(), "Explainer"); err != nil {
		return nil, err
	}
	return explain.NewLinearExplainer(lr.GetWeights(), lr.GetIntercept(), background)
}

// RandomForestSpec selects a bagged forest of CART regressors.
type RandomForestSpec struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	RandomState     int64
}

func (RandomForestSpec) sealed() {}

// Kind implements Spec.
func (RandomForestSpec) Kind() Kind { return RandomForestRegressor }

func (s RandomForestSpec) validate() error {
	if s.NEstimators < 1 {
		return errors.NewConfigurationError("select", "n_estimators", "must be >= 1", s.NEstimators)
	}
	if s.MaxDepth < 0 {
		return errors.NewConfigurationError("select", "max_depth", "must be >= 1, or 0 for unbounded", s.MaxDepth)
	}
	if s.MinSamplesSplit < 2 {
		return errors.NewConfigurationError("select", "min_samples_split", "must be >= 2", s.MinSamplesSplit)
	}
	return nil
}

// Params implements Spec.
func (s RandomForestSpec) Params() []Param {
	maxDepth := interface{}(s.MaxDepth)
	if s.MaxDepth == 0 {
		maxDepth = "None"
	}
	return []Param{
		{Key: "n_estimators", Value: s.NEstimators},
		{Key: "max_depth", Value: maxDepth},
		{Key: "min_samples_split", Value: s.MinSamplesSplit},
	}
}

// New implements Spec.
func (s RandomForestSpec) New() model.Regressor {
	return ensemble.NewRandomForestRegressor(
		ensemble.WithNEstimators(s.NEstimators),
		ensemble.WithMaxDepth(s.MaxDepth),
		ensemble.WithMinSamplesSplit(s.MinSamplesSplit),
		ensemble.WithRandomState(s.RandomState),
	)
}

// Explainer binds exact TreeSHAP over the forest's trees. The background is
// carried by the node covers, so the matrix is not used.
func (s RandomForestSpec) Explainer(fitted model.Regressor, _ mat.Matrix) (explain.Explainer, error) {
	rf, ok := fitted.(*ensemble.RandomForestRegressor)
	if !ok {
		return nil, errors.NewUnsupportedModelError("explain", fitted.Name())
	}
	if err := rf.RequireFitted(rf.Name(), "Explainer"); err != nil {
		return nil, err
	}
	return explain.NewTreeExplainer(rf.Estimators())
}

// String formats a Spec for logs.
func String(s Spec) string {
	out := string(s.Kind())
	for _, p := range s.Params() {
		out += fmt.Sprintf(" %s=%v", p.Key, p.Value)
	}
	return out
}
