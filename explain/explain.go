// Package explain computes Shapley-value attributions for fitted regressors.
//
// Every attribution satisfies local accuracy: for each row,
// BaseValue + Σ_j Values[i][j] equals the model's prediction for that row.
package explain

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/importance"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Explainer computes per-row, per-feature attributions for one fitted model.
type Explainer interface {
	// ExpectedValue is the model output over the background distribution.
	ExpectedValue() float64
	// ShapValues returns an n×p matrix of attributions for X.
	ShapValues(X mat.Matrix) (*mat.Dense, error)
}

// Attribution holds SHAP values for a set of rows together with the
// transformed feature values they were computed from.
type Attribution struct {
	Values       *mat.Dense // SHAP values matrix (samples x features)
	BaseValue    float64    // Expected value (base value)
	FeatureNames []string
	Data         *mat.Dense // transformed feature values (samples x features)
}

// Explain runs the explainer on X and names its columns.
func Explain(e Explainer, X *mat.Dense, names []string) (*Attribution, error) {
	r, c := X.Dims()
	if r == 0 {
		return nil, errors.NewEmptyInputError("explain.Explain")
	}
	if len(names) != c {
		return nil, errors.NewDimensionMismatchError("explain.Explain", c, len(names))
	}
	values, err := e.ShapValues(X)
	if err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix("explain.Explain", values, r, c); err != nil {
		return nil, err
	}
	return &Attribution{
		Values:       values,
		BaseValue:    e.ExpectedValue(),
		FeatureNames: append([]string(nil), names...),
		Data:         X,
	}, nil
}

// Dims returns (samples, features).
func (a *Attribution) Dims() (int, int) {
	return a.Values.Dims()
}

// MeanAbs returns the mean absolute attribution of every feature.
func (a *Attribution) MeanAbs() []float64 {
	r, c := a.Values.Dims()
	out := make([]float64, c)
	for j := 0; j < c; j++ {
		var sum float64
		for i := 0; i < r; i++ {
			sum += math.Abs(a.Values.At(i, j))
		}
		out[j] = sum / float64(r)
	}
	return out
}

// Ranking orders features by mean absolute attribution, descending. Ties keep
// feature order.
func (a *Attribution) Ranking() importance.Record {
	rec, _ := importance.Rank(a.FeatureNames, a.MeanAbs())
	return rec
}

// TopFeature returns the feature with the largest mean absolute attribution
// and its column index.
func (a *Attribution) TopFeature() (string, int) {
	top := a.Ranking().Entries[0]
	return top.Feature, top.Index
}

// Column returns the feature values and attributions of column j, row-aligned.
func (a *Attribution) Column(j int) (values, shap []float64) {
	return mat.Col(nil, j, a.Data), mat.Col(nil, j, a.Values)
}

// Reconstruct returns BaseValue + Σ_j Values[i][j] for every row.
func (a *Attribution) Reconstruct() []float64 {
	r, _ := a.Values.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = a.BaseValue + mat.Sum(a.Values.RowView(i))
	}
	return out
}
