package explain

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// LinearExplainer computes exact SHAP values of a linear model under feature
// independence: φ_ij = coef_j (x_ij − mean_j).
type LinearExplainer struct {
	coef      []float64
	intercept float64
	mean      []float64
}

// NewLinearExplainer uses the column means of background as the reference point.
func NewLinearExplainer(coef []float64, intercept float64, background mat.Matrix) (*LinearExplainer, error) {
	r, c := background.Dims()
	if r == 0 {
		return nil, errors.NewEmptyInputError("NewLinearExplainer")
	}
	if c != len(coef) {
		return nil, errors.NewDimensionMismatchError("NewLinearExplainer", len(coef), c)
	}
	mean := make([]float64, c)
	for j := range mean {
		mean[j] = floats.Sum(mat.Col(nil, j, background)) / float64(r)
	}
	return &LinearExplainer{coef: append([]float64(nil), coef...), intercept: intercept, mean: mean}, nil
}

// ExpectedValue returns intercept + coef·mean.
func (e *LinearExplainer) ExpectedValue() float64 {
	return e.intercept + floats.Dot(e.coef, e.mean)
}

// ShapValues implements Explainer.
func (e *LinearExplainer) ShapValues(X mat.Matrix) (*mat.Dense, error) {
	r, c := X.Dims()
	if c != len(e.coef) {
		return nil, errors.NewDimensionError("LinearExplainer.ShapValues", len(e.coef), c, 1)
	}
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return e.coef[j] * (v - e.mean[j])
	}, X)
	return out, nil
}
