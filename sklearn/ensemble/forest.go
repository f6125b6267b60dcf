// Package ensemble implements bagged tree ensembles.
package ensemble

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/core/parallel"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
	"github.com/YuminosukeSato/shapgo/sklearn/tree"
)

// RandomForestRegressor averages regression trees grown on bootstrap samples.
//
// Tree i draws its bootstrap sample from a generator seeded with
// RandomState+i, so a fitted forest does not depend on goroutine scheduling.
type RandomForestRegressor struct {
	model.BaseEstimator

	nEstimators     int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	bootstrap       bool
	randomState     int64

	trees       []*tree.DecisionTreeRegressor
	nFeatures   int
	importances []float64
}

// Option configures a RandomForestRegressor.
type Option func(*RandomForestRegressor)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(f *RandomForestRegressor) { f.nEstimators = n }
}

// WithMaxDepth limits every tree's depth. 0 means unbounded.
func WithMaxDepth(depth int) Option {
	return func(f *RandomForestRegressor) { f.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum rows needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(f *RandomForestRegressor) { f.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum rows per leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(f *RandomForestRegressor) { f.minSamplesLeaf = n }
}

// WithBootstrap toggles bootstrap resampling. Without it every tree sees all rows.
func WithBootstrap(bootstrap bool) Option {
	return func(f *RandomForestRegressor) { f.bootstrap = bootstrap }
}

// WithRandomState sets the base seed.
func WithRandomState(seed int64) Option {
	return func(f *RandomForestRegressor) { f.randomState = seed }
}

// NewRandomForestRegressor creates an unfitted forest with scikit-learn's
// defaults: 100 trees, unbounded depth, min_samples_split=2, bootstrap on.
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	f := &RandomForestRegressor{
		nEstimators:     100,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		bootstrap:       true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the estimator type name.
func (f *RandomForestRegressor) Name() string { return "RandomForestRegressor" }

// Fit grows the trees in parallel.
func (f *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	if f.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", f.nEstimators)
	}
	data, err := tree.NewData(X, y)
	if err != nil {
		return err
	}
	n := data.NSamples()

	trees := make([]*tree.DecisionTreeRegressor, f.nEstimators)
	err = parallel.ParallelizeErr(f.nEstimators, func(start, end int) error {
		for i := start; i < end; i++ {
			var weights []float64
			if f.bootstrap {
				weights = bootstrapWeights(n, rand.New(rand.NewSource(f.randomState+int64(i))))
			}
			t := tree.NewDecisionTreeRegressor(
				tree.WithMaxDepth(f.maxDepth),
				tree.WithMinSamplesSplit(f.minSamplesSplit),
				tree.WithMinSamplesLeaf(f.minSamplesLeaf),
			)
			if err := t.FitData(data, weights); err != nil {
				return errors.Wrapf(err, "tree %d", i)
			}
			trees[i] = t
		}
		return nil
	})
	if err != nil {
		return err
	}

	f.trees = trees
	f.nFeatures = data.NFeatures()
	f.importances = meanImportances(trees, f.nFeatures)
	f.SetFitted()
	return nil
}

// bootstrapWeights draws n rows with replacement and returns each row's count.
func bootstrapWeights(n int, rng *rand.Rand) []float64 {
	w := make([]float64, n)
	for k := 0; k < n; k++ {
		w[rng.Intn(n)]++
	}
	return w
}

func meanImportances(trees []*tree.DecisionTreeRegressor, p int) []float64 {
	out := make([]float64, p)
	for _, t := range trees {
		imp, _, _ := t.FeatureImportances()
		for j, v := range imp {
			out[j] += v
		}
	}
	var total float64
	for j := range out {
		out[j] /= float64(len(trees))
		total += out[j]
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

// Predict averages the tree predictions.
func (f *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := f.RequireFitted(f.Name(), "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if c != f.nFeatures {
		return nil, errors.NewDimensionError("RandomForestRegressor.Predict", f.nFeatures, c, 1)
	}

	out := mat.NewDense(r, 1, nil)
	parallel.ParallelizeWithThreshold(r, 256, func(start, end int) {
		row := make([]float64, c)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			var sum float64
			for _, t := range f.trees {
				sum += t.Nodes[t.Apply(row)].Value
			}
			out.Set(i, 0, sum/float64(len(f.trees)))
		}
	})
	return out, nil
}

// Estimators returns the fitted trees.
func (f *RandomForestRegressor) Estimators() []*tree.DecisionTreeRegressor {
	return f.trees
}

// FeatureImportances returns the mean of the trees' normalised impurity
// importances, renormalised to sum to one.
func (f *RandomForestRegressor) FeatureImportances() ([]float64, model.ImportanceSource, bool) {
	if !f.IsFitted() {
		return nil, "", false
	}
	return append([]float64(nil), f.importances...), model.ImpurityImportance, true
}

// GetParams returns the hyperparameters.
func (f *RandomForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      f.nEstimators,
		"max_depth":         f.maxDepth,
		"min_samples_split": f.minSamplesSplit,
		"min_samples_leaf":  f.minSamplesLeaf,
		"bootstrap":         f.bootstrap,
		"random_state":      f.randomState,
	}
}

// MarshalJSON writes the hyperparameters and every tree.
func (f *RandomForestRegressor) MarshalJSON() ([]byte, error) {
	if !f.IsFitted() {
		return nil, errors.NewNotFittedError(f.Name(), "MarshalJSON")
	}
	return json.Marshal(struct {
		Params             map[string]interface{}        `json:"params"`
		NFeatures          int                           `json:"n_features_in"`
		FeatureImportances []float64                     `json:"feature_importances"`
		Estimators         []*tree.DecisionTreeRegressor `json:"estimators"`
	}{f.GetParams(), f.nFeatures, f.importances, f.trees})
}

// String returns a short description.
func (f *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_depth=%d, min_samples_split=%d)",
		f.nEstimators, f.maxDepth, f.minSamplesSplit)
}

var (
	_ model.Regressor       = (*RandomForestRegressor)(nil)
	_ model.ParameterGetter = (*RandomForestRegressor)(nil)
)
