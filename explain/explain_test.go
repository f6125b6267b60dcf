package explain

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/linear"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
	"github.com/YuminosukeSato/shapgo/sklearn/ensemble"
	"github.com/YuminosukeSato/shapgo/sklearn/tree"
)

func randomData(n, p int, seed int64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		v := 3*X.At(i, 0) + X.At(i, 1)*X.At(i, 2) + 0.1*rng.NormFloat64()
		if p > 3 {
			v -= 2 * math.Abs(X.At(i, 3))
		}
		y.Set(i, 0, v)
	}
	return X, y
}

// conditionalExpectation is E[f(x) | x_S] with absent features following
// both branches weighted by cover.
func conditionalExpectation(nodes []tree.Node, x []float64, inS map[int]bool, id int) float64 {
	n := nodes[id]
	if n.IsLeaf() {
		return n.Value
	}
	if inS[n.Feature] {
		if x[n.Feature] <= n.Threshold {
			return conditionalExpectation(nodes, x, inS, n.Left)
		}
		return conditionalExpectation(nodes, x, inS, n.Right)
	}
	l, r := nodes[n.Left], nodes[n.Right]
	return (l.Cover*conditionalExpectation(nodes, x, inS, n.Left) +
		r.Cover*conditionalExpectation(nodes, x, inS, n.Right)) / n.Cover
}

// bruteForceShapley enumerates every coalition.
func bruteForceShapley(nodes []tree.Node, x []float64) []float64 {
	m := len(x)
	fact := func(k int) float64 {
		f := 1.0
		for i := 2; i <= k; i++ {
			f *= float64(i)
		}
		return f
	}
	phi := make([]float64, m)
	for j := 0; j < m; j++ {
		for mask := 0; mask < 1<<m; mask++ {
			if mask&(1<<j) != 0 {
				continue
			}
			inS := map[int]bool{}
			size := 0
			for k := 0; k < m; k++ {
				if mask&(1<<k) != 0 {
					inS[k] = true
					size++
				}
			}
			without := conditionalExpectation(nodes, x, inS, 0)
			inS[j] = true
			with := conditionalExpectation(nodes, x, inS, 0)
			weight := fact(size) * fact(m-size-1) / fact(m)
			phi[j] += weight * (with - without)
		}
	}
	return phi
}

func TestTreeExplainerMatchesBruteForce(t *testing.T) {
	X, y := randomData(200, 4, 1)
	dt := tree.NewDecisionTreeRegressor(tree.WithMaxDepth(5))
	require.NoError(t, dt.Fit(X, y))

	e, err := NewTreeExplainer([]*tree.DecisionTreeRegressor{dt})
	require.NoError(t, err)
	assert.InDelta(t, dt.Nodes[0].Value, e.ExpectedValue(), 1e-9)

	sample := mat.DenseCopyOf(X.Slice(0, 10, 0, 4))
	values, err := e.ShapValues(sample)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		want := bruteForceShapley(dt.Nodes, mat.Row(nil, i, sample))
		assert.InDeltaSlice(t, want, mat.Row(nil, i, values), 1e-9, "row %d", i)
	}
}

func TestTreeExplainerRepeatedFeature(t *testing.T) {
	// a single feature split many times exercises path unwinding
	X := mat.NewDense(8, 2, []float64{1, 0, 2, 1, 3, 0, 4, 1, 5, 0, 6, 1, 7, 0, 8, 1})
	y := mat.NewDense(8, 1, []float64{1, 4, 2, 8, 5, 7, 3, 6})
	dt := tree.NewDecisionTreeRegressor()
	require.NoError(t, dt.Fit(X, y))

	e, err := NewTreeExplainer([]*tree.DecisionTreeRegressor{dt})
	require.NoError(t, err)
	values, err := e.ShapValues(X)
	require.NoError(t, err)

	pred, err := dt.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		want := bruteForceShapley(dt.Nodes, mat.Row(nil, i, X))
		assert.InDeltaSlice(t, want, mat.Row(nil, i, values), 1e-9)
		assert.InDelta(t, pred.At(i, 0), e.ExpectedValue()+mat.Sum(values.RowView(i)), 1e-9)
	}
}

func TestTreeExplainerForestLocalAccuracy(t *testing.T) {
	X, y := randomData(300, 4, 2)
	rf := ensemble.NewRandomForestRegressor(
		ensemble.WithNEstimators(10),
		ensemble.WithMaxDepth(6),
		ensemble.WithRandomState(42),
	)
	require.NoError(t, rf.Fit(X, y))

	e, err := NewTreeExplainer(rf.Estimators())
	require.NoError(t, err)

	sample := mat.DenseCopyOf(X.Slice(0, 25, 0, 4))
	attr, err := Explain(e, sample, []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	pred, err := rf.Predict(sample)
	require.NoError(t, err)
	for i, v := range attr.Reconstruct() {
		assert.InDelta(t, pred.At(i, 0), v, 1e-6)
	}

	name, idx := attr.TopFeature()
	assert.Equal(t, "a", name)
	assert.Equal(t, 0, idx)
}

func TestLinearExplainerLocalAccuracy(t *testing.T) {
	X, y := randomData(100, 3, 3)
	lr := linear.NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	e, err := NewLinearExplainer(lr.GetWeights(), lr.GetIntercept(), X)
	require.NoError(t, err)

	sample := mat.DenseCopyOf(X.Slice(10, 20, 0, 3))
	attr, err := Explain(e, sample, []string{"a", "b", "c"})
	require.NoError(t, err)

	pred, err := lr.Predict(sample)
	require.NoError(t, err)
	for i, v := range attr.Reconstruct() {
		assert.InDelta(t, pred.At(i, 0), v, 1e-9)
	}

	// the intercept-centred base equals the mean training prediction
	trainPred, err := lr.Predict(X)
	require.NoError(t, err)
	assert.InDelta(t, mat.Sum(trainPred)/100, attr.BaseValue, 1e-9)

	xs, phi := attr.Column(0)
	assert.Len(t, xs, 10)
	assert.Len(t, phi, 10)
}

func TestAttributionRanking(t *testing.T) {
	attr := &Attribution{
		Values: mat.NewDense(2, 3, []float64{
			1, -4, 0.5,
			-1, 2, 0.5,
		}),
		FeatureNames: []string{"a", "b", "c"},
		Data:         mat.NewDense(2, 3, nil),
	}
	assert.Equal(t, []float64{1, 3, 0.5}, attr.MeanAbs())

	rec := attr.Ranking()
	assert.Equal(t, "b", rec.Entries[0].Feature)
	assert.Equal(t, "a", rec.Entries[1].Feature)
	assert.Equal(t, "c", rec.Entries[2].Feature)

	name, idx := attr.TopFeature()
	assert.Equal(t, "b", name)
	assert.Equal(t, 1, idx)
}

func TestExplainErrors(t *testing.T) {
	_, err := NewTreeExplainer(nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = NewTreeExplainer([]*tree.DecisionTreeRegressor{tree.NewDecisionTreeRegressor()})
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	e, err := NewLinearExplainer([]float64{1, 2}, 0, mat.NewDense(1, 2, []float64{0, 0}))
	require.NoError(t, err)
	_, err = Explain(e, mat.NewDense(1, 2, nil), []string{"only-one"})
	var dimErr *errors.DimensionMismatchError
	assert.True(t, errors.As(err, &dimErr))

	_, err = NewLinearExplainer([]float64{1}, 0, mat.NewDense(1, 2, nil))
	assert.True(t, errors.As(err, &dimErr))
}
