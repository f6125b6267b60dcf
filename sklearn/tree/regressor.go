// Package tree implements a CART regression tree with the squared-error
// criterion. Trees are stored as flat node arrays, the way scikit-learn's
// tree_ attribute exposes them, so that explainers can walk them directly.
package tree

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Leaf marks a node without children.
const Leaf = -1

// featureThreshold is the minimum gap between consecutive values for a split
// to be placed between them.
const featureThreshold = 1e-7

// Node is one node of a fitted tree.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	// Value is the weighted mean target of the samples reaching the node.
	Value float64 `json:"value"`
	// Impurity is the weighted variance of the target at the node.
	Impurity float64 `json:"impurity"`
	// Cover is the total sample weight reaching the node.
	Cover float64 `json:"cover"`
	// NSamples is the number of distinct training rows reaching the node.
	NSamples int `json:"n_samples"`
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return n.Left == Leaf }

// DecisionTreeRegressor is a CART regressor.
type DecisionTreeRegressor struct {
	model.BaseEstimator

	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int

	Nodes     []Node
	NFeatures int

	importances []float64
}

// Option configures a DecisionTreeRegressor.
type Option func(*DecisionTreeRegressor)

// WithMaxDepth limits the tree depth. 0 means unbounded.
func WithMaxDepth(depth int) Option {
	return func(t *DecisionTreeRegressor) { t.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of rows a node needs to be split.
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeRegressor) { t.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of rows in each child.
func WithMinSamplesLeaf(n int) Option {
	return func(t *DecisionTreeRegressor) { t.minSamplesLeaf = n }
}

// NewDecisionTreeRegressor creates an unfitted tree. Defaults follow
// scikit-learn: unbounded depth, min_samples_split=2, min_samples_leaf=1.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	t := &DecisionTreeRegressor{
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the estimator type name.
func (t *DecisionTreeRegressor) Name() string { return "DecisionTreeRegressor" }

func (t *DecisionTreeRegressor) validate() error {
	if t.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 1, or 0 for unbounded", t.maxDepth)
	}
	if t.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", t.minSamplesSplit)
	}
	if t.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", t.minSamplesLeaf)
	}
	return nil
}

// Fit grows the tree on X (n×p) and y (n×1) with unit sample weights.
func (t *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	d, err := NewData(X, y)
	if err != nil {
		return err
	}
	return t.FitData(d, nil)
}

// FitData grows the tree on presorted data. weights may be nil (all ones);
// rows with zero weight are left out, which is how bootstrap resampling is
// expressed.
func (t *DecisionTreeRegressor) FitData(d *Data, weights []float64) error {
	if err := t.validate(); err != nil {
		return err
	}
	n, p := d.NSamples(), d.NFeatures()
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != n {
		return errors.NewDimensionMismatchError("DecisionTreeRegressor.FitData", n, len(weights))
	}

	sorted := make([][]int, p)
	for j := 0; j < p; j++ {
		sorted[j] = make([]int, 0, n)
		for _, i := range d.order[j] {
			if weights[i] > 0 {
				sorted[j] = append(sorted[j], i)
			}
		}
	}
	if len(sorted[0]) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.FitData", "no rows with positive weight", errors.ErrEmptyData)
	}

	b := &builder{
		tree:    t,
		data:    d,
		weights: weights,
		goLeft:  make([]bool, n),
		buf:     make([]int, n),
	}
	t.Nodes = t.Nodes[:0]
	b.grow(sorted, 0)

	t.NFeatures = p
	t.importances = t.computeImportances()
	t.SetFitted()
	return nil
}

type builder struct {
	tree    *DecisionTreeRegressor
	data    *Data
	weights []float64
	goLeft  []bool
	buf     []int
}

type split struct {
	feature   int
	threshold float64
	pos       int // number of rows going left in sorted[feature]
	proxy     float64
}

// grow appends the node for the rows in sorted (one row order per feature)
// and its subtree, returning the node index.
func (b *builder) grow(sorted [][]int, depth int) int {
	rows := sorted[0]
	var w, wy, wyy float64
	for _, i := range rows {
		wi, yi := b.weights[i], b.data.y[i]
		w += wi
		wy += wi * yi
		wyy += wi * yi * yi
	}
	mean := wy / w
	impurity := wyy/w - mean*mean
	if impurity < 0 {
		impurity = 0
	}

	id := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Feature:  Leaf,
		Left:     Leaf,
		Right:    Leaf,
		Value:    mean,
		Impurity: impurity,
		Cover:    w,
		NSamples: len(rows),
	})

	t := b.tree
	if (t.maxDepth > 0 && depth >= t.maxDepth) ||
		len(rows) < t.minSamplesSplit ||
		len(rows) < 2*t.minSamplesLeaf ||
		impurity <= 1e-12 {
		return id
	}

	best, ok := b.bestSplit(sorted, w, wy)
	if !ok {
		return id
	}

	for k, i := range sorted[best.feature] {
		b.goLeft[i] = k < best.pos
	}
	left := make([][]int, len(sorted))
	right := make([][]int, len(sorted))
	for j, order := range sorted {
		nl := b.partition(order)
		left[j], right[j] = order[:nl], order[nl:]
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	node := &b.tree.Nodes[id]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = l
	node.Right = r
	return id
}

// partition stably moves rows flagged goLeft to the front of order and
// returns how many there are.
func (b *builder) partition(order []int) int {
	nl, nr := 0, 0
	for _, i := range order {
		if b.goLeft[i] {
			order[nl] = i
			nl++
		} else {
			b.buf[nr] = i
			nr++
		}
	}
	copy(order[nl:], b.buf[:nr])
	return nl
}

// bestSplit maximises the weighted-variance reduction proxy
// wyL²/wL + wyR²/wR over every feature and threshold.
func (b *builder) bestSplit(sorted [][]int, w, wy float64) (split, bool) {
	minLeaf := b.tree.minSamplesLeaf
	best := split{feature: -1}
	found := false

	for j, order := range sorted {
		col := b.data.cols[j]
		n := len(order)
		if col[order[n-1]] <= col[order[0]]+featureThreshold {
			continue
		}
		var wL, wyL float64
		for k := 0; k < n-1; k++ {
			i := order[k]
			wL += b.weights[i]
			wyL += b.weights[i] * b.data.y[i]

			cur, next := col[i], col[order[k+1]]
			if next <= cur+featureThreshold {
				continue
			}
			if k+1 < minLeaf || n-k-1 < minLeaf {
				continue
			}
			wR := w - wL
			if wR <= 0 {
				continue
			}
			wyR := wy - wyL
			proxy := wyL*wyL/wL + wyR*wyR/wR
			if !found || proxy > best.proxy {
				threshold := cur/2 + next/2
				if threshold >= next {
					threshold = cur
				}
				best = split{feature: j, threshold: threshold, pos: k + 1, proxy: proxy}
				found = true
			}
		}
	}
	return best, found
}

// computeImportances returns the normalised total weighted impurity decrease
// per feature.
func (t *DecisionTreeRegressor) computeImportances() []float64 {
	imp := make([]float64, t.NFeatures)
	if len(t.Nodes) == 0 {
		return imp
	}
	for _, node := range t.Nodes {
		if node.IsLeaf() {
			continue
		}
		l, r := t.Nodes[node.Left], t.Nodes[node.Right]
		imp[node.Feature] += node.Cover*node.Impurity - l.Cover*l.Impurity - r.Cover*r.Impurity
	}
	var total float64
	for j := range imp {
		imp[j] /= t.Nodes[0].Cover
		total += imp[j]
	}
	if total > 0 {
		for j := range imp {
			imp[j] /= total
		}
	}
	return imp
}

// Predict returns the leaf value of every row as an n×1 matrix.
func (t *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := t.RequireFitted(t.Name(), "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if c != t.NFeatures {
		return nil, errors.NewDimensionError("DecisionTreeRegressor.Predict", t.NFeatures, c, 1)
	}
	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, t.Nodes[t.Apply(row)].Value)
	}
	return out, nil
}

// Apply returns the index of the leaf x falls into.
func (t *DecisionTreeRegressor) Apply(x []float64) int {
	id := 0
	for !t.Nodes[id].IsLeaf() {
		node := t.Nodes[id]
		if x[node.Feature] <= node.Threshold {
			id = node.Left
		} else {
			id = node.Right
		}
	}
	return id
}

// FeatureImportances returns the normalised impurity decrease per feature.
func (t *DecisionTreeRegressor) FeatureImportances() ([]float64, model.ImportanceSource, bool) {
	if !t.IsFitted() {
		return nil, "", false
	}
	return append([]float64(nil), t.importances...), model.ImpurityImportance, true
}

// Depth returns the length of the longest root-to-leaf path.
func (t *DecisionTreeRegressor) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(id int) int
	walk = func(id int) int {
		node := t.Nodes[id]
		if node.IsLeaf() {
			return 0
		}
		return 1 + max(walk(node.Left), walk(node.Right))
	}
	return walk(0)
}

// NLeaves returns the number of leaves.
func (t *DecisionTreeRegressor) NLeaves() int {
	n := 0
	for _, node := range t.Nodes {
		if node.IsLeaf() {
			n++
		}
	}
	return n
}

// GetParams returns the hyperparameters.
func (t *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         "squared_error",
		"max_depth":         t.maxDepth,
		"min_samples_split": t.minSamplesSplit,
		"min_samples_leaf":  t.minSamplesLeaf,
	}
}

// MarshalJSON writes the hyperparameters and node array.
func (t *DecisionTreeRegressor) MarshalJSON() ([]byte, error) {
	if !t.IsFitted() {
		return nil, errors.NewNotFittedError(t.Name(), "MarshalJSON")
	}
	return json.Marshal(struct {
		Params    map[string]interface{} `json:"params"`
		NFeatures int                    `json:"n_features_in"`
		Nodes     []Node                 `json:"nodes"`
	}{t.GetParams(), t.NFeatures, t.Nodes})
}

// String returns a short description.
func (t *DecisionTreeRegressor) String() string {
	if !t.IsFitted() {
		return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d)", t.maxDepth)
	}
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, nodes=%d, leaves=%d)", t.maxDepth, len(t.Nodes), t.NLeaves())
}

var (
	_ model.Regressor       = (*DecisionTreeRegressor)(nil)
	_ model.ParameterGetter = (*DecisionTreeRegressor)(nil)
)
