package explain

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/core/parallel"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
	"github.com/YuminosukeSato/shapgo/sklearn/tree"
)

// TreeExplainer computes exact path-dependent TreeSHAP values (Lundberg et al.,
// "Consistent Individualized Feature Attribution for Tree Ensembles",
// Algorithm 2) for an average of regression trees. The background
// distribution is the training data, represented by node covers.
type TreeExplainer struct {
	trees     []*tree.DecisionTreeRegressor
	nFeatures int
	expected  float64
	maxDepth  int
}

// NewTreeExplainer builds an explainer for the mean of the given trees.
func NewTreeExplainer(trees []*tree.DecisionTreeRegressor) (*TreeExplainer, error) {
	if len(trees) == 0 {
		return nil, errors.NewEmptyInputError("NewTreeExplainer")
	}
	e := &TreeExplainer{trees: trees, nFeatures: trees[0].NFeatures}
	for _, t := range trees {
		if !t.IsFitted() {
			return nil, errors.NewNotFittedError(t.Name(), "NewTreeExplainer")
		}
		e.expected += nodeExpectation(t.Nodes, 0)
		e.maxDepth = max(e.maxDepth, t.Depth())
	}
	e.expected /= float64(len(trees))
	return e, nil
}

// nodeExpectation is the cover-weighted mean of the leaf values below id.
func nodeExpectation(nodes []tree.Node, id int) float64 {
	n := nodes[id]
	if n.IsLeaf() {
		return n.Value
	}
	l, r := nodes[n.Left], nodes[n.Right]
	return (l.Cover*nodeExpectation(nodes, n.Left) + r.Cover*nodeExpectation(nodes, n.Right)) / n.Cover
}

// ExpectedValue implements Explainer.
func (e *TreeExplainer) ExpectedValue() float64 { return e.expected }

// ShapValues implements Explainer. Rows are processed in parallel chunks.
func (e *TreeExplainer) ShapValues(X mat.Matrix) (*mat.Dense, error) {
	r, c := X.Dims()
	if c != e.nFeatures {
		return nil, errors.NewDimensionError("TreeExplainer.ShapValues", e.nFeatures, c, 1)
	}
	out := mat.NewDense(r, c, nil)
	scale := 1 / float64(len(e.trees))

	maxd := e.maxDepth + 2
	parallel.Parallelize(r, func(start, end int) {
		path := make([]pathElement, (maxd+1)*(maxd+2)/2)
		x := make([]float64, c)
		phi := make([]float64, c)
		for i := start; i < end; i++ {
			mat.Row(x, i, X)
			for j := range phi {
				phi[j] = 0
			}
			for _, t := range e.trees {
				s := shapState{nodes: t.Nodes, x: x, phi: phi}
				s.recurse(0, path, 0, 1, 1, -1)
			}
			for j := range phi {
				phi[j] *= scale
			}
			out.SetRow(i, phi)
		}
	})
	return out, nil
}

type pathElement struct {
	feature      int
	zeroFraction float64
	oneFraction  float64
	pweight      float64
}

type shapState struct {
	nodes []tree.Node
	x     []float64
	phi   []float64
}

// recurse walks node id. parent holds the unique path of the caller in its
// first depth+1 slots; this call works in parent[depth+1:].
func (s *shapState) recurse(id int, parent []pathElement, depth int, zeroFraction, oneFraction float64, feature int) {
	path := parent[depth+1:]
	copy(path, parent[:depth+1])
	extendPath(path, depth, zeroFraction, oneFraction, feature)

	node := s.nodes[id]
	if node.IsLeaf() {
		for i := 1; i <= depth; i++ {
			w := unwoundPathSum(path, depth, i)
			el := path[i]
			s.phi[el.feature] += w * (el.oneFraction - el.zeroFraction) * node.Value
		}
		return
	}

	hot, cold := node.Left, node.Right
	if s.x[node.Feature] > node.Threshold {
		hot, cold = cold, hot
	}
	hotZero := s.nodes[hot].Cover / node.Cover
	coldZero := s.nodes[cold].Cover / node.Cover

	incomingZero, incomingOne := 1.0, 1.0
	k := 0
	for ; k <= depth; k++ {
		if path[k].feature == node.Feature {
			break
		}
	}
	if k != depth+1 {
		incomingZero = path[k].zeroFraction
		incomingOne = path[k].oneFraction
		unwindPath(path, depth, k)
		depth--
	}

	s.recurse(hot, path, depth+1, hotZero*incomingZero, incomingOne, node.Feature)
	s.recurse(cold, path, depth+1, coldZero*incomingZero, 0, node.Feature)
}

func extendPath(path []pathElement, depth int, zeroFraction, oneFraction float64, feature int) {
	path[depth] = pathElement{feature: feature, zeroFraction: zeroFraction, oneFraction: oneFraction}
	if depth == 0 {
		path[depth].pweight = 1
	}
	d1 := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		path[i+1].pweight += oneFraction * path[i].pweight * float64(i+1) / d1
		path[i].pweight = zeroFraction * path[i].pweight * float64(depth-i) / d1
	}
}

func unwindPath(path []pathElement, depth, k int) {
	one, zero := path[k].oneFraction, path[k].zeroFraction
	next := path[depth].pweight
	d1 := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].pweight
			path[i].pweight = next * d1 / (float64(i+1) * one)
			next = tmp - path[i].pweight*zero*float64(depth-i)/d1
		} else {
			path[i].pweight = path[i].pweight * d1 / (zero * float64(depth-i))
		}
	}
	for i := k; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zeroFraction = path[i+1].zeroFraction
		path[i].oneFraction = path[i+1].oneFraction
	}
}

// unwoundPathSum is the total permutation weight of the path with element k
// removed.
func unwoundPathSum(path []pathElement, depth, k int) float64 {
	one, zero := path[k].oneFraction, path[k].zeroFraction
	next := path[depth].pweight
	var total float64
	if one != 0 {
		for i := depth - 1; i >= 0; i-- {
			tmp := next / (float64(i+1) * one)
			total += tmp
			next = path[i].pweight - tmp*zero*float64(depth-i)
		}
	} else {
		for i := depth - 1; i >= 0; i-- {
			total += path[i].pweight / (zero * float64(depth-i))
		}
	}
	return total * float64(depth+1)
}
