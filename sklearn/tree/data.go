package tree

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Data is a column-major copy of a training set with each column's row order
// presorted by value. Building it once lets an ensemble grow many trees on the
// same rows without re-sorting.
type Data struct {
	cols  [][]float64
	y     []float64
	order [][]int
}

// NewData copies X (n×p) and y (n×1) and presorts every column.
func NewData(X, y mat.Matrix) (*Data, error) {
	n, p := X.Dims()
	ry, cy := y.Dims()
	if n == 0 || p == 0 {
		return nil, errors.NewModelError("tree.NewData", "empty data", errors.ErrEmptyData)
	}
	if ry != n {
		return nil, errors.NewDimensionError("tree.NewData", n, ry, 0)
	}
	if cy != 1 {
		return nil, errors.NewValueError("tree.NewData", "y must be a column vector")
	}

	d := &Data{
		cols:  make([][]float64, p),
		y:     mat.Col(nil, 0, y),
		order: make([][]int, p),
	}
	if err := errors.CheckNumericalStability("tree.NewData", d.y); err != nil {
		return nil, err
	}
	for j := 0; j < p; j++ {
		col := mat.Col(nil, j, X)
		if err := errors.CheckNumericalStability("tree.NewData", col); err != nil {
			return nil, err
		}
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return col[idx[a]] < col[idx[b]] })
		d.cols[j] = col
		d.order[j] = idx
	}
	return d, nil
}

// NSamples returns the number of rows.
func (d *Data) NSamples() int { return len(d.y) }

// NFeatures returns the number of columns.
func (d *Data) NFeatures() int { return len(d.cols) }
