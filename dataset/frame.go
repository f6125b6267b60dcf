// Package dataset holds the tabular frame the training pipeline consumes,
// together with the providers that produce it and the seeded split/sample
// helpers used by a run.
package dataset

import (
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Kind is the scalar type of a column.
type Kind int

const (
	// Numeric columns hold float64 values.
	Numeric Kind = iota
	// Categorical columns hold string values.
	Categorical
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Column is a named, typed column. Exactly one of Float and String is used,
// depending on Kind.
type Column struct {
	Name   string
	Kind   Kind
	Float  []float64
	String []string
}

// NumericColumn builds a numeric column.
func NumericColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: Numeric, Float: values}
}

// CategoricalColumn builds a categorical column.
func CategoricalColumn(name string, values []string) Column {
	return Column{Name: name, Kind: Categorical, String: values}
}

// Len returns the number of values in the column.
func (c Column) Len() int {
	if c.Kind == Categorical {
		return len(c.String)
	}
	return len(c.Float)
}

func (c Column) take(rows []int) Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Categorical {
		out.String = make([]string, len(rows))
		for i, r := range rows {
			out.String[i] = c.String[r]
		}
		return out
	}
	out.Float = make([]float64, len(rows))
	for i, r := range rows {
		out.Float[i] = c.Float[r]
	}
	return out
}

// Frame is an immutable column-oriented table with an optional numeric target
// column. The target is never reported as a feature.
type Frame struct {
	columns []Column
	index   map[string]int
	target  string
	rows    int
}

// NewFrame validates the columns and builds a Frame. target may be empty for
// frames that carry features only.
func NewFrame(target string, columns ...Column) (*Frame, error) {
	if len(columns) == 0 {
		return nil, errors.NewEmptyInputError("NewFrame")
	}

	f := &Frame{
		columns: make([]Column, len(columns)),
		index:   make(map[string]int, len(columns)),
		target:  target,
		rows:    columns[0].Len(),
	}
	for i, c := range columns {
		if c.Name == "" {
			return nil, errors.NewValidationError("column", "column name must not be empty", i)
		}
		if _, dup := f.index[c.Name]; dup {
			return nil, errors.NewValidationError("column", "duplicate column name", c.Name)
		}
		if c.Len() != f.rows {
			return nil, errors.NewDimensionMismatchError("NewFrame: column "+c.Name, f.rows, c.Len())
		}
		f.columns[i] = c
		f.index[c.Name] = i
	}

	if target != "" {
		i, ok := f.index[target]
		if !ok {
			return nil, errors.NewConfigurationError("dataset", "target", "target column not found", target)
		}
		if f.columns[i].Kind != Numeric {
			return nil, errors.NewConfigurationError("dataset", "target", "target column must be numeric", target)
		}
	}
	return f, nil
}

// NRows returns the number of rows.
func (f *Frame) NRows() int { return f.rows }

// TargetName returns the target column name, or "" when the frame has none.
func (f *Frame) TargetName() string { return f.target }

// Target returns the target values, or nil when the frame has no target.
func (f *Frame) Target() []float64 {
	if f.target == "" {
		return nil
	}
	return f.columns[f.index[f.target]].Float
}

// Column looks up a column by name, target included.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return Column{}, false
	}
	return f.columns[i], true
}

// FeatureColumns returns every column except the target, in frame order.
func (f *Frame) FeatureColumns() []Column {
	out := make([]Column, 0, len(f.columns))
	for _, c := range f.columns {
		if c.Name != f.target {
			out = append(out, c)
		}
	}
	return out
}

// FeatureNames returns the names of FeatureColumns.
func (f *Frame) FeatureNames() []string {
	cols := f.FeatureColumns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Select builds a new frame from the given row indices, in the given order.
func (f *Frame) Select(rows []int) (*Frame, error) {
	for _, r := range rows {
		if r < 0 || r >= f.rows {
			return nil, errors.NewValidationError("rows", "row index out of range", r)
		}
	}
	cols := make([]Column, len(f.columns))
	for i, c := range f.columns {
		cols[i] = c.take(rows)
	}
	return &Frame{columns: cols, index: f.index, target: f.target, rows: len(rows)}, nil
}

// Drop returns a frame without the named columns. Dropping the target clears it.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := make([]Column, 0, len(f.columns))
	for _, c := range f.columns {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	target := f.target
	if drop[target] {
		target = ""
	}
	return NewFrame(target, kept...)
}
