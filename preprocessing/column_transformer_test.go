package preprocessing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/dataset"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

func mixedFrame(t *testing.T, a, b []float64, c []string) *dataset.Frame {
	t.Helper()
	y := make([]float64, len(a))
	f, err := dataset.NewFrame("y",
		dataset.NumericColumn("a", a),
		dataset.CategoricalColumn("c", c),
		dataset.NumericColumn("b", b),
		dataset.NumericColumn("y", y),
	)
	require.NoError(t, err)
	return f
}

func TestColumnTransformerLayout(t *testing.T) {
	train := mixedFrame(t,
		[]float64{1, 2, 3, 4},
		[]float64{0, 0, 1, 1},
		[]string{"x", "y", "x", "z"},
	)
	ct := NewColumnTransformer()
	out, err := ct.FitTransform(train)
	require.NoError(t, err)

	assert.Equal(t, Schema{Numeric: []string{"a", "b"}, Categorical: []string{"c"}}, ct.Schema())
	assert.Equal(t, []string{"a", "b", "a^2", "a b", "b^2", "c_x", "c_y", "c_z"}, ct.FeatureNamesOut())

	r, c := out.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 8, c)

	// standardized columns have zero mean
	for j := 0; j < 2; j++ {
		assert.InDelta(t, 0, mat.Sum(out.ColView(j))/4, 1e-12)
	}
	// one-hot block of the last row is c=z
	assert.Equal(t, []float64{0, 0, 1}, mat.Row(nil, 3, out)[5:])
}

func TestColumnTransformerRoundTrip(t *testing.T) {
	train := mixedFrame(t,
		[]float64{1.5, -2, 3, 0.25, 9},
		[]float64{10, 20, 15, 12, 11},
		[]string{"p", "q", "p", "r", "q"},
	)
	ct := NewColumnTransformer()
	fitOut, err := ct.FitTransform(train)
	require.NoError(t, err)

	again, err := ct.Transform(train)
	require.NoError(t, err)
	assert.True(t, mat.Equal(fitOut, again))
}

func TestColumnTransformerUnseenCategory(t *testing.T) {
	ct := NewColumnTransformer()
	require.NoError(t, ct.Fit(mixedFrame(t, []float64{1, 2}, []float64{3, 4}, []string{"x", "y"})))

	out, err := ct.Transform(mixedFrame(t, []float64{1}, []float64{3}, []string{"never-seen"}))
	require.NoError(t, err)
	row := mat.Row(nil, 0, out)
	assert.Equal(t, []float64{0, 0}, row[len(row)-2:])
}

func TestColumnTransformerSchemaDrift(t *testing.T) {
	ct := NewColumnTransformer()
	require.NoError(t, ct.Fit(mixedFrame(t, []float64{1, 2}, []float64{3, 4}, []string{"x", "y"})))

	extra, err := dataset.NewFrame("",
		dataset.NumericColumn("a", []float64{1}),
		dataset.NumericColumn("b", []float64{1}),
		dataset.CategoricalColumn("c", []string{"x"}),
		dataset.NumericColumn("d", []float64{1}),
	)
	require.NoError(t, err)
	missing, err := dataset.NewFrame("",
		dataset.NumericColumn("a", []float64{1}),
		dataset.CategoricalColumn("c", []string{"x"}),
	)
	require.NoError(t, err)
	retyped, err := dataset.NewFrame("",
		dataset.NumericColumn("a", []float64{1}),
		dataset.CategoricalColumn("b", []string{"1"}),
		dataset.CategoricalColumn("c", []string{"x"}),
	)
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame *dataset.Frame
		field string
	}{
		{"unknown column", extra, "d"},
		{"missing column", missing, "b"},
		{"kind changed", retyped, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ct.Transform(tt.frame)
			var cfgErr *errors.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, "transform", cfgErr.Stage)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestColumnTransformerNumericOnlyAndJSON(t *testing.T) {
	f, err := dataset.NewFrame("",
		dataset.NumericColumn("a", []float64{1, 2, 3}),
	)
	require.NoError(t, err)

	ct := NewColumnTransformer()
	require.NoError(t, ct.Fit(f))
	assert.Equal(t, []string{"a", "a^2"}, ct.FeatureNamesOut())

	raw, err := json.Marshal(ct)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "standard_scaler")
	assert.NotContains(t, decoded, "one_hot_encoder")
}

func TestColumnTransformerNotFitted(t *testing.T) {
	_, err := NewColumnTransformer().Transform(mixedFrame(t, []float64{1}, []float64{1}, []string{"x"}))
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))
}
