package importance

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// stubRegressor exposes a fixed importance vector.
type stubRegressor struct {
	scores []float64
	source model.ImportanceSource
	ok     bool
}

func (s stubRegressor) Fit(X, y mat.Matrix) error                { return nil }
func (s stubRegressor) Predict(X mat.Matrix) (mat.Matrix, error) { return nil, nil }
func (s stubRegressor) Name() string                             { return "stub" }
func (s stubRegressor) FeatureImportances() ([]float64, model.ImportanceSource, bool) {
	return s.scores, s.source, s.ok
}

func TestExtractSortsDescendingStable(t *testing.T) {
	m := stubRegressor{scores: []float64{0.1, 0.4, 0.1, 0.4, 0.0}, source: model.ImpurityImportance, ok: true}
	rec, ok, err := Extract(m, []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.True(t, ok)

	var got []string
	for _, e := range rec.Entries {
		got = append(got, e.Feature)
	}
	assert.Equal(t, []string{"b", "d", "a", "c", "e"}, got)
	assert.Equal(t, model.ImpurityImportance, rec.Source)

	for i := 1; i < len(rec.Entries); i++ {
		assert.GreaterOrEqual(t, rec.Entries[i-1].Score, rec.Entries[i].Score)
	}
}

func TestExtractAbsent(t *testing.T) {
	rec, ok, err := Extract(stubRegressor{}, []string{"a"})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, rec.Entries)
}

func TestExtractErrors(t *testing.T) {
	_, _, err := Extract(stubRegressor{scores: []float64{1, 2}, ok: true}, []string{"a"})
	var dimErr *errors.DimensionMismatchError
	assert.True(t, errors.As(err, &dimErr))

	_, _, err = Extract(stubRegressor{scores: []float64{math.NaN()}, ok: true}, []string{"a"})
	var numErr *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &numErr))
}

func TestRecordWriteCSVAndTop(t *testing.T) {
	rec, err := Rank([]string{"x", "x y"}, []float64{0.25, 0.75})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rec.WriteCSV(&buf))
	assert.Equal(t, "Feature,Importance\nx y,0.75\nx,0.25\n", buf.String())

	assert.Len(t, rec.Top(1), 1)
	assert.Len(t, rec.Top(0), 2)
	assert.Len(t, rec.Top(10), 2)
}
