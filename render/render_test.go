package render

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/shapgo/explain"
	"github.com/YuminosukeSato/shapgo/importance"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

func testAttribution() *explain.Attribution {
	return &explain.Attribution{
		Values: mat.NewDense(4, 3, []float64{
			0.5, -0.1, 0.0,
			-0.4, 0.2, 0.01,
			0.3, -0.2, 0.0,
			-0.6, 0.1, -0.01,
		}),
		BaseValue:    2,
		FeatureNames: []string{"MedInc", "AveRooms", "OceanProximity_INLAND"},
		Data: mat.NewDense(4, 3, []float64{
			1.2, 0.3, 0,
			-0.8, 1.1, 1,
			0.9, -0.5, 0,
			-1.3, 0.2, 1,
		}),
	}
}

func assertFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestImportanceChart(t *testing.T) {
	rec, err := importance.Rank([]string{"a", "b", "c"}, []float64{0.2, 0.7, 0.1})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "feature_importance.png")
	require.NoError(t, ImportanceChart(rec.Entries, path))
	assertFile(t, path)

	err = ImportanceChart(nil, path)
	var emptyErr *errors.EmptyInputError
	assert.True(t, errors.As(err, &emptyErr))
}

func TestImportanceChartTruncates(t *testing.T) {
	names := make([]string, 30)
	scores := make([]float64, 30)
	for i := range names {
		names[i] = string(rune('a'+i%26)) + string(rune('0'+i/26))
		scores[i] = float64(i)
	}
	rec, err := importance.Rank(names, scores)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "chart.svg")
	require.NoError(t, ImportanceChart(rec.Entries, path))
	assertFile(t, path)
}

func TestSummaryAndDependencePlot(t *testing.T) {
	dir := t.TempDir()
	attr := testAttribution()

	summary := filepath.Join(dir, "shap_summary.png")
	require.NoError(t, SummaryPlot(attr, summary))
	assertFile(t, summary)

	top, _ := attr.TopFeature()
	assert.Equal(t, "MedInc", top)
	dep := filepath.Join(dir, "shap_dependence_"+top+".png")
	require.NoError(t, DependencePlot(attr, top, dep))
	assertFile(t, dep)
}

func TestDependencePlotUnknownFeature(t *testing.T) {
	err := DependencePlot(testAttribution(), "missing", filepath.Join(t.TempDir(), "x.png"))
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestWriteTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables", "feature_importance.csv")
	require.NoError(t, WriteTable(path, []string{"Feature", "Importance"}, [][]string{
		{"MedInc", "0.7"},
		{"AveRooms", "0.3"},
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Feature", "Importance"},
		{"MedInc", "0.7"},
		{"AveRooms", "0.3"},
	}, records)
}

func TestQuantiles(t *testing.T) {
	assert.Equal(t, []float64{1, 0, 0.5}, quantiles([]float64{3, 1, 2}))
	assert.Equal(t, []float64{0.5}, quantiles([]float64{7}))
	for i := 0; i < 50; i++ {
		j := jitter(i)
		assert.True(t, j >= -0.3 && j < 0.3)
	}
}
