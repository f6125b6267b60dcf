package experiment

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/shapgo/config"
	"github.com/YuminosukeSato/shapgo/core/model"
	"github.com/YuminosukeSato/shapgo/dataset"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
	"github.com/YuminosukeSato/shapgo/tracking"
)

func housing(t *testing.T, rows int) *dataset.Frame {
	t.Helper()
	f, err := dataset.SyntheticHousing{Rows: rows, Seed: 42}.Load(context.Background())
	require.NoError(t, err)
	return f
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.ArtifactDir = t.TempDir()
	return cfg
}

func calls(m *tracking.Memory, method string) []tracking.Call {
	var out []tracking.Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func TestRunLinearRegression(t *testing.T) {
	sink := tracking.NewMemory()
	cfg := testConfig(t)

	res, err := NewRunner(sink).Run(context.Background(), cfg, housing(t, 2000))
	require.NoError(t, err)

	assert.True(t, res.Metrics.R2 <= 1.0)
	assert.Greater(t, res.Metrics.R2, 0.5)
	assert.Greater(t, res.Metrics.MSE, 0.0)

	require.NotNil(t, res.Importance)
	assert.Equal(t, model.CoefficientImportance, res.Importance.Source)

	// 8 numeric columns -> 8 standardized + 36 degree-2 terms
	r, c := res.Attribution.Dims()
	assert.Equal(t, 100, r)
	assert.Equal(t, 44, c)
	assert.NotEmpty(t, res.TopFeature)

	assert.Equal(t, []string{
		"BeginRun",
		"LogParam", "LogParam", "LogParam", "LogParam",
		"LogModel",
		"LogMetric", "LogMetric", "LogMetric",
		"LogArtifact", "LogArtifact",
		"LogArtifact", "LogArtifact", "LogArtifact",
		"EndRun",
	}, sink.Methods())

	assert.Equal(t, map[string]string{
		"model_type":          "linear_regression",
		"test_size":           "0.2",
		"random_state":        "42",
		"explain_sample_size": "100",
	}, sink.Params(res.Handle.ID))

	m := sink.Metrics(res.Handle.ID)
	assert.Equal(t, res.Metrics.MSE, m["mse"])
	assert.Equal(t, res.Metrics.MAE, m["mae"])
	assert.Equal(t, res.Metrics.R2, m["r2"])

	artifacts := calls(sink, "LogArtifact")
	assert.Equal(t, ImportanceTable, filepath.Base(artifacts[0].Key))
	assert.Equal(t, GroupImportance, artifacts[0].Value)
	assert.Equal(t, ImportanceChart, filepath.Base(artifacts[1].Key))
	assert.Equal(t, SummaryPlot, filepath.Base(artifacts[2].Key))
	assert.Equal(t, DependencePlotName(res.TopFeature), filepath.Base(artifacts[3].Key))
	assert.Equal(t, GroupExplainability, artifacts[3].Value)
	for _, a := range res.Artifacts {
		_, err := os.Stat(a)
		assert.NoError(t, err)
	}

	table, err := os.ReadFile(filepath.Join(cfg.ArtifactDir, ImportanceTable))
	require.NoError(t, err)
	assert.Contains(t, string(table), "Feature,Importance\n")

	run, ok := sink.Run(res.Handle.ID)
	require.True(t, ok)
	assert.Equal(t, tracking.StatusFinished, run.Status)
}

func TestRunRandomForest(t *testing.T) {
	sink := tracking.NewMemory()
	cfg := testConfig(t)
	cfg.ModelType = "random_forest_regressor"
	cfg.NEstimators = 10
	cfg.MaxDepth = 6
	cfg.ExplainSampleSize = 30

	res, err := NewRunner(sink).Run(context.Background(), cfg, housing(t, 1500))
	require.NoError(t, err)

	require.NotNil(t, res.Importance)
	assert.Equal(t, model.ImpurityImportance, res.Importance.Source)
	var total float64
	for _, e := range res.Importance.Entries {
		total += e.Score
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	r, _ := res.Attribution.Dims()
	assert.Equal(t, 30, r)

	params := sink.Params(res.Handle.ID)
	assert.Equal(t, "random_forest_regressor", params["model_type"])
	assert.Equal(t, "10", params["n_estimators"])
	assert.Equal(t, "6", params["max_depth"])
	assert.Equal(t, "2", params["min_samples_split"])
}

func TestRunUnsupportedKindLogsNothing(t *testing.T) {
	sink := tracking.NewMemory()
	cfg := testConfig(t)
	cfg.ModelType = "unsupported_kind"

	_, err := NewRunner(sink).Run(context.Background(), cfg, housing(t, 200))
	var unsupported *errors.UnsupportedModelError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "unsupported_kind", unsupported.Kind)
	assert.Empty(t, sink.Methods())
}

func TestRunInvalidConfigLogsNothing(t *testing.T) {
	sink := tracking.NewMemory()
	cfg := testConfig(t)
	cfg.TestSize = 1.5

	_, err := NewRunner(sink).Run(context.Background(), cfg, housing(t, 200))
	var cfgErr *errors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, config.KeyTestSize, cfgErr.Field)
	assert.Empty(t, sink.Methods())
}

func TestRunSampleLargerThanTestSplit(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExplainSampleSize = 10000

	res, err := NewRunner(tracking.NewMemory()).Run(context.Background(), cfg, housing(t, 500))
	require.NoError(t, err)

	r, _ := res.Attribution.Dims()
	assert.Equal(t, 100, r) // ceil(0.2 * 500)
}

type failingSink struct {
	*tracking.Memory
	failOn string
}

func (s failingSink) LogMetric(h tracking.RunHandle, key string, value float64) error {
	if key == s.failOn {
		return errors.New("metric store unavailable")
	}
	return s.Memory.LogMetric(h, key, value)
}

func TestRunErrorKeepsRunOpen(t *testing.T) {
	sink := failingSink{Memory: tracking.NewMemory(), failOn: "mae"}
	_, err := NewRunner(sink).Run(context.Background(), testConfig(t), housing(t, 300))

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, StageEvaluate, runErr.Stage)
	assert.Contains(t, err.Error(), "metric store unavailable")

	run, ok := sink.Run(runErr.Handle.ID)
	require.True(t, ok)
	assert.Equal(t, tracking.StatusRunning, run.Status)
	assert.NotContains(t, sink.Methods(), "EndRun")

	require.NoError(t, sink.EndRun(runErr.Handle, tracking.StatusFailed))
}

type crashingSink struct {
	*tracking.Memory
}

func (s crashingSink) LogArtifact(h tracking.RunHandle, localPath, group string) error {
	panic("artifact backend crashed")
}

func TestRunRecoversPanickingStage(t *testing.T) {
	sink := crashingSink{Memory: tracking.NewMemory()}
	cfg := testConfig(t)

	res, err := NewRunner(sink).Run(context.Background(), cfg, housing(t, 300))
	assert.Nil(t, res)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr), "got %v", err)
	assert.Equal(t, StageImportance, runErr.Stage)
	assert.Equal(t, cfg.ArtifactDir, runErr.ArtifactDir)

	var panicErr *errors.PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, StageImportance, panicErr.Stage)
	assert.Equal(t, "artifact backend crashed", panicErr.PanicValue)

	run, ok := sink.Run(runErr.Handle.ID)
	require.True(t, ok)
	assert.Equal(t, tracking.StatusRunning, run.Status)
	require.NoError(t, sink.EndRun(runErr.Handle, tracking.StatusFailed))
}

func TestRunErrorCarriesTemporaryArtifactDir(t *testing.T) {
	sink := failingSink{Memory: tracking.NewMemory(), failOn: "r2"}
	cfg := config.Default()

	_, err := NewRunner(sink).Run(context.Background(), cfg, housing(t, 200))
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	require.NotEmpty(t, runErr.ArtifactDir)
	defer os.RemoveAll(runErr.ArtifactDir)

	info, statErr := os.Stat(runErr.ArtifactDir)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
	assert.Contains(t, filepath.Base(runErr.ArtifactDir), "shapgo-run-")
}

func TestRunCancelledBeforeFit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(tracking.NewMemory()).Run(ctx, testConfig(t), housing(t, 200))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunWithStore(t *testing.T) {
	store, err := tracking.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	res, err := NewRunner(store).Run(context.Background(), testConfig(t), housing(t, 400))
	require.NoError(t, err)

	run, err := store.Run(res.Handle.ID)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFinished, run.Status)

	_, err = os.Stat(filepath.Join(store.ArtifactDir(res.Handle.ID), GroupExplainability, SummaryPlot))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.ArtifactDir(res.Handle.ID), ModelPath, "model.json"))
	assert.NoError(t, err)
}

func TestSource(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, dataset.SyntheticHousing{}, Source(cfg))
	cfg.DataPath = "housing.csv"
	assert.Equal(t, dataset.CSVProvider{Path: "housing.csv", Target: cfg.Target}, Source(cfg))
	assert.Equal(t, "shap_dependence_MedInc_AveRooms.png", DependencePlotName("MedInc AveRooms"))
	assert.Equal(t, "shap_dependence_MedInc_2.png", DependencePlotName("MedInc^2"))
}
