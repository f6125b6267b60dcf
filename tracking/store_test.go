package tracking

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenCreatesDatabase(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mlruns")
	store, err := Open(root)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(filepath.Join(root, dbFile))
	assert.NoError(t, err)
	assert.Equal(t, root, store.Root())
}

func TestStoreRunLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	h, err := store.BeginRun(ctx, "housing")
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)

	require.NoError(t, store.LogParam(h, "model_type", "linear_regression"))
	require.NoError(t, store.LogParam(h, "test_size", "0.2"))
	require.NoError(t, store.LogMetric(h, "mse", 0.5))
	require.NoError(t, store.LogMetric(h, "r2", 0.61))

	src := filepath.Join(t.TempDir(), "feature_importance.csv")
	require.NoError(t, os.WriteFile(src, []byte("Feature,Importance\nMedInc,1\n"), 0o644))
	require.NoError(t, store.LogArtifact(h, src, "feature_importance"))

	require.NoError(t, store.LogModel(h, json.RawMessage(`{"kind":"linear_regression"}`), "model"))
	require.NoError(t, store.EndRun(h, StatusFinished))

	run, err := store.Run(h.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, run.Status)
	assert.Equal(t, "housing", run.Experiment)
	assert.False(t, run.EndedAt.Before(run.StartedAt))

	params, err := store.Params(h.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"model_type": "linear_regression", "test_size": "0.2"}, params)

	metrics, err := store.Metrics(h.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"mse": 0.5, "r2": 0.61}, metrics)

	copied, err := os.ReadFile(filepath.Join(store.ArtifactDir(h.ID), "feature_importance", "feature_importance.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(copied), "MedInc")

	modelDir := filepath.Join(store.ArtifactDir(h.ID), "model")
	data, err := os.ReadFile(filepath.Join(modelDir, modelDataFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"linear_regression"}`, string(data))

	rawMeta, err := os.ReadFile(filepath.Join(modelDir, modelMetaFile))
	require.NoError(t, err)
	var meta modelMeta
	require.NoError(t, yaml.Unmarshal(rawMeta, &meta))
	assert.Equal(t, h.ID, meta.RunID)
	assert.Equal(t, modelDataFile, meta.Flavors["shapgo"].Data)

	prom, err := os.ReadFile(filepath.Join(store.Root(), h.ID, metricsFile))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "shapgo_run_metric")
	assert.Contains(t, string(prom), `metric="r2"`)
	assert.Contains(t, string(prom), "shapgo_run_duration_seconds")
}

func TestStoreWriteOnce(t *testing.T) {
	store := openStore(t)
	h, err := store.BeginRun(context.Background(), "exp")
	require.NoError(t, err)

	require.NoError(t, store.LogParam(h, "random_state", "42"))
	require.NoError(t, store.LogParam(h, "random_state", "42"))

	err = store.LogParam(h, "random_state", "7")
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))

	require.NoError(t, store.LogMetric(h, "mae", 0.3))
	assert.Error(t, store.LogMetric(h, "mae", 0.4))
	assert.Error(t, store.LogParam(h, "", "x"))
}

func TestStoreRejectsClosedAndUnknownRuns(t *testing.T) {
	store := openStore(t)
	h, err := store.BeginRun(context.Background(), "exp")
	require.NoError(t, err)
	require.NoError(t, store.EndRun(h, StatusFailed))

	var valErr *errors.ValidationError
	assert.True(t, errors.As(store.LogMetric(h, "mse", 1), &valErr))
	assert.True(t, errors.As(store.EndRun(h, StatusFinished), &valErr))

	unknown := RunHandle{ID: "does-not-exist"}
	assert.True(t, errors.As(store.LogParam(unknown, "k", "v"), &valErr))
	assert.True(t, errors.As(store.LogArtifact(unknown, "x.csv", "g"), &valErr))

	h2, err := store.BeginRun(context.Background(), "exp")
	require.NoError(t, err)
	assert.True(t, errors.As(store.EndRun(h2, StatusRunning), &valErr))
	assert.Error(t, store.LogArtifact(h2, filepath.Join(t.TempDir(), "missing.png"), "g"))
}

func TestStoreRunsPersistAcrossOpen(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)
	h, err := store.BeginRun(context.Background(), "exp")
	require.NoError(t, err)
	require.NoError(t, store.LogMetric(h, "r2", 0.9))
	require.NoError(t, store.EndRun(h, StatusFinished))
	require.NoError(t, store.Close())

	reopened, err := Open(root)
	require.NoError(t, err)
	defer reopened.Close()

	runs, err := reopened.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, h.ID, runs[0].ID)
	metrics, err := reopened.Metrics(h.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.9, metrics["r2"])
}

func TestStoreBeginRunCancelled(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.BeginRun(ctx, "exp")
	assert.ErrorIs(t, err, context.Canceled)
}
