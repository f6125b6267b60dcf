package tracking

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

func TestMemoryRecordsCallsInOrder(t *testing.T) {
	m := NewMemory()
	h, err := m.BeginRun(context.Background(), "exp")
	require.NoError(t, err)

	require.NoError(t, m.LogParam(h, "model_type", "random_forest_regressor"))
	require.NoError(t, m.LogModel(h, json.RawMessage(`{}`), "model"))
	require.NoError(t, m.LogMetric(h, "r2", 0.7))
	require.NoError(t, m.LogArtifact(h, "/tmp/shap_summary.png", "explainability"))
	require.NoError(t, m.EndRun(h, StatusFinished))

	assert.Equal(t, []string{"BeginRun", "LogParam", "LogModel", "LogMetric", "LogArtifact", "EndRun"}, m.Methods())
	calls := m.Calls()
	assert.Equal(t, "explainability", calls[4].Value)
	assert.Equal(t, "0.7", calls[3].Value)

	run, ok := m.Run(h.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFinished, run.Status)
	assert.Equal(t, map[string]string{"model_type": "random_forest_regressor"}, m.Params(h.ID))
	assert.Equal(t, map[string]float64{"r2": 0.7}, m.Metrics(h.ID))
}

func TestMemoryValidation(t *testing.T) {
	m := NewMemory()
	h, err := m.BeginRun(context.Background(), "exp")
	require.NoError(t, err)

	var valErr *errors.ValidationError
	require.NoError(t, m.LogParam(h, "k", "v"))
	assert.True(t, errors.As(m.LogParam(h, "k", "other"), &valErr))
	assert.True(t, errors.As(m.LogParam(RunHandle{ID: "nope"}, "k", "v"), &valErr))

	require.NoError(t, m.EndRun(h, StatusFailed))
	assert.True(t, errors.As(m.LogArtifact(h, "x", "g"), &valErr))

	// rejected calls are not recorded
	assert.Equal(t, []string{"BeginRun", "LogParam", "EndRun"}, m.Methods())
}
