package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 0.2, cfg.TestSize)
	assert.Equal(t, int64(42), cfg.RandomState)
	assert.Equal(t, "linear_regression", cfg.ModelType)
	assert.Equal(t, 100, cfg.ExplainSampleSize)
}

func TestLoadLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model_type: random_forest_regressor
n_estimators: 50
max_depth: 6
test_size: 0.3
`), 0o644))

	t.Setenv("SHAPGO_N_ESTIMATORS", "25")
	t.Setenv("SHAPGO_RANDOM_STATE", "7")

	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--random-state", "9", "--explain-sample-size", "10"}))

	cfg, err := Load(viper.New(), path, fs)
	require.NoError(t, err)

	assert.Equal(t, "random_forest_regressor", cfg.ModelType) // file
	assert.Equal(t, 6, cfg.MaxDepth)                          // file
	assert.Equal(t, 0.3, cfg.TestSize)                        // file
	assert.Equal(t, 25, cfg.NEstimators)                      // env over file
	assert.Equal(t, int64(9), cfg.RandomState)                // flag over env
	assert.Equal(t, 10, cfg.ExplainSampleSize)                // flag
	assert.Equal(t, 2, cfg.MinSamplesSplit)                   // default

	hp := cfg.Hyperparameters()
	assert.Equal(t, 25, hp.NEstimators)
	assert.Equal(t, int64(9), hp.RandomState)
}

func TestLoadMarshalledConfig(t *testing.T) {
	want := Default()
	want.ModelType = "random_forest_regressor"
	want.RandomState = 7
	want.MaxDepth = 0
	want.ExperimentName = "housing"
	want.LogFile = "shapgo.log"

	raw, err := yaml.Marshal(want)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	got, err := Load(viper.New(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"test size zero", func(c *Config) { c.TestSize = 0 }, KeyTestSize},
		{"test size one", func(c *Config) { c.TestSize = 1 }, KeyTestSize},
		{"sample size", func(c *Config) { c.ExplainSampleSize = 0 }, KeyExplainSampleSize},
		{"synthetic rows", func(c *Config) { c.SyntheticRows = 0 }, KeySyntheticRows},
		{"target", func(c *Config) { c.Target = "" }, KeyTarget},
		{"experiment", func(c *Config) { c.ExperimentName = "" }, KeyExperimentName},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, KeyLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var cfgErr *errors.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	// an unknown model kind is left to models.Select
	cfg := Default()
	cfg.ModelType = "unsupported_kind"
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.SyntheticRows = 0
	cfg.DataPath = "housing.csv"
	assert.NoError(t, cfg.Validate())
}
