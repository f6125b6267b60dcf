// Package config loads run configuration from defaults, an optional YAML
// file, SHAPGO_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/shapgo/models"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
	"github.com/YuminosukeSato/shapgo/pkg/log"
)

// EnvPrefix is the prefix of environment overrides, e.g. SHAPGO_TEST_SIZE.
const EnvPrefix = "SHAPGO"

// Configuration keys.
const (
	KeyTestSize          = "test_size"
	KeyRandomState       = "random_state"
	KeyModelType         = "model_type"
	KeyNEstimators       = "n_estimators"
	KeyMaxDepth          = "max_depth"
	KeyMinSamplesSplit   = "min_samples_split"
	KeyExplainSampleSize = "explain_sample_size"
	KeyDataPath          = "data_path"
	KeyTarget            = "target"
	KeySyntheticRows     = "synthetic_rows"
	KeyTrackingDir       = "tracking_dir"
	KeyExperimentName    = "experiment_name"
	KeyArtifactDir       = "artifact_dir"
	KeyLogLevel          = "log_level"
	KeyLogFile           = "log_file"
)

// Config is the flat run configuration.
type Config struct {
	TestSize          float64 `mapstructure:"test_size" yaml:"test_size"`
	RandomState       int64   `mapstructure:"random_state" yaml:"random_state"`
	ModelType         string  `mapstructure:"model_type" yaml:"model_type"`
	NEstimators       int     `mapstructure:"n_estimators" yaml:"n_estimators"`
	MaxDepth          int     `mapstructure:"max_depth" yaml:"max_depth"`
	MinSamplesSplit   int     `mapstructure:"min_samples_split" yaml:"min_samples_split"`
	ExplainSampleSize int     `mapstructure:"explain_sample_size" yaml:"explain_sample_size"`

	// DataPath is a CSV file; empty means the synthetic housing frame.
	DataPath       string `mapstructure:"data_path" yaml:"data_path"`
	Target         string `mapstructure:"target" yaml:"target"`
	SyntheticRows  int    `mapstructure:"synthetic_rows" yaml:"synthetic_rows"`
	TrackingDir    string `mapstructure:"tracking_dir" yaml:"tracking_dir"`
	ExperimentName string `mapstructure:"experiment_name" yaml:"experiment_name"`
	// ArtifactDir holds rendered files before they are logged; empty means a
	// temporary directory per run.
	ArtifactDir string `mapstructure:"artifact_dir" yaml:"artifact_dir"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		TestSize:          0.2,
		RandomState:       42,
		ModelType:         string(models.LinearRegression),
		NEstimators:       100,
		MaxDepth:          10,
		MinSamplesSplit:   2,
		ExplainSampleSize: 100,
		Target:            "MedHouseVal",
		SyntheticRows:     20000,
		TrackingDir:       "mlruns",
		ExperimentName:    "shapgo",
		LogLevel:          "info",
	}
}

// SetDefaults registers Default() on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyTestSize, d.TestSize)
	v.SetDefault(KeyRandomState, d.RandomState)
	v.SetDefault(KeyModelType, d.ModelType)
	v.SetDefault(KeyNEstimators, d.NEstimators)
	v.SetDefault(KeyMaxDepth, d.MaxDepth)
	v.SetDefault(KeyMinSamplesSplit, d.MinSamplesSplit)
	v.SetDefault(KeyExplainSampleSize, d.ExplainSampleSize)
	v.SetDefault(KeyDataPath, d.DataPath)
	v.SetDefault(KeyTarget, d.Target)
	v.SetDefault(KeySyntheticRows, d.SyntheticRows)
	v.SetDefault(KeyTrackingDir, d.TrackingDir)
	v.SetDefault(KeyExperimentName, d.ExperimentName)
	v.SetDefault(KeyArtifactDir, d.ArtifactDir)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFile, d.LogFile)
}

// RegisterFlags adds one flag per key to fs. Flag names use dashes
// (--test-size) and are bound by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Float64(flagName(KeyTestSize), d.TestSize, "fraction of rows held out for evaluation, in (0,1)")
	fs.Int64(flagName(KeyRandomState), d.RandomState, "seed for the split, bootstrap and explanation sample")
	fs.String(flagName(KeyModelType), d.ModelType, "linear_regression or random_forest_regressor")
	fs.Int(flagName(KeyNEstimators), d.NEstimators, "number of trees (random_forest_regressor)")
	fs.Int(flagName(KeyMaxDepth), d.MaxDepth, "maximum tree depth, 0 for unbounded (random_forest_regressor)")
	fs.Int(flagName(KeyMinSamplesSplit), d.MinSamplesSplit, "minimum samples to split a node (random_forest_regressor)")
	fs.Int(flagName(KeyExplainSampleSize), d.ExplainSampleSize, "number of test rows to explain")
	fs.String(flagName(KeyDataPath), d.DataPath, "CSV file to train on; synthetic housing data when empty")
	fs.String(flagName(KeyTarget), d.Target, "target column")
	fs.Int(flagName(KeySyntheticRows), d.SyntheticRows, "rows of synthetic data when no data path is given")
	fs.String(flagName(KeyTrackingDir), d.TrackingDir, "tracking store directory")
	fs.String(flagName(KeyExperimentName), d.ExperimentName, "experiment name recorded with the run")
	fs.String(flagName(KeyArtifactDir), d.ArtifactDir, "directory for rendered artifacts; temporary when empty")
	fs.String(flagName(KeyLogLevel), d.LogLevel, "debug, info, warn or error")
	fs.String(flagName(KeyLogFile), d.LogFile, "also write logs to this rotating file")
}

// Load reads configuration into a Config. path may be empty. fs may be nil;
// otherwise only flags the user actually set override lower layers.
func Load(v *viper.Viper, path string, fs *pflag.FlagSet) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", path)
		}
	}

	if fs != nil {
		for _, key := range keys() {
			if f := fs.Lookup(flagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, errors.Wrapf(err, "bind flag %s", f.Name)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges. The model kind and its hyperparameters are
// checked by models.Select.
func (c Config) Validate() error {
	if !(c.TestSize > 0 && c.TestSize < 1) {
		return errors.NewConfigurationError("config", KeyTestSize, "must be in (0, 1)", c.TestSize)
	}
	if c.ExplainSampleSize <= 0 {
		return errors.NewConfigurationError("config", KeyExplainSampleSize, "must be positive", c.ExplainSampleSize)
	}
	if c.DataPath == "" && c.SyntheticRows <= 0 {
		return errors.NewConfigurationError("config", KeySyntheticRows, "must be positive without a data path", c.SyntheticRows)
	}
	if c.Target == "" {
		return errors.NewConfigurationError("config", KeyTarget, "must not be empty", c.Target)
	}
	if c.ExperimentName == "" {
		return errors.NewConfigurationError("config", KeyExperimentName, "must not be empty", c.ExperimentName)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewConfigurationError("config", KeyLogLevel, err.Error(), c.LogLevel)
	}
	return nil
}

// Hyperparameters returns the estimator tunables for models.Select.
func (c Config) Hyperparameters() models.Hyperparameters {
	return models.Hyperparameters{
		NEstimators:     c.NEstimators,
		MaxDepth:        c.MaxDepth,
		MinSamplesSplit: c.MinSamplesSplit,
		RandomState:     c.RandomState,
	}
}

func keys() []string {
	return []string{
		KeyTestSize, KeyRandomState, KeyModelType, KeyNEstimators, KeyMaxDepth,
		KeyMinSamplesSplit, KeyExplainSampleSize, KeyDataPath, KeyTarget,
		KeySyntheticRows, KeyTrackingDir, KeyExperimentName, KeyArtifactDir,
		KeyLogLevel, KeyLogFile,
	}
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}
