// Package experiment runs one training experiment end to end: split, fit,
// evaluate, rank importances, explain, and record everything to a tracking
// sink.
package experiment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/YuminosukeSato/shapgo/config"
	"github.com/YuminosukeSato/shapgo/dataset"
	"github.com/YuminosukeSato/shapgo/explain"
	"github.com/YuminosukeSato/shapgo/importance"
	"github.com/YuminosukeSato/shapgo/metrics"
	"github.com/YuminosukeSato/shapgo/models"
	"github.com/YuminosukeSato/shapgo/pipeline"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
	"github.com/YuminosukeSato/shapgo/pkg/log"
	"github.com/YuminosukeSato/shapgo/preprocessing"
	"github.com/YuminosukeSato/shapgo/render"
	"github.com/YuminosukeSato/shapgo/tracking"
)

// Run stages, as reported by RunError.
const (
	StageParams     = "params"
	StageFit        = "fit"
	StageEvaluate   = "evaluate"
	StageImportance = "importance"
	StageExplain    = "explain"
	StageFinish     = "finish"
)

// Artifact groups and file names.
const (
	GroupImportance     = "feature_importance"
	GroupExplainability = "explainability"

	ImportanceTable  = "feature_importance.csv"
	ImportanceChart  = "feature_importance.png"
	SummaryPlot      = "shap_summary.png"
	AttributionTable = "shap_importance.csv"
	ModelPath        = "model"
)

// RunError is a failure after BeginRun. The run is left open; the caller
// decides whether to end it and whether to keep ArtifactDir.
type RunError struct {
	Handle      tracking.RunHandle
	Stage       string
	ArtifactDir string
	Err         error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: %s: %v", e.Handle.ID, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Result summarises a finished run.
type Result struct {
	Handle  tracking.RunHandle
	Metrics metrics.Record
	// Importance is nil when the model exposes no importance signal.
	Importance  *importance.Record
	Attribution *explain.Attribution
	TopFeature  string
	// Artifacts are the local files handed to the sink, in logging order.
	Artifacts   []string
	ArtifactDir string
}

// Runner executes experiments against a Sink.
type Runner struct {
	sink   tracking.Sink
	logger log.Logger
}

// NewRunner creates a Runner writing to sink.
func NewRunner(sink tracking.Sink) *Runner {
	return &Runner{sink: sink, logger: log.GetLoggerWithName("experiment")}
}

// Source returns the frame provider configured by cfg: the CSV at DataPath,
// or synthetic housing data when DataPath is empty.
func Source(cfg config.Config) dataset.Provider {
	if cfg.DataPath != "" {
		return dataset.CSVProvider{Path: cfg.DataPath, Target: cfg.Target}
	}
	return dataset.SyntheticHousing{Rows: cfg.SyntheticRows, Seed: cfg.RandomState, WithCategorical: true}
}

// Run trains and explains one model on frame. Configuration, selection and
// split failures return before the sink is touched.
func (r *Runner) Run(ctx context.Context, cfg config.Config, frame *dataset.Frame) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	spec, err := models.Select(cfg.ModelType, cfg.Hyperparameters())
	if err != nil {
		return nil, err
	}
	split, err := dataset.TrainTestSplit(frame, cfg.TestSize, cfg.RandomState)
	if err != nil {
		return nil, err
	}
	dir, err := artifactDir(cfg)
	if err != nil {
		return nil, err
	}

	h, err := r.sink.BeginRun(ctx, cfg.ExperimentName)
	if err != nil {
		if cfg.ArtifactDir == "" {
			os.RemoveAll(dir)
		}
		return nil, errors.Wrap(err, "begin run")
	}
	logger := r.logger.With(log.RunIDKey, h.ID, log.ModelKindKey, string(spec.Kind()))
	logger.Info("Run started",
		log.OperationKey, log.OperationSplit,
		log.TrainSamplesKey, split.Train.NRows(),
		log.TestSamplesKey, split.Test.NRows(),
		log.RandomSeedKey, cfg.RandomState,
	)

	res := &Result{Handle: h, ArtifactDir: dir}
	var fitted *pipeline.Fitted
	stages := []struct {
		name string
		run  func() error
	}{
		{StageParams, func() error { return r.logParams(h, cfg, spec) }},
		{StageFit, func() (err error) {
			if err := ctx.Err(); err != nil {
				return err
			}
			fitted, err = pipeline.New(preprocessing.NewColumnTransformer(), spec).Fit(split.Train, split.Train.Target())
			if err != nil {
				return err
			}
			return r.sink.LogModel(h, fitted, ModelPath)
		}},
		{StageEvaluate, func() error { return r.evaluate(ctx, h, fitted, split.Test, res, logger) }},
		{StageImportance, func() error { return r.rankImportance(h, fitted, dir, res, logger) }},
		{StageExplain, func() error { return r.explain(ctx, h, cfg, fitted, split.Test, dir, res) }},
		{StageFinish, func() error { return r.sink.EndRun(h, tracking.StatusFinished) }},
	}
	for _, stage := range stages {
		// a panicking stage becomes a *errors.PanicError so the handle is not lost
		if err := errors.SafeExecute(stage.name, stage.run); err != nil {
			logger.Error("Run failed", err, log.StageKey, stage.name)
			return nil, &RunError{Handle: h, Stage: stage.name, ArtifactDir: dir, Err: err}
		}
	}

	logger.Info("Run finished",
		log.TopFeatureKey, res.TopFeature,
		log.DurationMsKey, time.Since(h.StartedAt).Milliseconds(),
	)
	return res, nil
}

func (r *Runner) evaluate(ctx context.Context, h tracking.RunHandle, fitted *pipeline.Fitted, test *dataset.Frame, res *Result, logger log.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pred, err := fitted.Predict(test)
	if err != nil {
		return err
	}
	res.Metrics, err = metrics.Evaluate(test.Target(), pred)
	if err != nil {
		return err
	}
	for _, m := range []struct {
		key   string
		value float64
	}{{"mse", res.Metrics.MSE}, {"mae", res.Metrics.MAE}, {"r2", res.Metrics.R2}} {
		if err := r.sink.LogMetric(h, m.key, m.value); err != nil {
			return err
		}
	}
	logger.Info("Model evaluated",
		log.OperationKey, log.OperationEvaluate,
		log.MSEKey, res.Metrics.MSE,
		log.MAEKey, res.Metrics.MAE,
		log.R2ScoreKey, res.Metrics.R2,
	)
	return nil
}

// rankImportance records the native importance signal. Its absence is not an
// error.
func (r *Runner) rankImportance(h tracking.RunHandle, fitted *pipeline.Fitted, dir string, res *Result, logger log.Logger) error {
	rec, ok, err := importance.Extract(fitted.Model(), fitted.FeatureNames())
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("Model exposes no feature importance", log.ModelNameKey, fitted.Model().Name())
		return nil
	}
	res.Importance = &rec
	files, err := writeImportance(dir, rec)
	if err != nil {
		return err
	}
	if err := r.logArtifacts(h, res, files, GroupImportance); err != nil {
		return err
	}
	logger.Info("Importance ranked", log.ImportanceSourceKey, string(rec.Source))
	return nil
}

func (r *Runner) explain(ctx context.Context, h tracking.RunHandle, cfg config.Config, fitted *pipeline.Fitted, test *dataset.Frame, dir string, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sample, err := test.Sample(cfg.ExplainSampleSize, cfg.RandomState)
	if err != nil {
		return err
	}
	attr, err := fitted.Explain(sample)
	if err != nil {
		return err
	}
	res.Attribution = attr
	res.TopFeature, _ = attr.TopFeature()
	files, err := writeAttribution(dir, attr, res.TopFeature)
	if err != nil {
		return err
	}
	return r.logArtifacts(h, res, files, GroupExplainability)
}

func (r *Runner) logParams(h tracking.RunHandle, cfg config.Config, spec models.Spec) error {
	params := []models.Param{
		{Key: config.KeyModelType, Value: string(spec.Kind())},
		{Key: config.KeyTestSize, Value: cfg.TestSize},
		{Key: config.KeyRandomState, Value: cfg.RandomState},
		{Key: config.KeyExplainSampleSize, Value: cfg.ExplainSampleSize},
	}
	for _, p := range append(params, spec.Params()...) {
		if err := r.sink.LogParam(h, p.Key, formatParam(p.Value)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) logArtifacts(h tracking.RunHandle, res *Result, files []string, group string) error {
	for _, f := range files {
		if err := r.sink.LogArtifact(h, f, group); err != nil {
			return err
		}
		res.Artifacts = append(res.Artifacts, f)
	}
	return nil
}

func writeImportance(dir string, rec importance.Record) ([]string, error) {
	table := filepath.Join(dir, ImportanceTable)
	f, err := os.Create(table)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", table)
	}
	if err := rec.WriteCSV(f); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "write %s", table)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	chart := filepath.Join(dir, ImportanceChart)
	if err := render.ImportanceChart(rec.Entries, chart); err != nil {
		return nil, err
	}
	return []string{table, chart}, nil
}

func writeAttribution(dir string, attr *explain.Attribution, top string) ([]string, error) {
	summary := filepath.Join(dir, SummaryPlot)
	if err := render.SummaryPlot(attr, summary); err != nil {
		return nil, err
	}
	dependence := filepath.Join(dir, DependencePlotName(top))
	if err := render.DependencePlot(attr, top, dependence); err != nil {
		return nil, err
	}

	ranking := attr.Ranking()
	rows := make([][]string, len(ranking.Entries))
	for i, e := range ranking.Entries {
		rows[i] = []string{e.Feature, strconv.FormatFloat(e.Score, 'g', -1, 64)}
	}
	table := filepath.Join(dir, AttributionTable)
	if err := render.WriteTable(table, []string{"Feature", "MeanAbsSHAP"}, rows); err != nil {
		return nil, err
	}
	return []string{summary, dependence, table}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// DependencePlotName is the file name of the dependence plot for feature.
func DependencePlotName(feature string) string {
	return "shap_dependence_" + unsafeChars.ReplaceAllString(feature, "_") + ".png"
}

func artifactDir(cfg config.Config) (string, error) {
	if cfg.ArtifactDir == "" {
		dir, err := os.MkdirTemp("", "shapgo-run-")
		return dir, errors.Wrap(err, "create artifact dir")
	}
	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create artifact dir %s", cfg.ArtifactDir)
	}
	return cfg.ArtifactDir, nil
}

func formatParam(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
