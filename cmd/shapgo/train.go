package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/shapgo/config"
	"github.com/YuminosukeSato/shapgo/experiment"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
	"github.com/YuminosukeSato/shapgo/pkg/log"
	"github.com/YuminosukeSato/shapgo/tracking"
)

// topImportances is the number of rows printed in the importance table.
const topImportances = 10

func newTrainCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run one training experiment",
		Long: `Split the data, fit the configured model, evaluate it on the held-out
split, rank feature importances, compute SHAP values for a sample of the
held-out rows and record everything under the tracking directory.

Configuration is read from --config (YAML), SHAPGO_* environment variables
and flags, with flags taking precedence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.New(), configPath, cmd.Flags())
			if err != nil {
				return err
			}
			closer, err := setupLogging(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			defer closer.Close()

			return train(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func train(cmd *cobra.Command, cfg config.Config) error {
	ctx := cmd.Context()
	logger := log.GetLoggerWithName("cli")

	frame, err := experiment.Source(cfg).Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load dataset")
	}

	store, err := tracking.Open(cfg.TrackingDir)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := experiment.NewRunner(store).Run(ctx, cfg, frame)
	if dir := scratchDir(cfg, res, err); dir != "" {
		// the store holds copies of everything that was logged
		defer os.RemoveAll(dir)
	}
	if err != nil {
		var runErr *experiment.RunError
		if errors.As(err, &runErr) {
			if endErr := store.EndRun(runErr.Handle, tracking.StatusFailed); endErr != nil {
				logger.Error("Failed to close run", endErr, log.RunIDKey, runErr.Handle.ID)
			}
		}
		return err
	}

	printResult(cmd.OutOrStdout(), store, res)
	return nil
}

// scratchDir is the temporary artifact directory a run left behind, or "" when
// the user chose the directory.
func scratchDir(cfg config.Config, res *experiment.Result, err error) string {
	if cfg.ArtifactDir != "" {
		return ""
	}
	var runErr *experiment.RunError
	switch {
	case errors.As(err, &runErr):
		return runErr.ArtifactDir
	case res != nil:
		return res.ArtifactDir
	default:
		return ""
	}
}

func printResult(w io.Writer, store *tracking.Store, res *experiment.Result) {
	fmt.Fprintf(w, "run %s (%s)\n\n", res.Handle.ID, res.Handle.Experiment)

	metrics := tablewriter.NewWriter(w)
	metrics.SetHeader([]string{"Metric", "Value"})
	metrics.Append([]string{"mse", formatFloat(res.Metrics.MSE)})
	metrics.Append([]string{"mae", formatFloat(res.Metrics.MAE)})
	metrics.Append([]string{"r2", formatFloat(res.Metrics.R2)})
	metrics.Render()

	if res.Importance != nil {
		fmt.Fprintf(w, "\nfeature importance (%s)\n", res.Importance.Source)
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Feature", "Importance"})
		for _, e := range res.Importance.Top(topImportances) {
			table.Append([]string{e.Feature, formatFloat(e.Score)})
		}
		table.Render()
	}

	rows, cols := res.Attribution.Dims()
	fmt.Fprintf(w, "\nSHAP values: %d samples x %d features, top feature %s\n", rows, cols, res.TopFeature)
	fmt.Fprintf(w, "artifacts: %s\n", store.ArtifactDir(res.Handle.ID))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
