// Command shapgo trains a regression model, evaluates it, explains it with
// SHAP values and records the run in a local tracking store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/YuminosukeSato/shapgo"
	"github.com/YuminosukeSato/shapgo/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "shapgo",
		Short: "Train, evaluate and explain tabular regression models",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// a missing .env is not an error
			_ = godotenv.Load(envFile)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file of KEY=VALUE pairs loaded into the environment")
	root.SetOut(out)

	root.AddCommand(newTrainCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the shapgo version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "shapgo", shapgo.Version)
		},
	}
}

// setupLogging sends logs to stderr and, when file is set, to a rotating
// log file as well.
func setupLogging(level, file string) (io.Closer, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if file == "" {
		log.SetupLogger(os.Stderr, lvl)
		return nopCloser{}, nil
	}
	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    32, // megabytes
		MaxBackups: 8,
		MaxAge:     10, // days
		Compress:   true,
	}
	log.SetupLogger(io.MultiWriter(os.Stderr, rotating), lvl)
	return rotating, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
