// Package cli implements the affinityd command tree.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Swind/go-affinity-scheduler/internal/config"
	"github.com/Swind/go-affinity-scheduler/internal/logging"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
)

// NewRootCmd creates the root cobra command for affinityd.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "affinityd",
		Short:        "Affinity-aware task scheduler daemon",
		Long:         "affinityd runs a scheduler with a regular worker pool and per-window rendering context workers.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to affinityd.yaml (defaults when empty)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Shorthand for --log-level=debug")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json); overrides the config file")

	root.AddCommand(
		newRunCmd(),
		newConfigCmd(),
		newStatusCmd(),
		newAbortCmd(),
	)
	return root
}

// loadConfig reads --config and applies the logging flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Log.Format = flagLogFormat
	}
	if flagDebug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.NewLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
}
