package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel string
	logDev   bool
}

var rootCmd = &cobra.Command{
	Use:   "gazeflow",
	Short: "Multi-stream eye tracking engine",
	Long: `Gazeflow runs named capture streams (eye and world cameras) through
processing pipelines, routes their statuses to each other, and drives the
calibration protocol.

Engine settings come from the environment (UPDATE_INTERVAL, LOG_LEVEL,
HTTP_PORT, ...); stream sets come from a YAML, TOML or JSON file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.BoolVar(&rootFlags.logDev, "log-dev", false, "Human-readable console logs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(markersCmd)
	rootCmd.Version = version
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.Logging.Level = rootFlags.logLevel
	}
	if f.Changed("log-dev") {
		cfg.Logging.Development = rootFlags.logDev
	}
	return cfg, nil
}
