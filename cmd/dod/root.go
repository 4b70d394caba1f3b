package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ultralove/dod/internal/config"
)

// globalFlags holds the parsed values of the persistent flags.
var globalFlags struct {
	ControllersFile string
	StoreDriver     string
	Timeout         string
	Rate            float64
}

var rootCmd = &cobra.Command{
	Use:   "dod",
	Short: "dod - location aware public data aggregation",
	Long: `dod keeps processed measurement series for the public stations closest
to the current location up to date.

Quick start:
  dod serve                              # run the refresh loop and the HTTP API
  dod inspect --lat 50.73 --lon 7.10     # refresh once and print the results`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the flag overrides.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if globalFlags.ControllersFile != "" {
		if cfg.Controllers, err = config.LoadControllers(globalFlags.ControllersFile); err != nil {
			return nil, err
		}
	}
	if globalFlags.StoreDriver != "" {
		cfg.StoreDriver = globalFlags.StoreDriver
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.HTTPTimeout = d
	}
	if globalFlags.Rate > 0 {
		cfg.ProviderRate = globalFlags.Rate
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.ControllersFile, "controllers", "",
		"YAML controller table (overrides env DOD_CONTROLLERS_FILE)")
	pf.StringVar(&globalFlags.StoreDriver, "store", "",
		"result store: memory|bolt|postgres (overrides env STORE_DRIVER)")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"upstream HTTP request timeout (e.g. 10s, 1m)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max upstream requests per second per controller (default: 2)")
}
