package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/slabkit/cmd/slabctl/logger"
	"github.com/joshuapare/slabkit/slab/config"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	configPath string
	logFile    string

	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "slabctl",
	Short: "Exercise and measure the slab allocator",
	Long: `slabctl drives the slab allocator from the command line. It runs the
known-pages probe (page locality and magazine retention checks) against any
configuration and backing source, and benchmarks allocate/free latency.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logging")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append logs to this file instead of stderr")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging() error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	fn, err := logger.Init(logger.Options{
		Enabled: !quiet || logFile != "",
		Level:   level,
		JSON:    jsonOut,
		File:    logFile,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	closeLog = fn
	return nil
}

// loadConfig returns the --config file, or the defaults when none was given.
func loadConfig() (*config.File, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	printVerbose("Loading config: %s\n", configPath)
	f, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return f, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
