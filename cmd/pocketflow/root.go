package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agentstation/pocketflow"
)

var (
	// Global flags.
	verbose   bool
	output    string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pocketflow",
	Short: "Run graph workflows described in YAML",
	Long: `pocketflow runs workflows built from nodes connected by named actions.

A flow document lists its nodes, the builtin type of each node and the
connections between them. Batch flows rerun the graph once per parameter
set, sequentially or in parallel with the workers' results merged back.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&output, "output", textFormat, "Output format (text, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to $"+envLogLevel+" or warn")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json); defaults to $"+envLogFormat+" or text")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// commandLogger builds the logger for a command from the flags, falling back
// to the environment.
func commandLogger(cmd *cobra.Command) (pocketflow.Logger, error) {
	level := logLevel
	if verbose {
		level = "debug"
	}
	if level == "" {
		level = os.Getenv(envLogLevel)
	}
	format := logFormat
	if format == "" {
		format = os.Getenv(envLogFormat)
	}
	return newLogger(cmd.ErrOrStderr(), level, format)
}

// newLogger returns a slog-backed logger writing to w. Empty level and
// format mean warn and text.
func newLogger(w io.Writer, level, format string) (pocketflow.Logger, error) {
	lvl := slog.LevelWarn
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", level)
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", textFormat:
		handler = slog.NewTextHandler(w, opts)
	case jsonFormat:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
	return pocketflow.NewSlogLogger(slog.New(handler)), nil
}
