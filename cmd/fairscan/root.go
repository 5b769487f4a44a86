// Package main provides the entry point for the fairscan CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nao1215/fairscan/internal/config"
	"github.com/nao1215/fairscan/internal/log"
	"github.com/nao1215/fairscan/internal/model"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for fairscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fairscan",
		Short: "Fairness auditing tool for tabular machine learning models",
		Long: `Fairscan audits tabular machine learning models for discriminatory behavior.
It trains a model on a CSV dataset via a local analysis server, measures how
much each protected column influences the model's decisions, and reports the
patterns where that influence crosses the discrimination threshold.

The analysis server must be running (default http://127.0.0.1:8765), or
serverCommand must be set in the configuration file so fairscan can launch
one itself.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to the configuration file (default: ./"+config.DefaultConfigFile+" or the XDG config directory)")

	// Flag parse failures are usage errors, not operational ones, and
	// must map to a distinct exit code.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	// Add subcommands
	cmd.AddCommand(NewAuditCmd())
	cmd.AddCommand(NewColumnsCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits with 0 on success, 1 on an
// operational failure, and 2 on a usage error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError prints err to w and returns the exit code for it.
// Classified pipeline failures print their title, detail, and a
// suggestion for fixing the problem.
func reportError(w io.Writer, err error) int {
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return 2
	}

	// Cobra reports unknown subcommands as plain errors with no type
	// to match on, so classify them by message.
	if strings.HasPrefix(err.Error(), "unknown command") {
		fmt.Fprintf(w, "Error: %v\n", err)
		return 2
	}

	var classified *model.ClassifiedError
	if errors.As(err, &classified) {
		fmt.Fprintf(w, "%s: %s\n", classified.Title, classified.Detail)
		fmt.Fprintf(w, "suggestion: %s\n", classified.Suggestion)
		return 1
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}

// usageError marks a failure caused by invalid command line usage
// rather than by a failed operation.
type usageError struct {
	err error
}

// Error implements the error interface.
func (e *usageError) Error() string {
	return e.err.Error()
}

// Unwrap returns the wrapped error.
func (e *usageError) Unwrap() error {
	return e.err
}

// usageArgs wraps a cobra positional argument validator so that its
// failures surface as usage errors.
func usageArgs(validator cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validator(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// setupLogger creates the privacy-aware logger. Verbose enables debug
// level output; the redacting handler keeps dataset sample values out
// of the log either way.
func setupLogger(verbose bool) *slog.Logger {
	return log.NewRedactLogger(os.Stderr, verbose)
}

// getVerboseFlag reads the verbose flag from the command, falling back
// to the root command's persistent flags.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getConfigFlag reads the config flag from the command, falling back
// to the root command's persistent flags.
func getConfigFlag(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path, err = cmd.Root().PersistentFlags().GetString("config")
		if err != nil {
			return ""
		}
	}
	return path
}

// buildBaseConfig creates a Config from the defaults and the discovered
// configuration file. Flag overrides are applied by the caller so that
// explicit flags always win over file settings.
func buildBaseConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.ConfigFilePath = getConfigFlag(cmd)

	path := config.FindConfigFile(cfg.ConfigFilePath)
	if path == "" {
		// An explicitly requested file that does not exist is an error;
		// the absence of a discovered one is not.
		if cfg.ConfigFilePath != "" {
			return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
		}
		cfg.Profiles = &config.File{Profiles: make(map[string]config.Profile)}
		return cfg, nil
	}

	file, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration file %s: %w", path, err)
	}
	cfg.Profiles = file

	if file.ServerURL != "" {
		cfg.ServerURL = file.ServerURL
	}
	if file.ServerCommand != "" {
		cfg.ServerCommand = file.ServerCommand
	}
	if len(file.ServerArgs) > 0 {
		cfg.ServerArgs = file.ServerArgs
	}
	if file.HistoryDir != "" {
		cfg.HistoryDir = file.HistoryDir
	}
	return cfg, nil
}

// shortRunID returns the first 8 characters of a run ID for display.
func shortRunID(runID string) string {
	if len(runID) <= 8 {
		return runID
	}
	return runID[:8]
}
