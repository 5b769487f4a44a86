package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/fairscan/internal/model"
	"github.com/nao1215/fairscan/internal/service"
	"github.com/spf13/cobra"
)

// NewColumnsCmd creates the columns command.
func NewColumnsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns <dataset.csv>",
		Short: "Inspect dataset columns before running an audit",
		Long: `Inspect the columns of a dataset via the analysis server.

The server parses the CSV and returns the column names, a small sample
preview, and the columns it considers sensitive. Use this before an
audit to choose the --label and --protected columns.

Examples:
  # List the columns of a dataset
  fairscan columns data/adult.csv

  # Use a non-default analysis server
  fairscan columns data/adult.csv -s http://127.0.0.1:9000`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: runColumnsCmd,
	}

	cmd.Flags().StringP("server", "s", "",
		"Base URL of the analysis server (overrides the configuration file)")

	return cmd
}

// runColumnsCmd executes the columns command.
func runColumnsCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(getVerboseFlag(cmd))
	slog.SetDefault(logger)

	cfg, err := buildBaseConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("server") {
		if cfg.ServerURL, err = cmd.Flags().GetString("server"); err != nil {
			return err
		}
	}

	client, err := service.NewClient(cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("failed to create analysis client: %w", err)
	}

	ctx := context.Background()
	if status := client.CheckConnection(ctx); status != service.ServerStatusOK {
		return fmt.Errorf("analysis server is not reachable at %s: %w", cfg.ServerURL, status.Error())
	}

	result, err := client.Columns(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to inspect columns of %s: %w", args[0], err)
	}

	// The raw rows never reach the log output; the redacting handler
	// masks the sample attribute.
	logger.Debug("column inspection finished",
		"dataset", args[0],
		"num_columns", result.NumColumns,
		"sample", fmt.Sprint(result.SampleData),
	)

	printColumns(os.Stdout, args[0], result)
	return nil
}

// printColumns renders the column listing, the sensitive column hints,
// and the sample preview for a dataset.
func printColumns(w io.Writer, datasetPath string, result *service.ColumnsResult) {
	fmt.Fprintf(w, "Columns in %s (%d):\n", filepath.Base(datasetPath), result.NumColumns)
	for _, column := range result.Columns {
		fmt.Fprintf(w, "  %s\n", column)
	}

	detected := model.DetectSensitiveColumns(result.Columns)
	seen := make(map[string]bool, len(detected))
	for _, column := range detected {
		seen[column.Name] = true
	}

	// The server runs its own detector; show anything it flagged that
	// the local patterns missed.
	var serverOnly []string
	for _, name := range result.DetectedSensitive {
		if !seen[name] {
			serverOnly = append(serverOnly, name)
		}
	}

	if len(detected) > 0 || len(serverOnly) > 0 {
		fmt.Fprintf(w, "\nLikely sensitive columns:\n")
		for _, column := range detected {
			fmt.Fprintf(w, "  %-20s (%s)\n", column.Name, column.Category)
		}
		for _, name := range serverOnly {
			fmt.Fprintf(w, "  %-20s (flagged by the analysis server)\n", name)
		}
	}

	if len(result.SampleData) > 0 {
		fmt.Fprintf(w, "\nSample rows:\n")
		for i, row := range result.SampleData {
			values := make([]string, 0, len(result.Columns))
			for _, column := range result.Columns {
				values = append(values, fmt.Sprintf("%v", row[column]))
			}
			fmt.Fprintf(w, "  [%d] %s\n", i+1, strings.Join(values, ", "))
		}
	}

	fmt.Fprintf(w, "\nRun an audit with:\n")
	fmt.Fprintf(w, "  fairscan audit %s --label <column> --protected <column>\n", datasetPath)
}
