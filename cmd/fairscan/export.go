package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nao1215/fairscan/internal/database"
	"github.com/nao1215/fairscan/internal/model"
	"github.com/nao1215/fairscan/internal/report"
	"github.com/spf13/cobra"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Export a stored audit run as JSON",
		Long: `Export a stored audit run as a JSON snapshot.

The snapshot carries the run metadata, the audit configuration, the
per-stage results, and the fairness verdict, and is suitable for
archival or for processing with external tools. Without a run ID the
most recent run is exported. A unique run ID prefix is accepted.

Examples:
  # Export the most recent run to stdout
  fairscan export

  # Export one run to a file
  fairscan export a3f8c2d1 -o audit.json`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: runExportCmd,
	}

	cmd.Flags().StringP("output", "o", "",
		"Write the snapshot to this file instead of stdout")

	return cmd
}

// runExportCmd executes the export command.
func runExportCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildBaseConfig(cmd)
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.HistoryDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close history database", "error", err)
		}
	}()

	runID := ""
	if len(args) == 1 {
		runID = args[0]
	}
	return exportRun(context.Background(), db, runID, outputPath)
}

// exportRun writes the snapshot for runID, or for the most recent run
// when runID is empty, to outputPath or stdout.
func exportRun(ctx context.Context, db *database.RunDB, runID, outputPath string) error {
	auditReport, err := resolveRun(ctx, db, runID)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if outputPath != "" {
		dir := filepath.Dir(outputPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Snapshots embed flagged sample values, so keep them readable
		// by the owner only.
		file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if err := file.Close(); err != nil {
				slog.Error("failed to close output file", "error", err)
			}
		}()
		out = file
	}

	writer := report.NewExportWriter(out, report.WithPrettyPrint())
	if _, err := writer.Write(auditReport); err != nil {
		return fmt.Errorf("failed to export run: %w", err)
	}

	if outputPath != "" {
		fmt.Printf("Exported run %s to %s\n", shortRunID(auditReport.RunID), outputPath)
	}
	return nil
}

// resolveRun fetches a report by run ID prefix, or the most recent
// report when runID is empty.
func resolveRun(ctx context.Context, db *database.RunDB, runID string) (*model.Report, error) {
	if runID == "" {
		latest, err := db.GetLatestReport(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to read audit history: %w", err)
		}
		if latest == nil {
			return nil, errors.New("no audit history found: run 'fairscan audit' first")
		}
		return latest, nil
	}

	found, err := db.GetReportByRunID(ctx, runID)
	if err != nil {
		if errors.Is(err, database.ErrAmbiguousRunID) {
			return nil, fmt.Errorf("run ID prefix %q matches multiple runs, use more characters (see 'fairscan history')", runID)
		}
		return nil, fmt.Errorf("failed to look up run %s: %w", runID, err)
	}
	if found == nil {
		return nil, fmt.Errorf("no run found with ID %q (see 'fairscan history')", runID)
	}
	return found, nil
}
