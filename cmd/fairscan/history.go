package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/fairscan/internal/database"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored audit runs",
		Long: `List past audit runs from the local history database, newest first.

Each line shows the run ID prefix, completion time, dataset, fairness
score, and verdict. Pass a run ID prefix to 'fairscan compare' or
'fairscan export' to work with a specific run.

Examples:
  # Show the 20 most recent runs
  fairscan history

  # Show every run of one dataset
  fairscan history --dataset data/adult.csv -n 0`,
		Args: usageArgs(cobra.NoArgs),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("dataset", "d", "",
		"Only show runs for this dataset path")
	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of runs to show (0 shows all)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildBaseConfig(cmd)
	if err != nil {
		return err
	}

	datasetPath, err := cmd.Flags().GetString("dataset")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
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

	return listHistory(context.Background(), os.Stdout, db, datasetPath, limit)
}

// listHistory prints stored runs newest first.
func listHistory(ctx context.Context, w io.Writer, db *database.RunDB, datasetPath string, limit int) error {
	runs, err := db.GetHistoryWithMetadata(ctx, datasetPath, limit)
	if err != nil {
		return fmt.Errorf("failed to read audit history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No audit history found.")
		fmt.Fprintln(w, "\nRun 'fairscan audit <dataset.csv>' to record your first audit.")
		return nil
	}

	fmt.Fprintf(w, "Audit history (%d runs):\n\n", len(runs))
	fmt.Fprintf(w, "  %-12s  %-19s  %-24s  %5s  %s\n", "RUN ID", "AUDITED", "DATASET", "SCORE", "STATUS")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("-", 76))
	for _, run := range runs {
		fmt.Fprintf(w, "  %-12s  %-19s  %-24s  %5d  %s\n",
			shortRunID(run.RunID),
			run.AuditedAt.Format("2006-01-02 15:04:05"),
			filepath.Base(run.DatasetPath),
			run.FairnessScore,
			run.FairnessStatus,
		)
	}

	fmt.Fprintln(w, "\nUse 'fairscan compare' to diff two runs, or 'fairscan export <run-id>'")
	fmt.Fprintln(w, "to dump a run as JSON.")
	return nil
}
