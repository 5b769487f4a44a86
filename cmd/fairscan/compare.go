package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nao1215/fairscan/internal/database"
	"github.com/nao1215/fairscan/internal/model"
	"github.com/nao1215/fairscan/internal/report"
	"github.com/spf13/cobra"
)

// Constants for fairness direction labels.
const (
	fairnessDirectionImproved  = "improved"
	fairnessDirectionWorsened  = "worsened"
	fairnessDirectionUnchanged = "unchanged"
)

// NewCompareCmd creates the compare command.
// This command compares audit runs stored in the history database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [run-id] [run-id]",
		Short: "Compare two audit runs",
		Long: `Compare displays how the fairness metrics moved between two audit runs.

With two run IDs the first is the baseline and the second is the run
being judged. With one run ID that run is compared against the most
recent run of the same dataset. With no arguments the two most recent
runs of the most recently audited dataset are compared. Unique run ID
prefixes are accepted.

The comparison warns when the two runs audited different dataset
content, since metric changes then reflect the data as much as the
model.

Examples:
  # Compare the two most recent runs of the last audited dataset
  fairscan compare

  # Compare the two most recent runs of one dataset
  fairscan compare --dataset data/adult.csv

  # Compare a run against the most recent run of its dataset
  fairscan compare a3f8c2d1

  # Compare two specific runs
  fairscan compare a3f8c2d1 9b2e4f7a

  # Output comparison in JSON format
  fairscan compare --json`,
		Args: usageArgs(cobra.MaximumNArgs(2)),
		RunE: runCompareCmd,
	}

	// Comparison target flags
	cmd.Flags().StringP("dataset", "d", "",
		"Compare the two most recent runs for this dataset path")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildBaseConfig(cmd)
	if err != nil {
		return err
	}

	datasetPath, err := cmd.Flags().GetString("dataset")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
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

	ctx := context.Background()

	previous, current, err := resolveComparison(ctx, db, args, datasetPath)
	if err != nil {
		return err
	}

	comparison := compareRuns(previous, current)

	if jsonOutput {
		return outputComparisonJSON(comparison)
	}
	if markdownOutput {
		return outputComparisonMarkdown(comparison)
	}
	return outputComparisonText(comparison)
}

// resolveComparison picks the two runs to compare from the arguments,
// the dataset filter, or the most recent history entries. The first
// return value is the baseline run.
func resolveComparison(ctx context.Context, db *database.RunDB, args []string, datasetPath string) (*model.Report, *model.Report, error) {
	switch len(args) {
	case 2:
		previous, err := resolveRun(ctx, db, args[0])
		if err != nil {
			return nil, nil, err
		}
		current, err := resolveRun(ctx, db, args[1])
		if err != nil {
			return nil, nil, err
		}
		return previous, current, nil

	case 1:
		previous, err := resolveRun(ctx, db, args[0])
		if err != nil {
			return nil, nil, err
		}
		current, err := db.GetLatestReport(ctx, previous.Dataset.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read audit history: %w", err)
		}
		if current == nil || current.RunID == previous.RunID {
			return nil, nil, fmt.Errorf("run %s is the most recent audit of %s; nothing newer to compare against",
				shortRunID(previous.RunID), previous.Dataset.Base())
		}
		return previous, current, nil

	default:
		if datasetPath == "" {
			latest, err := db.GetLatestReport(ctx, "")
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read audit history: %w", err)
			}
			if latest == nil {
				return nil, nil, errors.New("no audit history found: run 'fairscan audit' at least twice first")
			}
			datasetPath = latest.Dataset.Path
		}

		runs, err := db.GetHistory(ctx, datasetPath, 2)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read audit history: %w", err)
		}
		if len(runs) < 2 {
			return nil, nil, fmt.Errorf("at least 2 runs of %s are required for comparison (found %d)",
				filepath.Base(datasetPath), len(runs))
		}

		// GetHistory returns runs newest first.
		return runs[1], runs[0], nil
	}
}

// ComparisonResult holds the result of comparing two audit runs.
type ComparisonResult struct {
	// Dataset is the audited file name without directories.
	Dataset string `json:"dataset"`

	// PreviousRun summarizes the baseline run.
	PreviousRun *report.Summary `json:"previous_run"`

	// CurrentRun summarizes the run being judged.
	CurrentRun *report.Summary `json:"current_run"`

	// FairnessChange describes how the metrics moved between the runs.
	FairnessChange FairnessChange `json:"fairness_change"`

	// SameData reports whether both runs audited identical dataset
	// content. When false, metric changes may reflect the data rather
	// than the model.
	SameData bool `json:"same_data"`
}

// FairnessChange describes the change in fairness between two runs.
type FairnessChange struct {
	// Direction is "improved", "worsened", or "unchanged", judged by
	// the fairness score.
	Direction string `json:"direction"`

	// ScoreDelta is the change in the fairness score.
	ScoreDelta int `json:"score_delta"`

	// MeanQidDelta is the change in mean QID, in bits.
	MeanQidDelta float64 `json:"mean_qid_delta"`

	// MaxQidDelta is the change in peak QID, in bits.
	MaxQidDelta float64 `json:"max_qid_delta"`

	// PctDiscriminatoryDelta is the change in the share of flagged
	// samples, in percentage points.
	PctDiscriminatoryDelta float64 `json:"percent_discriminatory_delta"`

	// MeanDisparateImpactDelta is the change in the mean disparate
	// impact ratio.
	MeanDisparateImpactDelta float64 `json:"mean_disparate_impact_delta"`
}

// compareRuns compares two audit runs and generates a comparison result.
func compareRuns(previous, current *model.Report) *ComparisonResult {
	result := &ComparisonResult{
		Dataset:     current.Dataset.Base(),
		PreviousRun: report.NewSummary(previous),
		CurrentRun:  report.NewSummary(current),
		SameData:    previous.Dataset.SameContent(current.Dataset),
	}
	result.FairnessChange = calculateFairnessChange(result.PreviousRun, result.CurrentRun)
	return result
}

// calculateFairnessChange calculates the metric deltas between two runs.
// The direction is judged by the composite fairness score alone; the
// per-metric deltas show what moved it.
func calculateFairnessChange(previous, current *report.Summary) FairnessChange {
	change := FairnessChange{
		ScoreDelta:               current.Score - previous.Score,
		MeanQidDelta:             current.MeanQid - previous.MeanQid,
		MaxQidDelta:              current.MaxQid - previous.MaxQid,
		PctDiscriminatoryDelta:   current.PctDiscriminatory - previous.PctDiscriminatory,
		MeanDisparateImpactDelta: current.MeanDisparateImpact - previous.MeanDisparateImpact,
	}

	if change.ScoreDelta > 0 {
		change.Direction = fairnessDirectionImproved
	} else if change.ScoreDelta < 0 {
		change.Direction = fairnessDirectionWorsened
	} else {
		change.Direction = fairnessDirectionUnchanged
	}

	return change
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(result *ComparisonResult) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(result *ComparisonResult) error {
	fmt.Printf("# Audit Comparison: %s\n\n", result.Dataset)

	// Fairness change summary
	fmt.Println("## Summary")
	fmt.Printf("\n**Fairness:** %s\n\n", formatFairnessDirection(result.FairnessChange.Direction))

	// Run metadata table
	fmt.Println("| Metric | Previous | Current | Change |")
	fmt.Println("|--------|----------|---------|--------|")
	fmt.Printf("| Run | %s | %s | - |\n",
		shortRunID(result.PreviousRun.RunID),
		shortRunID(result.CurrentRun.RunID))
	fmt.Printf("| Date | %s | %s | - |\n",
		result.PreviousRun.DateAudited.Format("2006-01-02 15:04"),
		result.CurrentRun.DateAudited.Format("2006-01-02 15:04"))
	fmt.Printf("| Fairness score | %d | %d | %s |\n",
		result.PreviousRun.Score,
		result.CurrentRun.Score,
		formatDelta(result.FairnessChange.ScoreDelta))
	fmt.Printf("| Mean QID (bits) | %.3f | %.3f | %s |\n",
		result.PreviousRun.MeanQid,
		result.CurrentRun.MeanQid,
		formatFloatDelta(result.FairnessChange.MeanQidDelta))
	fmt.Printf("| Max QID (bits) | %.3f | %.3f | %s |\n",
		result.PreviousRun.MaxQid,
		result.CurrentRun.MaxQid,
		formatFloatDelta(result.FairnessChange.MaxQidDelta))
	fmt.Printf("| Discriminatory samples | %.1f%% | %.1f%% | %spt |\n",
		result.PreviousRun.PctDiscriminatory,
		result.CurrentRun.PctDiscriminatory,
		formatFloatDelta(result.FairnessChange.PctDiscriminatoryDelta))
	fmt.Printf("| Mean disparate impact | %.3f | %.3f | %s |\n",
		result.PreviousRun.MeanDisparateImpact,
		result.CurrentRun.MeanDisparateImpact,
		formatFloatDelta(result.FairnessChange.MeanDisparateImpactDelta))

	if !result.SameData {
		fmt.Println("\n> **Warning:** the dataset content changed between these runs.")
		fmt.Println("> Metric changes may reflect the data rather than the model.")
	}

	return nil
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(result *ComparisonResult) error {
	fmt.Printf("Audit Comparison: %s\n", result.Dataset)
	fmt.Println(strings.Repeat("=", 60))

	// Fairness change summary
	fmt.Printf("\nFairness: %s\n", formatFairnessDirection(result.FairnessChange.Direction))

	// Run metadata
	fmt.Printf("\nPrevious run: %s  %s  score %d (%s)\n",
		shortRunID(result.PreviousRun.RunID),
		result.PreviousRun.DateAudited.Format("2006-01-02 15:04:05"),
		result.PreviousRun.Score,
		result.PreviousRun.StatusText)
	fmt.Printf("Current run:  %s  %s  score %d (%s)\n",
		shortRunID(result.CurrentRun.RunID),
		result.CurrentRun.DateAudited.Format("2006-01-02 15:04:05"),
		result.CurrentRun.Score,
		result.CurrentRun.StatusText)

	// Metrics table
	fmt.Println("\nMetric Changes:")
	fmt.Printf("  %-24s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	fmt.Println("  " + strings.Repeat("-", 60))
	fmt.Printf("  %-24s  %-10d  %-10d  %-10s\n", "Fairness score",
		result.PreviousRun.Score, result.CurrentRun.Score,
		formatDelta(result.FairnessChange.ScoreDelta))
	fmt.Printf("  %-24s  %-10.3f  %-10.3f  %-10s\n", "Mean QID (bits)",
		result.PreviousRun.MeanQid, result.CurrentRun.MeanQid,
		formatFloatDelta(result.FairnessChange.MeanQidDelta))
	fmt.Printf("  %-24s  %-10.3f  %-10.3f  %-10s\n", "Max QID (bits)",
		result.PreviousRun.MaxQid, result.CurrentRun.MaxQid,
		formatFloatDelta(result.FairnessChange.MaxQidDelta))
	fmt.Printf("  %-24s  %-10s  %-10s  %-10s\n", "Discriminatory samples",
		fmt.Sprintf("%.1f%%", result.PreviousRun.PctDiscriminatory),
		fmt.Sprintf("%.1f%%", result.CurrentRun.PctDiscriminatory),
		formatFloatDelta(result.FairnessChange.PctDiscriminatoryDelta)+"pt")
	fmt.Printf("  %-24s  %-10.3f  %-10.3f  %-10s\n", "Mean disparate impact",
		result.PreviousRun.MeanDisparateImpact, result.CurrentRun.MeanDisparateImpact,
		formatFloatDelta(result.FairnessChange.MeanDisparateImpactDelta))

	if !result.SameData {
		fmt.Println("\nWarning: the dataset content changed between these runs.")
		fmt.Println("Metric changes may reflect the data rather than the model.")
	}

	return nil
}

// formatFairnessDirection formats the fairness change direction for display.
func formatFairnessDirection(direction string) string {
	switch direction {
	case fairnessDirectionImproved:
		return "IMPROVED (score increased)"
	case fairnessDirectionWorsened:
		return "WORSENED (score decreased)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	} else if delta < 0 {
		return strconv.Itoa(delta)
	}
	return "0"
}

// formatFloatDelta formats a fractional delta with sign for display.
func formatFloatDelta(delta float64) string {
	return fmt.Sprintf("%+.3f", delta)
}
