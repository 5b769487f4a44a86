package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nao1215/fairscan/internal/config"
	"github.com/nao1215/fairscan/internal/database"
	"github.com/nao1215/fairscan/internal/model"
	"github.com/nao1215/fairscan/internal/pipeline"
	"github.com/nao1215/fairscan/internal/report"
	"github.com/nao1215/fairscan/internal/service"
	"github.com/spf13/cobra"
)

// NewAuditCmd creates the audit command.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <dataset.csv> [dataset.csv...]",
		Short: "Run a fairness audit on one or more datasets",
		Long: `Audit runs the full fairness analysis for one or more CSV datasets.

Each audit trains a feed-forward model on the dataset, extracts hidden
layer activations, measures quantitative input influence (QID) for the
protected columns, searches for discriminatory decision patterns,
estimates per-sample bias, and explains the most suspicious patterns.
The final report carries a fairness score from 0 (discriminatory) to
100 (fair).

The analysis server must be reachable, or serverCommand must be set in
the configuration file so fairscan can launch one itself.

Examples:
  # Audit one dataset
  fairscan audit data/adult.csv --label income --protected sex

  # Audit with several protected columns and a JSON report
  fairscan audit data/adult.csv -l income -p sex -p race -f json

  # Audit several datasets concurrently
  fairscan audit data/adult.csv data/compas.csv -n 4

  # Use a configuration file with per-dataset profiles
  fairscan audit data/adult.csv -c audit.yml

Configuration file (` + config.DefaultConfigFile + `) example:
  profiles:
    adult.csv:
      label: income
      protected:
        - sex
        - race
      epochs: 30`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: runAuditCmd,
	}

	// Audit target flags
	cmd.Flags().StringP("label", "l", "",
		"Prediction target column (falls back to the dataset's profile)")
	cmd.Flags().StringSliceP("protected", "p", nil,
		"Protected column to audit, repeatable (falls back to the dataset's profile)")

	// Analysis tuning flags
	cmd.Flags().IntSlice("hidden-layers", nil,
		"Hidden layer sizes for the trained network")
	cmd.Flags().Int("epochs", 0,
		"Number of training epochs (0 uses the server default)")
	cmd.Flags().Float64("threshold", 0,
		"QID threshold in bits for flagging samples (0 uses the server default)")

	// Server flags
	cmd.Flags().StringP("server", "s", config.DefaultServerURL,
		"Base URL of the analysis server")

	// Batch auditing flags
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of datasets audited concurrently")

	// Report flags
	cmd.Flags().StringP("format", "f", config.FormatText,
		"Report format: text, json, or markdown")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to the specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-history", false,
		"Do not record this audit in the history database")

	return cmd
}

// runAuditCmd executes the audit command.
func runAuditCmd(cmd *cobra.Command, args []string) error {
	// Build config from flags and the configuration file
	cfg, err := buildAuditConfig(cmd, args)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging
	logger := setupLogger(cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown.
	// A stage already running on the server is never cancelled; the
	// runner stops between stages.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runAudit(ctx, cfg, logger)
}

// buildAuditConfig creates a Config from cobra command flags and the
// configuration file. Flags win over file settings; per-dataset
// profiles fill whatever is still unset when the requests are built.
func buildAuditConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := buildBaseConfig(cmd)
	if err != nil {
		return nil, err
	}

	// Get positional arguments (dataset paths)
	cfg.Datasets = args

	// The server flag default equals the config default, so only an
	// explicitly set flag may override the file setting.
	if cmd.Flags().Changed("server") {
		cfg.ServerURL, err = cmd.Flags().GetString("server")
		if err != nil {
			return nil, err
		}
	}

	cfg.LabelField, err = cmd.Flags().GetString("label")
	if err != nil {
		return nil, err
	}

	cfg.ProtectedFields, err = cmd.Flags().GetStringSlice("protected")
	if err != nil {
		return nil, err
	}

	cfg.HiddenLayerSizes, err = cmd.Flags().GetIntSlice("hidden-layers")
	if err != nil {
		return nil, err
	}

	cfg.EpochCount, err = cmd.Flags().GetInt("epochs")
	if err != nil {
		return nil, err
	}

	cfg.QidThreshold, err = cmd.Flags().GetFloat64("threshold")
	if err != nil {
		return nil, err
	}

	cfg.Concurrency, err = cmd.Flags().GetInt("concurrency")
	if err != nil {
		return nil, err
	}

	cfg.Format, err = cmd.Flags().GetString("format")
	if err != nil {
		return nil, err
	}

	cfg.OutputFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory

	return cfg, nil
}

// buildRequest assembles the pipeline request for one dataset, merging
// command line flags with the dataset's profile. Flags win; profile
// values fill the gaps; zero runtime values mean the server default.
func buildRequest(cfg *config.Config, datasetPath string) model.PipelineRequest {
	var profile config.Profile
	if cfg.Profiles != nil {
		profile = cfg.Profiles.GetProfile(datasetPath)
	}

	label := cfg.LabelField
	if label == "" {
		label = profile.LabelField
	}

	protected := cfg.ProtectedFields
	if len(protected) == 0 {
		protected = profile.ProtectedFields
	}

	layers := cfg.HiddenLayerSizes
	if len(layers) == 0 {
		layers = profile.HiddenLayerSizes
	}
	if len(layers) == 0 {
		layers = model.DefaultHiddenLayerSizes()
	}

	epochs := cfg.EpochCount
	if epochs == 0 {
		epochs = profile.EpochCount
	}

	threshold := cfg.QidThreshold
	if threshold == 0 {
		threshold = profile.QidThreshold
	}

	return model.PipelineRequest{
		DatasetPath:      datasetPath,
		LabelField:       label,
		ProtectedFields:  protected,
		HiddenLayerSizes: layers,
		Runtime: model.RuntimeOptions{
			EpochCount:   epochs,
			QidThreshold: threshold,
		},
	}
}

// runAudit executes the audit for every configured dataset.
func runAudit(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting audit",
		"datasets", cfg.Datasets,
		"server", cfg.ServerURL,
		"concurrency", cfg.Concurrency,
		"saveHistory", cfg.SaveHistory,
	)

	client, err := service.NewClient(cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("failed to create analysis client: %w", err)
	}

	managed, err := ensureServer(ctx, cfg, client, logger)
	if err != nil {
		return err
	}
	if managed != nil {
		// Ensure the launched server is stopped on exit
		defer func() {
			logger.Info("stopping analysis server...")
			if err := managed.Stop(); err != nil {
				logger.Error("failed to stop analysis server", "error", err)
			}
		}()
	}

	// Open database connection if history saving is enabled
	var db *database.RunDB
	if cfg.SaveHistory {
		db, err = database.Open(cfg.HistoryDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close history database", "error", err)
			}
		}()
		logger.Info("history database opened", "dir", cfg.HistoryDir)
	}

	// Use the batch auditor for parallel auditing if multiple datasets
	if len(cfg.Datasets) > 1 && cfg.Concurrency > 1 {
		return runBatchAudit(ctx, cfg, client, db, logger)
	}

	// Single dataset or sequential auditing
	return runSequentialAudit(ctx, cfg, client, db, logger)
}

// ensureServer verifies the analysis server is reachable, launching the
// configured server command when nothing answers yet. The returned
// ManagedServer is nil when an already running server is used.
func ensureServer(ctx context.Context, cfg *config.Config, client *service.Client, logger *slog.Logger) (*service.ManagedServer, error) {
	status := client.CheckConnection(ctx)
	if status == service.ServerStatusOK {
		logger.Info("analysis server connection verified", "server", cfg.ServerURL)
		return nil, nil
	}

	// Launching our own server cannot help when something else already
	// answers on the port.
	if status == service.ServerStatusWrongService {
		return nil, fmt.Errorf("endpoint %s answered but it is not the analysis server: %w", cfg.ServerURL, status.Error())
	}

	if cfg.ServerCommand == "" {
		return nil, fmt.Errorf("analysis server check failed at %s: %w (start the server, or set serverCommand in the configuration file to have fairscan launch it)", cfg.ServerURL, status.Error())
	}

	fmt.Printf("Starting analysis server: %s %s\n\n", cfg.ServerCommand, strings.Join(cfg.ServerArgs, " "))

	managed := service.NewManagedServer(client, cfg.ServerCommand, cfg.ServerArgs,
		service.WithStartupTimeout(cfg.ServerStartupTimeout),
	)
	if err := managed.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start analysis server: %w", err)
	}

	logger.Info("analysis server started",
		"command", cfg.ServerCommand,
		"server", cfg.ServerURL,
	)
	return managed, nil
}

// runSequentialAudit audits datasets one at a time in the order given.
func runSequentialAudit(ctx context.Context, cfg *config.Config, client *service.Client, db *database.RunDB, logger *slog.Logger) error {
	var firstErr error
	for _, datasetPath := range cfg.Datasets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := auditDataset(ctx, cfg, client, db, datasetPath, logger); err != nil {
			// A lone dataset surfaces its error directly; with several,
			// the remaining ones still run.
			if len(cfg.Datasets) == 1 {
				return err
			}
			logger.Error("audit failed", "dataset", datasetPath, "error", err)
			fmt.Fprintf(os.Stderr, "Audit error for %s: %v\n", datasetPath, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// auditDataset runs the full pipeline for one dataset and delivers the
// report to the configured output and the history database.
func auditDataset(ctx context.Context, cfg *config.Config, client *service.Client, db *database.RunDB, datasetPath string, logger *slog.Logger) error {
	req := buildRequest(cfg, datasetPath)
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid audit request for %s: %w", datasetPath, err)
	}

	dataset, err := model.NewDatasetRef(req.DatasetPath)
	if err != nil {
		return fmt.Errorf("failed to read dataset %s: %w", datasetPath, err)
	}

	if err := preflightColumns(ctx, client, req, logger); err != nil {
		return err
	}

	fmt.Printf("Auditing %s...\n", dataset.Base())
	startTime := time.Now()

	runner := pipeline.NewRunner(client,
		pipeline.WithLogger(logger),
		pipeline.WithProgressFunc(progressPrinter(os.Stderr)),
	)

	run := pipeline.NewRun(req, dataset, cfg.ServerURL)
	auditReport, err := runner.Execute(ctx, run)
	if err != nil {
		return err
	}

	elapsed := time.Since(startTime)
	fmt.Printf("Audit completed in %s\n\n", elapsed.Round(time.Millisecond))

	// Generate and output report
	if err := outputReport(cfg, auditReport); err != nil {
		return err
	}

	// Save to the history database if enabled
	if err := saveAuditReport(ctx, db, auditReport, logger); err != nil {
		logger.Error("failed to save audit report", "dataset", datasetPath, "error", err)
	}

	return nil
}

// runBatchAudit audits multiple datasets concurrently using BatchAuditor.
func runBatchAudit(ctx context.Context, cfg *config.Config, client *service.Client, db *database.RunDB, logger *slog.Logger) error {
	fmt.Printf("Starting batch audit of %d datasets (concurrency: %d)...\n\n",
		len(cfg.Datasets), cfg.Concurrency)

	startTime := time.Now()

	requests := make([]model.PipelineRequest, 0, len(cfg.Datasets))
	for _, datasetPath := range cfg.Datasets {
		requests = append(requests, buildRequest(cfg, datasetPath))
	}

	// Create batch auditor with a per-dataset runner factory so each
	// dataset's progress lines carry its own name.
	auditor := pipeline.NewBatchAuditor(
		func(dataset model.DatasetRef) *pipeline.Runner {
			return pipeline.NewRunner(client,
				pipeline.WithLogger(logger),
				pipeline.WithProgressFunc(prefixedProgressPrinter(os.Stderr, dataset.Base())),
			)
		},
		cfg.ServerURL,
		pipeline.WithBatchConcurrency(cfg.Concurrency),
		pipeline.WithBatchLogger(logger),
	)

	results, err := auditor.Process(ctx, requests)
	if err != nil {
		return err
	}

	var firstErr error
	succeeded := 0
	for i, result := range results {
		if !result.Succeeded() {
			fmt.Fprintf(os.Stderr, "[%d/%d] Audit error for %s: %v\n",
				i+1, len(results), result.DatasetPath, result.Err)
			if firstErr == nil {
				firstErr = result.Err
			}
			continue
		}

		succeeded++
		fmt.Printf("[%d/%d] Audit completed: %s (score %d, %s)\n",
			i+1, len(results), result.Report.Dataset.Base(),
			result.Report.FairnessScore, result.Report.FairnessStatusText)

		// Generate and output report
		if err := outputReport(cfg, result.Report); err != nil {
			logger.Error("report failed", "dataset", result.DatasetPath, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}

		// Save to the history database if enabled
		if err := saveAuditReport(ctx, db, result.Report, logger); err != nil {
			logger.Error("failed to save audit report", "dataset", result.DatasetPath, "error", err)
		}
	}

	elapsed := time.Since(startTime)
	fmt.Printf("\nBatch audit completed in %s (%d/%d datasets succeeded)\n",
		elapsed.Round(time.Millisecond), succeeded, len(results))

	return firstErr
}

// preflightColumns asks the server for the dataset's columns and checks
// that the requested label and protected columns exist before any
// training starts. It also points out sensitive looking columns the
// request does not cover.
func preflightColumns(ctx context.Context, client *service.Client, req model.PipelineRequest, logger *slog.Logger) error {
	result, err := client.Columns(ctx, req.DatasetPath)
	if err != nil {
		return fmt.Errorf("failed to inspect columns of %s: %w", req.DatasetPath, err)
	}

	// The raw preview rows stay out of the log output; the redacting
	// handler masks the sample attribute.
	logger.Debug("column preflight",
		"dataset", req.DatasetPath,
		"num_columns", result.NumColumns,
		"sample", fmt.Sprint(result.SampleData),
	)

	if !result.HasColumn(req.LabelField) {
		return fmt.Errorf("label column %q not found in %s (columns: %s)",
			req.LabelField, filepath.Base(req.DatasetPath), strings.Join(result.Columns, ", "))
	}
	for _, field := range req.ProtectedFields {
		if !result.HasColumn(field) {
			return fmt.Errorf("protected column %q not found in %s (columns: %s)",
				field, filepath.Base(req.DatasetPath), strings.Join(result.Columns, ", "))
		}
	}

	covered := make(map[string]bool, len(req.ProtectedFields)+1)
	for _, field := range req.ProtectedFields {
		covered[strings.ToLower(field)] = true
	}
	covered[strings.ToLower(req.LabelField)] = true

	var uncovered []string
	for _, name := range result.DetectedSensitive {
		if !covered[strings.ToLower(name)] {
			uncovered = append(uncovered, name)
		}
	}
	if len(uncovered) > 0 {
		fmt.Fprintf(os.Stderr, "Note: %s has other likely sensitive columns not being audited: %s\n",
			filepath.Base(req.DatasetPath), strings.Join(uncovered, ", "))
	}

	return nil
}

// progressPrinter returns a ProgressFunc that prints one line when a
// stage starts and one when it finishes. Progress goes to stderr so
// that report output on stdout stays machine readable.
func progressPrinter(w io.Writer) pipeline.ProgressFunc {
	return func(_ model.StageKind, fraction float64, message string) {
		fmt.Fprintf(w, "[%3d%%] %s\n", int(math.Round(fraction*100)), message)
	}
}

// prefixedProgressPrinter labels each progress line with the dataset
// name so concurrent audits stay readable.
func prefixedProgressPrinter(w io.Writer, label string) pipeline.ProgressFunc {
	return func(_ model.StageKind, fraction float64, message string) {
		fmt.Fprintf(w, "[%s] [%3d%%] %s\n", label, int(math.Round(fraction*100)), message)
	}
}

// outputReport outputs the audit report in the requested format.
func outputReport(cfg *config.Config, auditReport *model.Report) error {
	// Determine output destination
	var output *os.File
	if cfg.OutputFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.OutputFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Create/overwrite the output file with secure permissions (0600)
		// Reports may embed flagged sample values that should only be readable by the owner
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	switch cfg.Format {
	case config.FormatJSON:
		writer := report.NewJSONWriter(output, report.WithPrettyPrint())
		_, err := writer.Write(auditReport)
		return err
	case config.FormatMarkdown:
		writer := report.NewMarkdownWriter(output)
		_, err := writer.Write(auditReport)
		return err
	default:
		// Human-readable dashboard (default)
		writer := report.NewTextWriter(output, report.WithVerbose(cfg.Verbose))
		_, err := writer.Write(auditReport)
		return err
	}
}

// saveAuditReport saves the audit report to the history database.
// If db is nil, this function is a no-op.
func saveAuditReport(ctx context.Context, db *database.RunDB, auditReport *model.Report, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	if err := db.SaveReport(ctx, auditReport); err != nil {
		return fmt.Errorf("failed to save audit report: %w", err)
	}

	logger.Info("audit report saved to history",
		"runID", auditReport.RunID,
		"dataset", auditReport.Dataset.Base(),
	)
	return nil
}
