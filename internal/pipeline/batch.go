package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/fairscan/internal/model"
	"golang.org/x/sync/errgroup"
)

// defaultBatchConcurrency is the default number of simultaneous audits.
// The analysis server holds a single trained model at a time, so runs
// against one server must not overlap unless the operator knows the
// server can take it.
const defaultBatchConcurrency = 1

// BatchResult is the outcome of one dataset's audit within a batch.
type BatchResult struct {
	// DatasetPath is the dataset path as given in the request.
	DatasetPath string

	// Report is the completed report; nil when the audit failed.
	Report *model.Report

	// Err is the failure; nil when the audit succeeded. Stage failures
	// carry a *model.ClassifiedError; request and dataset validation
	// failures carry the validation error itself.
	Err error
}

// Succeeded reports whether this dataset's audit completed.
func (r BatchResult) Succeeded() bool {
	return r.Err == nil && r.Report != nil
}

// BatchAuditor audits several datasets with bounded concurrency.
//
// Design decision: We keep batch handling out of the Runner because:
// 1. The Runner stays a single-run state machine
// 2. Each dataset gets fresh run state and its own observers
// 3. Concurrency policy is a batch concern, not a pipeline invariant
type BatchAuditor struct {
	// runnerFactory builds the Runner for one dataset. A fresh Runner
	// per dataset lets callers attach per-dataset observers.
	runnerFactory func(dataset model.DatasetRef) *Runner

	// serverURL is recorded on each report.
	serverURL string

	// concurrency is the maximum number of simultaneous audits.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchAuditor.
type BatchOption func(*BatchAuditor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchAuditor) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBatchConcurrency sets the maximum number of simultaneous audits.
// Values below one are ignored.
func WithBatchConcurrency(n int) BatchOption {
	return func(b *BatchAuditor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchAuditor creates a BatchAuditor.
//
// The runnerFactory is called once per dataset so every audit gets a
// fresh Runner; the factory receives the dataset reference so callers
// can label per-dataset progress output.
func NewBatchAuditor(runnerFactory func(dataset model.DatasetRef) *Runner, serverURL string, opts ...BatchOption) *BatchAuditor {
	b := &BatchAuditor{
		runnerFactory: runnerFactory,
		serverURL:     serverURL,
		concurrency:   defaultBatchConcurrency,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.logger == nil {
		b.logger = slog.Default()
	}

	return b
}

// Process audits every request and returns one result per request, in
// input order. A failed audit does not stop the others; its failure is
// recorded on its BatchResult. The returned error is non-nil only when
// the context was cancelled.
func (b *BatchAuditor) Process(ctx context.Context, requests []model.PipelineRequest) ([]BatchResult, error) {
	b.logger.Info("starting batch audit",
		"total_datasets", len(requests),
		"concurrency", b.concurrency,
	)
	startTime := time.Now()

	results := make([]BatchResult, len(requests))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, req := range requests {
		g.Go(func() error {
			// Check for cancellation before starting
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			b.logger.Info("auditing dataset",
				"dataset", req.DatasetPath,
				"index", i+1,
				"total", len(requests),
			)

			results[i] = b.auditOne(ctx, req)
			if results[i].Err != nil {
				b.logger.Warn("audit failed",
					"dataset", req.DatasetPath,
					"error", results[i].Err,
				)
				// The failure is recorded on the result; other audits continue.
				return nil
			}

			b.logger.Info("audit completed",
				"dataset", req.DatasetPath,
				"score", results[i].Report.FairnessScore,
			)
			return nil
		})
	}

	err := g.Wait()

	b.logger.Info("batch audit complete",
		"total_datasets", len(requests),
		"elapsed", time.Since(startTime),
	)
	return results, err
}

// auditOne validates, fingerprints, and runs a single dataset audit.
func (b *BatchAuditor) auditOne(ctx context.Context, req model.PipelineRequest) BatchResult {
	if err := req.Validate(); err != nil {
		return BatchResult{DatasetPath: req.DatasetPath, Err: err}
	}

	dataset, err := model.NewDatasetRef(req.DatasetPath)
	if err != nil {
		return BatchResult{DatasetPath: req.DatasetPath, Err: err}
	}

	run := NewRun(req, dataset, b.serverURL)
	report, err := b.runnerFactory(dataset).Execute(ctx, run)
	if err != nil {
		return BatchResult{DatasetPath: req.DatasetPath, Err: err}
	}
	return BatchResult{DatasetPath: req.DatasetPath, Report: report}
}
