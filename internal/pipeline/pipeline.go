package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/fairscan/internal/diagnose"
	"github.com/nao1215/fairscan/internal/model"
	"github.com/nao1215/fairscan/internal/service"
)

// Stage defines one remote analysis stage. Stages execute in a fixed
// order, with each stage reading results earlier stages stored on the
// run state.
//
// Design decision: We use an interface rather than function types because:
// 1. Kind() ties each stage to its timeout ceiling, progress weight, and label
// 2. It allows stages to carry their client dependency as state
// 3. Mock stages keep the Runner's ordering contract testable without a server
type Stage interface {
	// Run executes the stage. It must store its typed result on the run
	// before returning nil; returning an error aborts the whole run.
	Run(ctx context.Context, run *Run) error

	// Kind identifies the stage for policy lookups and notifications.
	Kind() model.StageKind
}

// Run is the mutable state shared across one audit run. The Runner owns
// it while the run is in flight; each stage writes exactly one result
// field and may read fields written by earlier stages.
type Run struct {
	// Request is the validated audit request.
	Request model.PipelineRequest

	// Dataset references the audited file.
	Dataset model.DatasetRef

	// ServerURL is the analysis server base URL, recorded on the report.
	ServerURL string

	// ProtectedValues is the counterfactual probe derived from the train
	// result. The QID analysis, search, and debug stages send it verbatim.
	ProtectedValues map[string][]float64

	// Stage results, written in execution order.
	Train       *model.TrainResult
	Activations *model.ActivationsResult
	Qid         *model.QidMetrics
	Search      *model.SearchResult
	Debug       *model.DebugResult
	Explain     *model.ExplainResult
}

// NewRun creates run state for one audit. The request must already have
// passed Validate; its runtime options are normalized here so zero
// values never reach the wire.
func NewRun(req model.PipelineRequest, dataset model.DatasetRef, serverURL string) *Run {
	req.Runtime = req.Runtime.Normalize()
	return &Run{
		Request:   req,
		Dataset:   dataset,
		ServerURL: serverURL,
	}
}

// payload returns the stored result for a stage. The result may be a
// typed nil when the stage has not run yet.
func (r *Run) payload(kind model.StageKind) any {
	switch kind {
	case model.StageTrain:
		return r.Train
	case model.StageActivations:
		return r.Activations
	case model.StageQidAnalysis:
		return r.Qid
	case model.StageSearch:
		return r.Search
	case model.StageDebug:
		return r.Debug
	case model.StageExplain:
		return r.Explain
	default:
		return nil
	}
}

// ProgressFunc receives one emission on stage entry and one on stage
// success. The fraction is cumulative over stage weights, in [0, 1],
// and never decreases across a run. The message is the stage label on
// entry and the human-readable result summary on success.
type ProgressFunc func(stage model.StageKind, fraction float64, message string)

// StageTimedFunc receives a stage's elapsed whole seconds after the
// stage succeeds.
type StageTimedFunc func(stage model.StageKind, seconds int)

// Runner executes the audit stages in order against one analysis server.
// A Runner carries no per-run state; Execute may be called once per Run.
type Runner struct {
	// stages is the ordered stage list. The order is the stage dependency
	// order and never changes at runtime.
	stages []Stage

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// onProgress and onStageTimed are observational callbacks.
	// Emissions never gate control flow.
	onProgress   ProgressFunc
	onStageTimed StageTimedFunc

	// now supplies wall-clock time; tests substitute a fake clock.
	now func() time.Time

	// stageTimeout resolves a stage's timeout ceiling; tests shorten it.
	stageTimeout func(model.StageKind) time.Duration
}

// Option is a function that configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the runner.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithProgressFunc sets the progress observer.
func WithProgressFunc(fn ProgressFunc) Option {
	return func(r *Runner) {
		r.onProgress = fn
	}
}

// WithStageTimedFunc sets the per-stage timing observer.
func WithStageTimedFunc(fn StageTimedFunc) Option {
	return func(r *Runner) {
		r.onStageTimed = fn
	}
}

// NewRunner creates a Runner wired to the given analysis client, with
// the six stages in execution order.
func NewRunner(client *service.Client, opts ...Option) *Runner {
	r := &Runner{
		stages:       defaultStages(client),
		now:          time.Now,
		stageTimeout: model.StageKind.Timeout,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}

	return r
}

// StageCount returns the number of stages the runner executes.
func (r *Runner) StageCount() int {
	return len(r.stages)
}

// StageKinds returns the stage kinds in execution order.
func (r *Runner) StageKinds() []model.StageKind {
	kinds := make([]model.StageKind, len(r.stages))
	for i, stage := range r.stages {
		kinds[i] = stage.Kind()
	}
	return kinds
}

// Execute runs all stages in order and folds their results into a
// report. On the first stage failure it stops, discards the results
// accumulated so far, and returns a *model.ClassifiedError describing
// the failure; no report exists for a failed run.
//
// Each stage runs under its own deadline, derived from the stage's
// timeout ceiling. Elapsed seconds are measured per stage from entry to
// completion, and the report's total is wall-clock from Execute start
// to the last stage's completion, so the total need not equal the sum
// of the per-stage values.
func (r *Runner) Execute(ctx context.Context, run *Run) (*model.Report, error) {
	startedAt := r.now()
	results := make([]model.StageResult, 0, len(r.stages))
	completedWeight := 0

	for _, stage := range r.stages {
		kind := stage.Kind()

		// Check for cancellation before starting each stage
		select {
		case <-ctx.Done():
			r.logger.Warn("run cancelled",
				"stage", kind.String(),
				"dataset", run.Dataset.Base(),
				"reason", ctx.Err(),
			)
			return nil, diagnose.Classify(kind, ctx.Err())
		default:
		}

		r.progress(kind, completedWeight, kind.Label())
		r.logger.Info("stage starting",
			"stage", kind.String(),
			"dataset", run.Dataset.Base(),
		)

		stageStart := r.now()
		stageCtx, cancel := context.WithTimeout(ctx, r.stageTimeout(kind))
		err := stage.Run(stageCtx, run)
		cancel()
		elapsed := elapsedSeconds(stageStart, r.now())

		if err != nil {
			classified := diagnose.Classify(kind, err)
			r.logger.Error("stage failed",
				"stage", kind.String(),
				"dataset", run.Dataset.Base(),
				"title", classified.Title,
				"detail", classified.Detail,
			)
			return nil, classified
		}

		result, err := model.NewStageResult(kind, elapsed, run.payload(kind))
		if err != nil {
			return nil, diagnose.Classify(kind, fmt.Errorf("record %s result: %w", kind, err))
		}
		results = append(results, result)

		completedWeight += kind.Weight()
		r.progress(kind, completedWeight, result.Summary())
		r.timed(kind, elapsed)

		r.logger.Debug("stage completed",
			"stage", kind.String(),
			"dataset", run.Dataset.Base(),
			"elapsed_seconds", elapsed,
		)
	}

	finishedAt := r.now()
	report, err := model.BuildReport(run.Request, run.Dataset, run.ServerURL,
		results, startedAt, finishedAt)
	if err != nil {
		return nil, diagnose.Classify(model.StageExplain, fmt.Errorf("assemble report: %w", err))
	}

	r.logger.Info("run completed",
		"dataset", run.Dataset.Base(),
		"score", report.FairnessScore,
		"status", report.FairnessStatusText,
		"total_elapsed_seconds", report.TotalElapsedSeconds,
	)
	return report, nil
}

// progress emits a progress notification if an observer is attached.
// The weight is converted to a fraction here so accumulation stays in
// integers and the final emission is exactly 1.0.
func (r *Runner) progress(kind model.StageKind, completedWeight int, message string) {
	if r.onProgress != nil {
		r.onProgress(kind, float64(completedWeight)/100, message)
	}
}

// timed emits a stage timing notification if an observer is attached.
func (r *Runner) timed(kind model.StageKind, seconds int) {
	if r.onStageTimed != nil {
		r.onStageTimed(kind, seconds)
	}
}

// elapsedSeconds rounds the span between two instants to whole seconds,
// clamped at zero.
func elapsedSeconds(from, to time.Time) int {
	seconds := int(to.Sub(from).Round(time.Second) / time.Second)
	if seconds < 0 {
		return 0
	}
	return seconds
}
