package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nao1215/fairscan/internal/model"
	"github.com/nao1215/fairscan/internal/service"
)

// mockStage is a test helper that implements the Stage interface.
type mockStage struct {
	kind      model.StageKind
	runFunc   func(ctx context.Context, run *Run) error
	callCount int
}

// Run implements Stage.Run. Without a runFunc it stores a minimal valid
// payload, matching what a successful stage must do.
func (m *mockStage) Run(ctx context.Context, run *Run) error {
	m.callCount++
	if m.runFunc != nil {
		return m.runFunc(ctx, run)
	}
	storePayload(run, m.kind)
	return nil
}

// Kind implements Stage.Kind.
func (m *mockStage) Kind() model.StageKind {
	return m.kind
}

// storePayload stores a minimal valid payload for the stage on the run.
func storePayload(run *Run, kind model.StageKind) {
	switch kind {
	case model.StageTrain:
		run.Train = &model.TrainResult{Accuracy: 0.9}
	case model.StageActivations:
		run.Activations = &model.ActivationsResult{Method: "pca", NumSamples: 10}
	case model.StageQidAnalysis:
		run.Qid = &model.QidMetrics{MeanDisparateImpact: 1.0}
	case model.StageSearch:
		run.Search = &model.SearchResult{}
	case model.StageDebug:
		run.Debug = &model.DebugResult{}
	case model.StageExplain:
		run.Explain = &model.ExplainResult{}
	}
}

// mockStages returns one mock per stage, in execution order.
func mockStages() []*mockStage {
	kinds := model.Stages()
	stages := make([]*mockStage, len(kinds))
	for i, kind := range kinds {
		stages[i] = &mockStage{kind: kind}
	}
	return stages
}

// newMockRunner builds a Runner over the given mocks, with logging
// discarded.
func newMockRunner(stages []*mockStage, opts ...Option) *Runner {
	opts = append(opts, WithLogger(discardLogger()))
	r := NewRunner(nil, opts...)
	r.stages = make([]Stage, len(stages))
	for i, stage := range stages {
		r.stages[i] = stage
	}
	return r
}

// discardLogger returns a logger that drops everything.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRun returns run state for a valid request.
func testRun() *Run {
	return NewRun(model.PipelineRequest{
		DatasetPath:      "/data/adult.csv",
		LabelField:       "income",
		ProtectedFields:  []string{"sex", "race"},
		HiddenLayerSizes: []int{64, 32},
	}, model.DatasetRef{Path: "/data/adult.csv"}, "http://127.0.0.1:8765")
}

// fakeClock is a hand-driven clock for timing assertions.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// TestNewRunner tests the Runner constructor.
func TestNewRunner(t *testing.T) {
	t.Parallel()

	t.Run("wires the six stages in execution order", func(t *testing.T) {
		t.Parallel()

		client, err := service.NewClient("http://127.0.0.1:8765")
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}
		r := NewRunner(client)

		if r.StageCount() != model.StageCount {
			t.Fatalf("StageCount() = %d, expected %d", r.StageCount(), model.StageCount)
		}
		kinds := r.StageKinds()
		for i, expected := range model.Stages() {
			if kinds[i] != expected {
				t.Errorf("stage %d = %v, expected %v", i, kinds[i], expected)
			}
		}
	})

	t.Run("applies observer options", func(t *testing.T) {
		t.Parallel()

		r := NewRunner(nil,
			WithProgressFunc(func(model.StageKind, float64, string) {}),
			WithStageTimedFunc(func(model.StageKind, int) {}),
		)

		if r.onProgress == nil {
			t.Error("expected onProgress to be set")
		}
		if r.onStageTimed == nil {
			t.Error("expected onStageTimed to be set")
		}
	})

	t.Run("nil logger keeps the default", func(t *testing.T) {
		t.Parallel()

		r := NewRunner(nil, WithLogger(nil))
		if r.logger == nil {
			t.Error("expected a non-nil logger")
		}
	})
}

// TestRunnerExecute tests the state machine's ordering, abort, and
// report-building contract over mock stages.
func TestRunnerExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all stages in order and builds a report", func(t *testing.T) {
		t.Parallel()

		executionOrder := make([]model.StageKind, 0, model.StageCount)
		stages := mockStages()
		for _, stage := range stages {
			kind := stage.kind
			stage.runFunc = func(_ context.Context, run *Run) error {
				executionOrder = append(executionOrder, kind)
				storePayload(run, kind)
				return nil
			}
		}

		r := newMockRunner(stages)
		report, err := r.Execute(context.Background(), testRun())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(executionOrder) != model.StageCount {
			t.Fatalf("expected %d executions, got %d", model.StageCount, len(executionOrder))
		}
		for i, expected := range model.Stages() {
			if executionOrder[i] != expected {
				t.Errorf("execution %d = %v, expected %v", i, executionOrder[i], expected)
			}
		}

		if report == nil {
			t.Fatal("expected a report")
		}
		if report.RunID == "" {
			t.Error("expected a run ID")
		}
		if len(report.Stages) != model.StageCount {
			t.Errorf("len(Stages) = %d, expected %d", len(report.Stages), model.StageCount)
		}
		if report.FairnessScore != 100 {
			t.Errorf("FairnessScore = %d, expected 100 for clean metrics", report.FairnessScore)
		}
		if report.FairnessStatus != model.StatusGood {
			t.Errorf("FairnessStatus = %v, expected StatusGood", report.FairnessStatus)
		}
	})

	t.Run("stops at the first failing stage and discards results", func(t *testing.T) {
		t.Parallel()

		stages := mockStages()
		stages[2].runFunc = func(_ context.Context, _ *Run) error {
			return &service.ServiceError{StatusCode: 500, Detail: "ValueError: exploded"}
		}

		r := newMockRunner(stages)
		report, err := r.Execute(context.Background(), testRun())

		if report != nil {
			t.Error("expected no report for a failed run")
		}

		var classified *model.ClassifiedError
		if !errors.As(err, &classified) {
			t.Fatalf("expected *model.ClassifiedError, got %T", err)
		}
		if classified.Stage != model.StageQidAnalysis {
			t.Errorf("Stage = %v, expected StageQidAnalysis", classified.Stage)
		}
		if classified.Title != model.TitleAnalysisError {
			t.Errorf("Title = %q, expected %q", classified.Title, model.TitleAnalysisError)
		}

		for i, stage := range stages {
			expected := 1
			if i > 2 {
				expected = 0
			}
			if stage.callCount != expected {
				t.Errorf("stage %d call count = %d, expected %d", i, stage.callCount, expected)
			}
		}
	})

	t.Run("classifies a stage ceiling expiry as a timeout", func(t *testing.T) {
		t.Parallel()

		stages := mockStages()
		stages[0].runFunc = func(ctx context.Context, _ *Run) error {
			<-ctx.Done()
			return ctx.Err()
		}

		r := newMockRunner(stages)
		r.stageTimeout = func(model.StageKind) time.Duration { return 20 * time.Millisecond }

		_, err := r.Execute(context.Background(), testRun())

		var classified *model.ClassifiedError
		if !errors.As(err, &classified) {
			t.Fatalf("expected *model.ClassifiedError, got %T", err)
		}
		if classified.Title != model.TitleTimeout {
			t.Errorf("Title = %q, expected %q", classified.Title, model.TitleTimeout)
		}
		if stages[1].callCount != 0 {
			t.Error("no stage may run after a timeout")
		}
	})

	t.Run("respects context cancellation before the first stage", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		stages := mockStages()
		r := newMockRunner(stages)

		report, err := r.Execute(ctx, testRun())
		if report != nil {
			t.Error("expected no report")
		}

		var classified *model.ClassifiedError
		if !errors.As(err, &classified) {
			t.Fatalf("expected *model.ClassifiedError, got %T", err)
		}
		if classified.Stage != model.StageTrain {
			t.Errorf("Stage = %v, expected StageTrain", classified.Stage)
		}
		if stages[0].callCount != 0 {
			t.Error("no stage may run after cancellation")
		}
	})

	t.Run("reports progress once per entry and once per success", func(t *testing.T) {
		t.Parallel()

		type emission struct {
			stage    model.StageKind
			fraction float64
			message  string
		}
		emissions := make([]emission, 0, 2*model.StageCount)

		stages := mockStages()
		r := newMockRunner(stages, WithProgressFunc(func(stage model.StageKind, fraction float64, message string) {
			emissions = append(emissions, emission{stage: stage, fraction: fraction, message: message})
		}))

		if _, err := r.Execute(context.Background(), testRun()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(emissions) != 2*model.StageCount {
			t.Fatalf("expected %d emissions, got %d", 2*model.StageCount, len(emissions))
		}

		expectedFractions := []float64{0, 0.30, 0.30, 0.38, 0.38, 0.55, 0.55, 0.70, 0.70, 0.82, 0.82, 1.0}
		for i, e := range emissions {
			if e.fraction != expectedFractions[i] {
				t.Errorf("emission %d fraction = %v, expected %v", i, e.fraction, expectedFractions[i])
			}
			if i > 0 && e.fraction < emissions[i-1].fraction {
				t.Errorf("emission %d fraction decreased: %v after %v", i, e.fraction, emissions[i-1].fraction)
			}
		}
		if emissions[len(emissions)-1].fraction != 1.0 {
			t.Errorf("final fraction = %v, expected exactly 1.0", emissions[len(emissions)-1].fraction)
		}

		for i, kind := range model.Stages() {
			entry, success := emissions[2*i], emissions[2*i+1]
			if entry.stage != kind || success.stage != kind {
				t.Errorf("emissions %d/%d carry stage %v/%v, expected %v", 2*i, 2*i+1, entry.stage, success.stage, kind)
			}
			if entry.message != kind.Label() {
				t.Errorf("entry message = %q, expected the stage label %q", entry.message, kind.Label())
			}
			if success.message == "" {
				t.Errorf("success message for %v must carry the result summary", kind)
			}
		}
	})

	t.Run("measures stage and total time independently", func(t *testing.T) {
		t.Parallel()

		clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
		startedAt := clock.Now()

		stages := mockStages()
		for _, stage := range stages {
			kind := stage.kind
			stage.runFunc = func(_ context.Context, run *Run) error {
				clock.Advance(1400 * time.Millisecond)
				storePayload(run, kind)
				return nil
			}
		}

		timings := make(map[model.StageKind]int, model.StageCount)
		r := newMockRunner(stages, WithStageTimedFunc(func(stage model.StageKind, seconds int) {
			timings[stage] = seconds
		}))
		r.now = clock.Now

		report, err := r.Execute(context.Background(), testRun())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// 1.4s per stage rounds to 1; six of them span 8.4s, which
		// rounds to 8. The total is measured on the wall clock, not
		// summed from the per-stage integers.
		for _, kind := range model.Stages() {
			if timings[kind] != 1 {
				t.Errorf("timing for %v = %d, expected 1", kind, timings[kind])
			}
			if report.StageElapsed(kind) != 1 {
				t.Errorf("StageElapsed(%v) = %d, expected 1", kind, report.StageElapsed(kind))
			}
		}
		if report.TotalElapsedSeconds != 8 {
			t.Errorf("TotalElapsedSeconds = %d, expected 8", report.TotalElapsedSeconds)
		}
		if !report.StartedAt.Equal(startedAt) {
			t.Errorf("StartedAt = %v, expected %v", report.StartedAt, startedAt)
		}
		if !report.FinishedAt.Equal(startedAt.Add(8400 * time.Millisecond)) {
			t.Errorf("FinishedAt = %v, expected start plus 8.4s", report.FinishedAt)
		}
	})

	t.Run("classifies a stage that stores no result", func(t *testing.T) {
		t.Parallel()

		stages := mockStages()
		stages[0].runFunc = func(_ context.Context, _ *Run) error {
			return nil
		}

		r := newMockRunner(stages)
		report, err := r.Execute(context.Background(), testRun())

		if report != nil {
			t.Error("expected no report")
		}

		var classified *model.ClassifiedError
		if !errors.As(err, &classified) {
			t.Fatalf("expected *model.ClassifiedError, got %T", err)
		}
		if !classified.Complete() {
			t.Errorf("expected a complete classification, got %+v", classified)
		}
		if stages[1].callCount != 0 {
			t.Error("no stage may run after a missing result")
		}
	})
}
