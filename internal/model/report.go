package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Report construction errors.
var (
	// ErrStageCount is returned when a report is built from the wrong
	// number of stage results.
	ErrStageCount = errors.New("a complete run has exactly six stage results")
	// ErrStageOrder is returned when stage results are out of execution order.
	ErrStageOrder = errors.New("stage results must follow execution order")
	// ErrStagePayload is returned when a stage result carries no payload
	// or a payload of the wrong kind.
	ErrStagePayload = errors.New("stage result payload does not match its kind")
	// ErrNegativeElapsed is returned when a stage reports negative elapsed time.
	ErrNegativeElapsed = errors.New("stage elapsed seconds cannot be negative")
	// ErrUnknownPayload is returned when a stage result is built from an
	// unsupported payload type.
	ErrUnknownPayload = errors.New("unsupported stage payload type")
)

// StageResult is the outcome of one remote analysis stage: which stage
// ran, how long it took, and the stage's typed payload.
//
// Design decision: We model the six payload kinds as one struct with
// exactly one non-nil pointer rather than an interface because:
//  1. The report serializes to JSON for storage and export, and a flat
//     struct round-trips without custom envelope logic
//  2. Writers can reach the typed payload without type switches
//  3. Validate can enforce the one-payload invariant in one place
type StageResult struct {
	// Kind identifies the stage.
	Kind StageKind `json:"kind"`

	// KindText is the string form of Kind for serialization.
	KindText string `json:"kind_text"`

	// ElapsedSeconds is the stage's wall-clock duration, rounded to
	// whole seconds. Never negative.
	ElapsedSeconds int `json:"elapsed_seconds"`

	// Exactly one of the following payloads is non-nil, matching Kind.

	Train       *TrainResult       `json:"train,omitempty"`
	Activations *ActivationsResult `json:"activations,omitempty"`
	QidAnalysis *QidMetrics        `json:"qid_analysis,omitempty"`
	Search      *SearchResult      `json:"search,omitempty"`
	Debug       *DebugResult       `json:"debug,omitempty"`
	Explain     *ExplainResult     `json:"explain,omitempty"`
}

// NewStageResult builds a StageResult from a typed payload.
// The payload type must match the stage kind.
func NewStageResult(kind StageKind, elapsedSeconds int, payload any) (StageResult, error) {
	result := StageResult{
		Kind:           kind,
		KindText:       kind.String(),
		ElapsedSeconds: elapsedSeconds,
	}

	switch p := payload.(type) {
	case *TrainResult:
		result.Train = p
	case *ActivationsResult:
		result.Activations = p
	case *QidMetrics:
		result.QidAnalysis = p
	case *SearchResult:
		result.Search = p
	case *DebugResult:
		result.Debug = p
	case *ExplainResult:
		result.Explain = p
	default:
		return StageResult{}, fmt.Errorf("%w: %T", ErrUnknownPayload, payload)
	}

	if err := result.Validate(); err != nil {
		return StageResult{}, err
	}
	return result, nil
}

// Validate checks the stage result invariants: a known kind, non-negative
// elapsed time, and exactly one payload matching the kind.
func (r *StageResult) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: kind %d", ErrStagePayload, int(r.Kind))
	}
	if r.ElapsedSeconds < 0 {
		return ErrNegativeElapsed
	}

	set := 0
	var matches bool
	for kind, present := range map[StageKind]bool{
		StageTrain:       r.Train != nil,
		StageActivations: r.Activations != nil,
		StageQidAnalysis: r.QidAnalysis != nil,
		StageSearch:      r.Search != nil,
		StageDebug:       r.Debug != nil,
		StageExplain:     r.Explain != nil,
	} {
		if present {
			set++
			if kind == r.Kind {
				matches = true
			}
		}
	}
	if set != 1 || !matches {
		return fmt.Errorf("%w: %s", ErrStagePayload, r.Kind)
	}
	return nil
}

// Summary returns the stage's one-line human-readable result.
func (r *StageResult) Summary() string {
	switch r.Kind {
	case StageTrain:
		return r.Train.Summary()
	case StageActivations:
		return r.Activations.Summary()
	case StageQidAnalysis:
		return r.QidAnalysis.Summary()
	case StageSearch:
		return r.Search.Summary()
	case StageDebug:
		return r.Debug.Summary()
	case StageExplain:
		return r.Explain.Summary()
	default:
		return ""
	}
}

// Report is the immutable aggregate of a completed fairness audit run.
// It carries all six stage payloads verbatim, the request that produced
// them, per-stage and total timings, and the derived fairness verdict.
//
// A Report is constructed once per completed run by BuildReport and
// must be treated as read-only afterwards. Failed runs never produce a
// Report; they surface a ClassifiedError instead.
type Report struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// DateAudited is when the run completed.
	DateAudited time.Time `json:"date_audited"`

	// ServerURL is the analysis service base URL used for the run.
	ServerURL string `json:"server_url"`

	// Dataset identifies the audited file and its content fingerprint.
	Dataset DatasetRef `json:"dataset"`

	// Request is the validated request that produced this run.
	Request PipelineRequest `json:"request"`

	// Stages holds the six stage results in execution order.
	Stages []StageResult `json:"stages"`

	// StartedAt and FinishedAt bound the run in wall-clock time.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// TotalElapsedSeconds is the wall-clock duration from run start to
	// the last stage's completion, rounded to whole seconds. Because
	// per-stage values round independently, this need not equal their sum.
	TotalElapsedSeconds int `json:"total_elapsed_seconds"`

	// FairnessScore is the derived composite score in [0, 100].
	FairnessScore int `json:"fairness_score"`

	// FairnessStatus is the verdict band for FairnessScore.
	FairnessStatus FairnessStatus `json:"fairness_status"`

	// FairnessStatusText is the string form of FairnessStatus for
	// serialization.
	FairnessStatusText string `json:"fairness_status_text"`
}

// BuildReport folds six ordered stage results into a Report.
// It is pure apart from assigning a fresh run ID: the same stages and
// request always yield the same score, status, and timings.
//
// The stage results must be complete, in execution order, and each must
// pass Validate; otherwise an error is returned and no Report exists.
func BuildReport(req PipelineRequest, dataset DatasetRef, serverURL string,
	stages []StageResult, startedAt, finishedAt time.Time,
) (*Report, error) {
	if len(stages) != StageCount {
		return nil, fmt.Errorf("%w: got %d", ErrStageCount, len(stages))
	}
	for i, kind := range Stages() {
		if stages[i].Kind != kind {
			return nil, fmt.Errorf("%w: position %d holds %s, want %s",
				ErrStageOrder, i, stages[i].Kind, kind)
		}
		if err := stages[i].Validate(); err != nil {
			return nil, err
		}
	}

	total := int(finishedAt.Sub(startedAt).Round(time.Second).Seconds())
	if total < 0 {
		total = 0
	}

	qid := stages[2].QidAnalysis
	score := qid.Score()
	status := StatusForScore(score)

	ordered := make([]StageResult, StageCount)
	copy(ordered, stages)

	return &Report{
		RunID:               uuid.NewString(),
		DateAudited:         finishedAt,
		ServerURL:           serverURL,
		Dataset:             dataset,
		Request:             req,
		Stages:              ordered,
		StartedAt:           startedAt,
		FinishedAt:          finishedAt,
		TotalElapsedSeconds: total,
		FairnessScore:       score,
		FairnessStatus:      status,
		FairnessStatusText:  status.String(),
	}, nil
}

// stage returns the stage result of the given kind, or nil.
func (r *Report) stage(kind StageKind) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Kind == kind {
			return &r.Stages[i]
		}
	}
	return nil
}

// StageElapsed returns the elapsed seconds recorded for a stage.
// Returns 0 for stages absent from the report.
func (r *Report) StageElapsed(kind StageKind) int {
	if s := r.stage(kind); s != nil {
		return s.ElapsedSeconds
	}
	return 0
}

// Train returns the training payload, or nil on malformed reports.
func (r *Report) Train() *TrainResult {
	if s := r.stage(StageTrain); s != nil {
		return s.Train
	}
	return nil
}

// ActivationsResult returns the activations payload, or nil.
func (r *Report) ActivationsResult() *ActivationsResult {
	if s := r.stage(StageActivations); s != nil {
		return s.Activations
	}
	return nil
}

// Qid returns the QID analysis payload, or nil.
func (r *Report) Qid() *QidMetrics {
	if s := r.stage(StageQidAnalysis); s != nil {
		return s.QidAnalysis
	}
	return nil
}

// SearchResult returns the search payload, or nil.
func (r *Report) SearchResult() *SearchResult {
	if s := r.stage(StageSearch); s != nil {
		return s.Search
	}
	return nil
}

// DebugResult returns the causal debugging payload, or nil.
func (r *Report) DebugResult() *DebugResult {
	if s := r.stage(StageDebug); s != nil {
		return s.Debug
	}
	return nil
}

// ExplainResult returns the explanation payload, or nil.
func (r *Report) ExplainResult() *ExplainResult {
	if s := r.stage(StageExplain); s != nil {
		return s.Explain
	}
	return nil
}
