package model

import "time"

// StageKind identifies one of the six ordered remote analysis stages.
// A fairness audit always runs the stages in the order listed below;
// a later stage consumes state the analysis service built in earlier ones,
// so the ordering is a hard invariant rather than a convention.
//
// Design decision: We use iota-based constants rather than string constants
// for efficiency in comparisons and ordering. The String() method provides
// human-readable output when needed.
type StageKind int

const (
	// StageTrain trains the fairness detector network on the dataset.
	// This is always the first stage; every later stage needs the model.
	StageTrain StageKind = iota

	// StageActivations projects intermediate layer activations to 2D
	// for internal-space visualization.
	StageActivations

	// StageQidAnalysis computes per-sample quantitative individual
	// discrimination metrics. Its aggregates feed the fairness score.
	StageQidAnalysis

	// StageSearch runs the gradient-guided search for discriminatory
	// instance pairs.
	StageSearch

	// StageDebug localizes the most biased layer and neurons via
	// causal interventions.
	StageDebug

	// StageExplain computes SHAP and LIME feature attributions.
	// This is always the last stage.
	StageExplain
)

// StageCount is the number of stages in a complete audit run.
const StageCount = 6

// progressWeightTotal is the sum of all stage progress weights.
// The per-stage weights must always sum to this value.
const progressWeightTotal = 100

// StageInfo contains the fixed policy for a stage: its share of overall
// progress, its timeout ceiling, and its display label.
type StageInfo struct {
	// Weight is the stage's share of overall progress, in percent.
	Weight int

	// Timeout is the ceiling for the stage's remote call. A call that
	// does not resolve within this duration fails the run.
	Timeout time.Duration

	// Label is the human-readable progress label shown while the
	// stage is running.
	Label string
}

// stageInfoMapping maps each stage to its fixed policy.
// This centralized mapping keeps progress weights and timeout ceilings in
// one place so they can be checked against each other (weights sum to 100).
//
// The timeout ceilings mirror what the analysis service realistically
// needs: training dominates, explanation sampling comes second, and the
// remaining stages are bounded metric computations.
var stageInfoMapping = map[StageKind]StageInfo{
	StageTrain: {
		Weight:  30,
		Timeout: 300 * time.Second,
		Label:   "Training model",
	},
	StageActivations: {
		Weight:  8,
		Timeout: 60 * time.Second,
		Label:   "Projecting activations",
	},
	StageQidAnalysis: {
		Weight:  17,
		Timeout: 120 * time.Second,
		Label:   "Computing discrimination metrics",
	},
	StageSearch: {
		Weight:  15,
		Timeout: 120 * time.Second,
		Label:   "Searching discriminatory pairs",
	},
	StageDebug: {
		Weight:  12,
		Timeout: 120 * time.Second,
		Label:   "Localizing biased units",
	},
	StageExplain: {
		Weight:  18,
		Timeout: 180 * time.Second,
		Label:   "Computing explanations",
	},
}

// Stages returns all stage kinds in execution order.
// The returned slice is a fresh copy; callers may modify it.
func Stages() []StageKind {
	return []StageKind{
		StageTrain,
		StageActivations,
		StageQidAnalysis,
		StageSearch,
		StageDebug,
		StageExplain,
	}
}

// String returns the short machine-readable name of the stage.
// These names appear in logs, progress events, and stored reports.
func (k StageKind) String() string {
	switch k {
	case StageTrain:
		return "train"
	case StageActivations:
		return "activations"
	case StageQidAnalysis:
		return "qid_analysis"
	case StageSearch:
		return "search"
	case StageDebug:
		return "debug"
	case StageExplain:
		return "explain"
	default:
		return "unknown"
	}
}

// IsValid returns true if this is a known stage kind.
func (k StageKind) IsValid() bool {
	_, ok := stageInfoMapping[k]
	return ok
}

// Weight returns the stage's share of overall progress in percent.
// Weights across all six stages sum to 100.
func (k StageKind) Weight() int {
	return stageInfoMapping[k].Weight
}

// Timeout returns the stage's timeout ceiling.
// Returns zero for unknown stage kinds.
func (k StageKind) Timeout() time.Duration {
	return stageInfoMapping[k].Timeout
}

// Label returns the human-readable progress label for the stage.
func (k StageKind) Label() string {
	if info, ok := stageInfoMapping[k]; ok {
		return info.Label
	}
	return "Unknown stage"
}
