package model

import (
	"errors"
	"strconv"
)

// PipelineRequest validation errors.
var (
	// ErrEmptyDatasetPath is returned when no dataset path is given.
	ErrEmptyDatasetPath = errors.New("dataset path cannot be empty")
	// ErrEmptyLabelField is returned when no label column is given.
	ErrEmptyLabelField = errors.New("label column cannot be empty")
	// ErrNoProtectedFields is returned when no protected column is given.
	ErrNoProtectedFields = errors.New("at least one protected column is required")
	// ErrProtectedIsLabel is returned when a protected column equals the label column.
	ErrProtectedIsLabel = errors.New("protected columns must differ from the label column")
	// ErrDuplicateProtectedField is returned when a protected column is listed twice.
	ErrDuplicateProtectedField = errors.New("protected columns must be unique")
	// ErrTooFewHiddenLayers is returned when fewer than two hidden layers are given.
	ErrTooFewHiddenLayers = errors.New("network needs at least two hidden layers")
	// ErrNonPositiveHiddenLayer is returned when a hidden layer size is zero or negative.
	ErrNonPositiveHiddenLayer = errors.New("hidden layer sizes must be positive")
)

// Default runtime options. These match the analysis service's own
// defaults so that an empty config produces the same run the service
// would perform on a bare request.
const (
	// DefaultEpochCount is the default number of training epochs.
	DefaultEpochCount = 50
	// DefaultBatchSize is the default training batch size.
	DefaultBatchSize = 128
	// DefaultMaxSampleCount is the default cap on analyzed samples.
	DefaultMaxSampleCount = 1000
	// DefaultQidThreshold is the QID value (in bits) above which a
	// sample counts as discriminatory.
	DefaultQidThreshold = 0.1
	// DefaultSearchIterationCount is the default number of global
	// search iterations.
	DefaultSearchIterationCount = 100
	// DefaultNeighborCount is the default number of local neighbors
	// explored per search iteration.
	DefaultNeighborCount = 50
	// DefaultExplainInstanceCount is the default number of test
	// instances to explain.
	DefaultExplainInstanceCount = 10
	// DefaultExplainBackgroundCount is the default SHAP background
	// sample cap.
	DefaultExplainBackgroundCount = 100
)

// DefaultHiddenLayerSizes returns the default network architecture.
// This mirrors the analysis service's own fallback architecture.
func DefaultHiddenLayerSizes() []int {
	return []int{64, 32, 16, 8, 4}
}

// RuntimeOptions tunes how much work the analysis service performs per
// stage. All values must be positive; zero values are replaced by the
// defaults in Normalize.
type RuntimeOptions struct {
	// EpochCount is the number of training epochs.
	EpochCount int `json:"epoch_count"`

	// BatchSize is the training batch size.
	BatchSize int `json:"batch_size"`

	// MaxSampleCount caps how many test samples the QID analysis and
	// activation projection consider.
	MaxSampleCount int `json:"max_sample_count"`

	// QidThreshold is the QID value in bits above which a sample is
	// counted as discriminatory.
	QidThreshold float64 `json:"qid_threshold"`

	// SearchIterationCount is the number of global iterations for the
	// discriminatory-pair search.
	SearchIterationCount int `json:"search_iteration_count"`

	// NeighborCount is the number of local neighbors explored per
	// search iteration.
	NeighborCount int `json:"neighbor_count"`

	// ExplainInstanceCount is the number of test instances to explain.
	ExplainInstanceCount int `json:"explain_instance_count"`

	// ExplainBackgroundCount caps the SHAP background sample set.
	ExplainBackgroundCount int `json:"explain_background_count"`
}

// DefaultRuntimeOptions returns runtime options with all defaults applied.
func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{
		EpochCount:             DefaultEpochCount,
		BatchSize:              DefaultBatchSize,
		MaxSampleCount:         DefaultMaxSampleCount,
		QidThreshold:           DefaultQidThreshold,
		SearchIterationCount:   DefaultSearchIterationCount,
		NeighborCount:          DefaultNeighborCount,
		ExplainInstanceCount:   DefaultExplainInstanceCount,
		ExplainBackgroundCount: DefaultExplainBackgroundCount,
	}
}

// Normalize replaces zero or negative values with the defaults.
// It returns the receiver for chaining.
func (o RuntimeOptions) Normalize() RuntimeOptions {
	def := DefaultRuntimeOptions()
	if o.EpochCount <= 0 {
		o.EpochCount = def.EpochCount
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.MaxSampleCount <= 0 {
		o.MaxSampleCount = def.MaxSampleCount
	}
	if o.QidThreshold <= 0 {
		o.QidThreshold = def.QidThreshold
	}
	if o.SearchIterationCount <= 0 {
		o.SearchIterationCount = def.SearchIterationCount
	}
	if o.NeighborCount <= 0 {
		o.NeighborCount = def.NeighborCount
	}
	if o.ExplainInstanceCount <= 0 {
		o.ExplainInstanceCount = def.ExplainInstanceCount
	}
	if o.ExplainBackgroundCount <= 0 {
		o.ExplainBackgroundCount = def.ExplainBackgroundCount
	}
	return o
}

// PipelineRequest carries everything a fairness audit run needs.
// Validate must pass before the request is handed to the pipeline;
// the runner does not re-check these invariants per stage.
type PipelineRequest struct {
	// DatasetPath is the CSV file analyzed by the service. The path is
	// interpreted by the service process, so it must be reachable from
	// the service's working directory.
	DatasetPath string `json:"dataset_path"`

	// LabelField is the prediction target column.
	LabelField string `json:"label_field"`

	// ProtectedFields are the sensitive attribute columns. Order is
	// preserved; duplicates are invalid.
	ProtectedFields []string `json:"protected_fields"`

	// HiddenLayerSizes is the network architecture, outermost first.
	// At least two layers, all sizes positive.
	HiddenLayerSizes []int `json:"hidden_layer_sizes"`

	// Runtime tunes per-stage workloads.
	Runtime RuntimeOptions `json:"runtime"`
}

// Validate checks the request invariants:
// protected columns are a non-empty set disjoint from the label column,
// and the architecture has at least two positive layer sizes.
func (r *PipelineRequest) Validate() error {
	if r.DatasetPath == "" {
		return ErrEmptyDatasetPath
	}
	if r.LabelField == "" {
		return ErrEmptyLabelField
	}
	if len(r.ProtectedFields) == 0 {
		return ErrNoProtectedFields
	}

	seen := make(map[string]bool, len(r.ProtectedFields))
	for _, field := range r.ProtectedFields {
		if field == r.LabelField {
			return ErrProtectedIsLabel
		}
		if seen[field] {
			return ErrDuplicateProtectedField
		}
		seen[field] = true
	}

	if len(r.HiddenLayerSizes) < 2 {
		return ErrTooFewHiddenLayers
	}
	for _, size := range r.HiddenLayerSizes {
		if size <= 0 {
			return ErrNonPositiveHiddenLayer
		}
	}

	return nil
}

// ProtectedValues builds the protected-value probe sent to the QID
// analysis, search, and debug stages: each protected feature index maps
// to the fixed pair [0.0, 1.0] representing the normalized reference
// and comparison groups. The probe is a fixed encoding, not learned
// from data.
//
// The mapping has exactly one entry per index. Keys are the stringified
// feature indices; the service consumes the values in order and ignores
// the key names.
func ProtectedValues(indices []int) map[string][]float64 {
	probe := make(map[string][]float64, len(indices))
	for _, idx := range indices {
		probe[strconv.Itoa(idx)] = []float64{0.0, 1.0}
	}
	return probe
}
