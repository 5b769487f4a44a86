package service

import "github.com/nao1215/fairscan/internal/model"

// Request payloads for the analysis server. JSON keys follow the server's
// API exactly; the server applies its own defaults for fields it allows to
// be omitted, so callers should normalize values before building requests
// rather than relying on zero values here.

// TrainRequest asks the server to train the detector network on a dataset.
type TrainRequest struct {
	// FilePath is the CSV path as seen by the server process.
	FilePath string `json:"file_path"`

	// LabelColumn is the prediction target column.
	LabelColumn string `json:"label_column"`

	// SensitiveFeatures are the protected attribute columns.
	SensitiveFeatures []string `json:"sensitive_features"`

	// NumEpochs is the number of training epochs.
	NumEpochs int `json:"num_epochs"`

	// BatchSize is the training batch size.
	BatchSize int `json:"batch_size"`

	// HiddenLayers is the network architecture, outermost first.
	// When omitted the server falls back to its default architecture.
	HiddenLayers []int `json:"hidden_layers,omitempty"`
}

// ActivationsRequest asks for the 2D projection of layer activations.
type ActivationsRequest struct {
	// Method is the reduction method, "pca" or "tsne".
	Method string `json:"method"`

	// MaxSamples caps how many test samples are projected.
	MaxSamples int `json:"max_samples"`
}

// AnalyzeRequest asks for the QID analysis over the test set.
//
// QidThreshold is carried for the server's bookkeeping, but the client
// derives its own aggregates with the same threshold, so the score does
// not depend on the server honoring the field.
type AnalyzeRequest struct {
	// FilePath is the CSV path as seen by the server process.
	FilePath string `json:"file_path"`

	// LabelColumn is the prediction target column.
	LabelColumn string `json:"label_column"`

	// SensitiveFeatures are the protected attribute columns.
	SensitiveFeatures []string `json:"sensitive_features"`

	// ProtectedValues maps stringified protected feature indices to the
	// [0.0, 1.0] counterfactual probe pair.
	ProtectedValues map[string][]float64 `json:"protected_values"`

	// MaxSamples caps how many test samples are analyzed.
	MaxSamples int `json:"max_samples"`

	// QidThreshold is the QID value in bits above which a sample counts
	// as discriminatory.
	QidThreshold float64 `json:"qid_threshold"`
}

// SearchRequest asks for the discriminatory-instance search. The debug
// endpoint accepts the same shape, so Debug reuses this type.
type SearchRequest struct {
	// ProtectedValues maps stringified protected feature indices to the
	// [0.0, 1.0] counterfactual probe pair.
	ProtectedValues map[string][]float64 `json:"protected_values"`

	// NumIterations is the number of global search iterations.
	NumIterations int `json:"num_iterations"`

	// NumNeighbors is the number of local neighbors per iteration.
	NumNeighbors int `json:"num_neighbors"`
}

// ExplainRequest asks for SHAP and/or LIME explanations.
type ExplainRequest struct {
	// Method selects the explainer: "shap", "lime", or "both".
	Method string `json:"method"`

	// NumInstances is the number of test instances to explain.
	NumInstances int `json:"num_instances"`

	// MaxBackground caps the SHAP background sample set.
	MaxBackground int `json:"max_background"`
}

// ColumnsResult is the column preview for a dataset, used before a run to
// validate the label and protected column choices.
type ColumnsResult struct {
	// Status is the server's result marker, "success" on a good response.
	Status string `json:"status"`

	// Columns are the CSV header names in file order.
	Columns []string `json:"columns"`

	// NumColumns is the column count.
	NumColumns int `json:"num_columns"`

	// SampleData holds the first few records keyed by column name.
	// Values are raw cell contents and may be sensitive; log them only
	// through the redacting handler.
	SampleData []map[string]any `json:"sample_data,omitempty"`

	// DetectedSensitive lists columns whose names match the server's
	// sensitive-attribute patterns, for pre-selection hints.
	DetectedSensitive []string `json:"detected_sensitive,omitempty"`
}

// HasColumn reports whether name is one of the dataset's columns.
func (c *ColumnsResult) HasColumn(name string) bool {
	for _, col := range c.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// columnsRequest is the wire form of the column preview request.
type columnsRequest struct {
	FilePath string `json:"file_path"`
}

// healthResponse is the liveness probe's response body.
type healthResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Stage response envelopes. Every stage endpoint wraps its payload under a
// result key; train is the exception and returns its fields flat, so it
// decodes straight into model.TrainResult.
type (
	activationsEnvelope struct {
		Activations model.ActivationsResult `json:"activations"`
	}

	analyzeEnvelope struct {
		QidMetrics model.QidMetrics `json:"qid_metrics"`
	}

	searchEnvelope struct {
		SearchResults model.SearchResult `json:"search_results"`
	}

	debugEnvelope struct {
		LayerAnalysis  model.LayerAnalysis  `json:"layer_analysis"`
		NeuronAnalysis model.NeuronAnalysis `json:"neuron_analysis"`
	}

	explainEnvelope struct {
		Explanations model.ExplainResult `json:"explanations"`
	}
)
