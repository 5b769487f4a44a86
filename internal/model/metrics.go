package model

import (
	"encoding/json"
	"fmt"

	"github.com/montanaflynn/stats"
)

// TrainResult contains the outcome of the training stage.
// It aggregates model quality, architecture, and dataset statistics as
// reported by the analysis service.
type TrainResult struct {
	// Message is the service's human-readable completion message.
	Message string `json:"message,omitempty"`

	// Accuracy is the test-set accuracy as a fraction in [0, 1].
	Accuracy float64 `json:"accuracy"`

	// NumParameters is the trained network's parameter count.
	NumParameters int `json:"num_parameters"`

	// ProtectedFeatures are the protected column names as the service
	// resolved them after preprocessing.
	ProtectedFeatures []string `json:"protected_features,omitempty"`

	// HiddenLayers is the architecture actually used, outermost first.
	HiddenLayers []int `json:"hidden_layers,omitempty"`

	// TrainingHistory summarizes the final epoch of training.
	TrainingHistory TrainingHistory `json:"training_history"`

	// DatasetInfo describes the preprocessed dataset splits.
	DatasetInfo DatasetInfo `json:"dataset_info"`
}

// TrainingHistory summarizes the last training epoch.
type TrainingHistory struct {
	// FinalTrainLoss is the training loss of the last epoch.
	FinalTrainLoss float64 `json:"final_train_loss"`

	// FinalValLoss is the validation loss of the last epoch.
	FinalValLoss float64 `json:"final_val_loss"`

	// FinalTrainAcc is the training accuracy of the last epoch.
	FinalTrainAcc float64 `json:"final_train_acc"`

	// FinalValAcc is the validation accuracy of the last epoch.
	FinalValAcc float64 `json:"final_val_acc"`

	// EpochsTrained is the number of epochs actually run.
	EpochsTrained int `json:"epochs_trained"`
}

// DatasetInfo describes the dataset after preprocessing and splitting.
type DatasetInfo struct {
	// NumFeatures is the width of the processed feature matrix.
	NumFeatures int `json:"num_features"`

	// NumTrain, NumVal, and NumTest are the split sizes.
	NumTrain int `json:"num_train"`
	NumVal   int `json:"num_val"`
	NumTest  int `json:"num_test"`

	// NumTotal is the total sample count across splits.
	NumTotal int `json:"num_total"`

	// ClassDistribution maps class label to training sample count.
	// Keys are stringified class values as serialized by the service.
	ClassDistribution map[string]int `json:"class_distribution,omitempty"`

	// FeatureNames are the processed feature column names in matrix order.
	FeatureNames []string `json:"feature_names,omitempty"`

	// ProtectedAttrInfo maps each protected column name to its position
	// in the feature matrix and its distinct-value count.
	ProtectedAttrInfo map[string]ProtectedAttrInfo `json:"protected_attr_info,omitempty"`
}

// ProtectedAttrInfo locates one protected attribute in the feature matrix.
type ProtectedAttrInfo struct {
	// Index is the attribute's column index in the feature matrix.
	Index int `json:"index"`

	// NumUniqueValues is the count of distinct values observed.
	NumUniqueValues int `json:"num_unique_values"`
}

// ProtectedIndices resolves the feature-matrix index of each requested
// protected field, preserving the request order. Fields the service did
// not report fall back to their position in the request, so the result
// always has exactly len(fields) entries.
func (t *TrainResult) ProtectedIndices(fields []string) []int {
	indices := make([]int, 0, len(fields))
	for pos, field := range fields {
		if info, ok := t.DatasetInfo.ProtectedAttrInfo[field]; ok {
			indices = append(indices, info.Index)
			continue
		}
		indices = append(indices, pos)
	}
	return indices
}

// Summary returns a one-line human-readable result for progress output.
func (t *TrainResult) Summary() string {
	return fmt.Sprintf("accuracy %.1f%% (%d parameters, %d epochs)",
		t.Accuracy*100, t.NumParameters, t.TrainingHistory.EpochsTrained)
}

// ActivationsResult contains the 2D-projected layer activations used
// for internal-space visualization.
type ActivationsResult struct {
	// Layers holds one projection per network layer.
	Layers []ActivationLayer `json:"layers"`

	// Labels are the class labels of the projected samples.
	Labels []float64 `json:"labels,omitempty"`

	// Protected are the protected-attribute values of the samples,
	// used for group coloring.
	Protected []float64 `json:"protected,omitempty"`

	// Method is the reduction method used ("pca" or "tsne").
	Method string `json:"method"`

	// NumSamples is the number of samples projected.
	NumSamples int `json:"num_samples"`
}

// ActivationLayer is one layer's activations reduced to 2D coordinates.
type ActivationLayer struct {
	// LayerIdx is the zero-based layer position.
	LayerIdx int `json:"layer_idx"`

	// LayerName is the service's display name for the layer.
	LayerName string `json:"layer_name"`

	// X and Y are the projected coordinates, parallel slices.
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Summary returns a one-line human-readable result for progress output.
func (a *ActivationsResult) Summary() string {
	return fmt.Sprintf("%d layers projected over %d samples (%s)",
		len(a.Layers), a.NumSamples, a.Method)
}

// QidMetrics contains the quantitative individual discrimination
// analysis. The four aggregate fields are the fairness score inputs.
//
// The service reports per-sample arrays; DeriveAggregates recomputes the
// aggregates from them so the score never depends on which service
// version produced the payload.
type QidMetrics struct {
	// QidScores are the per-sample QID values in bits.
	QidScores []float64 `json:"qid_scores,omitempty"`

	// DisparateImpactRatios are the per-sample disparate impact ratios.
	DisparateImpactRatios []float64 `json:"disparate_impact_ratios,omitempty"`

	// NumAnalyzed is the number of samples analyzed.
	NumAnalyzed int `json:"num_analyzed"`

	// NumDiscriminatory is the number of samples whose QID exceeded
	// the configured threshold.
	NumDiscriminatory int `json:"num_discriminatory"`

	// MeanQid is the mean per-sample QID in bits.
	MeanQid float64 `json:"mean_qid"`

	// MaxQid is the worst per-sample QID in bits.
	MaxQid float64 `json:"max_qid"`

	// PctDiscriminatory is the share of analyzed samples flagged
	// discriminatory, in percent (0 to 100).
	PctDiscriminatory float64 `json:"percent_discriminatory"`

	// MeanDisparateImpact is the mean disparate impact ratio. Values
	// below 0.8 violate the four-fifths rule.
	MeanDisparateImpact float64 `json:"mean_disparate_impact"`
}

// DeriveAggregates fills the aggregate fields from the per-sample
// arrays. Service-provided aggregates are kept only when the matching
// sample array is absent. The threshold decides which samples count as
// discriminatory.
func (q *QidMetrics) DeriveAggregates(threshold float64) {
	if len(q.QidScores) > 0 {
		data := stats.Float64Data(q.QidScores)
		if mean, err := stats.Mean(data); err == nil {
			q.MeanQid = mean
		}
		if maxVal, err := stats.Max(data); err == nil {
			q.MaxQid = maxVal
		}

		discriminatory := 0
		for _, score := range q.QidScores {
			if score > threshold {
				discriminatory++
			}
		}
		q.NumAnalyzed = len(q.QidScores)
		q.NumDiscriminatory = discriminatory
		q.PctDiscriminatory = 100 * float64(discriminatory) / float64(len(q.QidScores))
	}

	if len(q.DisparateImpactRatios) > 0 {
		if mean, err := stats.Mean(stats.Float64Data(q.DisparateImpactRatios)); err == nil {
			q.MeanDisparateImpact = mean
		}
	}
}

// Score computes the fairness score from the aggregates.
// DeriveAggregates should run first when per-sample arrays are present.
func (q *QidMetrics) Score() int {
	return FairnessScore(q.MeanQid, q.MaxQid, q.PctDiscriminatory, q.MeanDisparateImpact)
}

// Summary returns a one-line human-readable result for progress output.
func (q *QidMetrics) Summary() string {
	return fmt.Sprintf("mean QID %.3f bits, %d of %d samples discriminatory",
		q.MeanQid, q.NumDiscriminatory, q.NumAnalyzed)
}

// SearchResult contains the discriminatory-pair search outcome.
type SearchResult struct {
	// NumIterations is the number of global iterations the search ran.
	NumIterations int `json:"num_iterations"`

	// NumDiscriminatory is the number of discriminatory instances found.
	NumDiscriminatory int `json:"num_discriminatory"`

	// MaxQidFound is the highest QID among found instances.
	MaxQidFound float64 `json:"max_qid_found"`

	// DiscriminatoryInstances lists the found instances.
	DiscriminatoryInstances []DiscriminatoryInstance `json:"discriminatory_instances,omitempty"`
}

// DiscriminatoryInstance is one discriminatory sample found by the search.
type DiscriminatoryInstance struct {
	// InstanceIdx is the sample's index in the service's test set.
	InstanceIdx int `json:"instance_idx"`

	// Qid is the instance's QID in bits.
	Qid float64 `json:"qid"`
}

// Found returns the discriminatory instance count, preferring the
// explicit counter and falling back to the instance list length.
func (s *SearchResult) Found() int {
	if s.NumDiscriminatory > 0 {
		return s.NumDiscriminatory
	}
	return len(s.DiscriminatoryInstances)
}

// Summary returns a one-line human-readable result for progress output.
func (s *SearchResult) Summary() string {
	return fmt.Sprintf("%d discriminatory instances found in %d iterations",
		s.Found(), s.NumIterations)
}

// DebugResult contains the causal debugging outcome: which layer and
// which neurons carry the discrimination signal.
type DebugResult struct {
	// LayerAnalysis localizes the most biased layer.
	LayerAnalysis LayerAnalysis `json:"layer_analysis"`

	// NeuronAnalysis localizes the most biased neurons within it.
	NeuronAnalysis NeuronAnalysis `json:"neuron_analysis"`
}

// LayerAnalysis contains per-layer causal effects and the biased layer.
type LayerAnalysis struct {
	// Layers holds the causal effect measured for each layer.
	Layers []LayerEffect `json:"layers,omitempty"`

	// BiasedLayer is the layer with the strongest causal effect.
	BiasedLayer LayerEffect `json:"biased_layer"`

	// NumInstancesUsed is how many discriminatory instances the
	// intervention used.
	NumInstancesUsed int `json:"num_instances_used,omitempty"`
}

// LayerEffect is the measured causal effect of one layer.
type LayerEffect struct {
	// LayerIdx is the zero-based layer position.
	LayerIdx int `json:"layer_idx"`

	// LayerName is the service's display name for the layer.
	LayerName string `json:"layer_name,omitempty"`

	// CausalEffect is the measured effect magnitude.
	CausalEffect float64 `json:"causal_effect"`
}

// NeuronAnalysis contains per-neuron causal effects within the biased layer.
type NeuronAnalysis struct {
	// LayerIdx is the analyzed layer's zero-based position.
	LayerIdx int `json:"layer_idx"`

	// Neurons holds the causal effect measured for each neuron.
	Neurons []NeuronEffect `json:"neurons,omitempty"`

	// TopNeurons lists the most biased neuron indices, strongest first.
	TopNeurons []int `json:"top_neurons,omitempty"`
}

// NeuronEffect is the measured causal effect of one neuron.
type NeuronEffect struct {
	// NeuronIdx is the neuron's index within its layer.
	NeuronIdx int `json:"neuron_idx"`

	// CausalEffect is the measured effect magnitude.
	CausalEffect float64 `json:"causal_effect"`
}

// Summary returns a one-line human-readable result for progress output.
func (d *DebugResult) Summary() string {
	layer := d.LayerAnalysis.BiasedLayer.LayerName
	if layer == "" {
		layer = fmt.Sprintf("layer %d", d.LayerAnalysis.BiasedLayer.LayerIdx)
	}
	return fmt.Sprintf("bias localized to %s (%d neurons ranked)",
		layer, len(d.NeuronAnalysis.Neurons))
}

// ExplainResult contains SHAP and LIME attributions. Either part may be
// absent when the run requested a single method.
type ExplainResult struct {
	// Shap holds the kernel SHAP summary when computed.
	Shap *ShapSummary `json:"shap,omitempty"`

	// Lime holds the LIME summary when computed.
	Lime *LimeSummary `json:"lime,omitempty"`
}

// ShapSummary contains kernel SHAP attributions over explained instances.
type ShapSummary struct {
	// ShapValues holds per-instance, per-feature attributions.
	ShapValues [][]float64 `json:"shap_values,omitempty"`

	// GlobalImportance is the mean absolute attribution per feature.
	GlobalImportance []float64 `json:"global_importance"`

	// FeatureNames are the feature names, parallel to GlobalImportance.
	FeatureNames []string `json:"feature_names"`

	// BaseValue is the expected model margin on the background set.
	BaseValue float64 `json:"base_value"`

	// NumExplained is the number of instances explained.
	NumExplained int `json:"num_explained"`

	// FeatureValues are the raw feature values of explained instances.
	FeatureValues [][]float64 `json:"feature_values,omitempty"`
}

// LimeSummary contains LIME explanations over explained instances.
type LimeSummary struct {
	// Explanations holds one local explanation per instance.
	Explanations []LimeExplanation `json:"explanations,omitempty"`

	// AggregatedImportance is the mean absolute local weight per
	// feature, parallel to FeatureNames.
	AggregatedImportance []float64 `json:"aggregated_importance"`

	// FeatureNames are the feature names, parallel to AggregatedImportance.
	FeatureNames []string `json:"feature_names"`

	// NumExplained is the number of instances explained.
	NumExplained int `json:"num_explained"`
}

// LimeExplanation is one instance's local explanation.
type LimeExplanation struct {
	// InstanceIdx is the explained instance's index.
	InstanceIdx int `json:"instance_idx"`

	// FeatureWeights are the local (condition, weight) pairs.
	FeatureWeights []LimeFeatureWeight `json:"feature_weights,omitempty"`

	// PredictionProba are the class probabilities for the instance.
	PredictionProba []float64 `json:"prediction_proba,omitempty"`
}

// LimeFeatureWeight is one (condition, weight) pair of a local
// explanation. The service serializes it as a two-element array like
// ["age <= 0.32", 0.041], so the type carries custom JSON codecs.
type LimeFeatureWeight struct {
	// Condition is the discretized feature condition.
	Condition string

	// Weight is the local attribution weight.
	Weight float64
}

// MarshalJSON encodes the pair in the service's array form.
func (w LimeFeatureWeight) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{w.Condition, w.Weight})
}

// UnmarshalJSON decodes the service's two-element array form.
func (w *LimeFeatureWeight) UnmarshalJSON(data []byte) error {
	var pair []any
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode lime feature weight: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("lime feature weight has %d elements, want 2", len(pair))
	}

	condition, ok := pair[0].(string)
	if !ok {
		return fmt.Errorf("lime feature weight condition is %T, want string", pair[0])
	}
	weight, ok := pair[1].(float64)
	if !ok {
		return fmt.Errorf("lime feature weight value is %T, want number", pair[1])
	}

	w.Condition = condition
	w.Weight = weight
	return nil
}

// GlobalImportance returns the preferred global feature importances:
// SHAP when available, otherwise LIME's aggregate, otherwise nil.
// The returned names and values are parallel slices.
func (e *ExplainResult) GlobalImportance() (names []string, values []float64) {
	if e.Shap != nil && len(e.Shap.GlobalImportance) > 0 {
		return e.Shap.FeatureNames, e.Shap.GlobalImportance
	}
	if e.Lime != nil && len(e.Lime.AggregatedImportance) > 0 {
		return e.Lime.FeatureNames, e.Lime.AggregatedImportance
	}
	return nil, nil
}

// Summary returns a one-line human-readable result for progress output.
func (e *ExplainResult) Summary() string {
	methods := 0
	explained := 0
	if e.Shap != nil {
		methods++
		explained = e.Shap.NumExplained
	}
	if e.Lime != nil {
		methods++
		if e.Lime.NumExplained > explained {
			explained = e.Lime.NumExplained
		}
	}
	return fmt.Sprintf("%d instances explained by %d methods", explained, methods)
}
