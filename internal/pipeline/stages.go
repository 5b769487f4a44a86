package pipeline

import (
	"context"

	"github.com/nao1215/fairscan/internal/model"
	"github.com/nao1215/fairscan/internal/service"
)

// The analysis server supports "pca" and "tsne" activation projections
// and can run the SHAP or LIME explainer alone. Audits always project
// with PCA and request both explainers.
const (
	activationsMethod = "pca"
	explainMethod     = "both"
)

// defaultStages returns the six stages wired to the client, in
// execution order.
func defaultStages(client *service.Client) []Stage {
	return []Stage{
		NewTrainStage(client),
		NewActivationsStage(client),
		NewQidAnalysisStage(client),
		NewSearchStage(client),
		NewDebugStage(client),
		NewExplainStage(client),
	}
}

// TrainStage trains the fairness detector network on the dataset.
// Every later stage operates on the model this stage builds, so it is
// always first.
type TrainStage struct {
	client *service.Client
}

// NewTrainStage creates the training stage.
func NewTrainStage(client *service.Client) *TrainStage {
	return &TrainStage{client: client}
}

// Kind returns the stage kind.
func (s *TrainStage) Kind() model.StageKind {
	return model.StageTrain
}

// Run trains the network and derives the counterfactual probe later
// stages send: each protected feature index maps to the fixed pair
// [0.0, 1.0]. Indices come from the server's protected_attr_info, with
// a positional fallback for fields the server did not report.
func (s *TrainStage) Run(ctx context.Context, run *Run) error {
	result, err := s.client.Train(ctx, service.TrainRequest{
		FilePath:          run.Request.DatasetPath,
		LabelColumn:       run.Request.LabelField,
		SensitiveFeatures: run.Request.ProtectedFields,
		NumEpochs:         run.Request.Runtime.EpochCount,
		BatchSize:         run.Request.Runtime.BatchSize,
		HiddenLayers:      run.Request.HiddenLayerSizes,
	})
	if err != nil {
		return err
	}

	run.Train = result
	run.ProtectedValues = model.ProtectedValues(
		result.ProtectedIndices(run.Request.ProtectedFields))
	return nil
}

// ActivationsStage projects intermediate layer activations to 2D for
// internal-space visualization.
type ActivationsStage struct {
	client *service.Client
}

// NewActivationsStage creates the activation projection stage.
func NewActivationsStage(client *service.Client) *ActivationsStage {
	return &ActivationsStage{client: client}
}

// Kind returns the stage kind.
func (s *ActivationsStage) Kind() model.StageKind {
	return model.StageActivations
}

// Run executes the activation projection stage.
func (s *ActivationsStage) Run(ctx context.Context, run *Run) error {
	result, err := s.client.Activations(ctx, service.ActivationsRequest{
		Method:     activationsMethod,
		MaxSamples: run.Request.Runtime.MaxSampleCount,
	})
	if err != nil {
		return err
	}

	run.Activations = result
	return nil
}

// QidAnalysisStage computes the per-sample discrimination metrics whose
// aggregates feed the fairness score.
type QidAnalysisStage struct {
	client *service.Client
}

// NewQidAnalysisStage creates the QID analysis stage.
func NewQidAnalysisStage(client *service.Client) *QidAnalysisStage {
	return &QidAnalysisStage{client: client}
}

// Kind returns the stage kind.
func (s *QidAnalysisStage) Kind() model.StageKind {
	return model.StageQidAnalysis
}

// Run executes the QID analysis stage. Aggregates are derived
// client-side from the per-sample arrays with the same threshold sent
// to the server, so the score does not depend on the server's own
// aggregation.
func (s *QidAnalysisStage) Run(ctx context.Context, run *Run) error {
	metrics, err := s.client.Analyze(ctx, service.AnalyzeRequest{
		FilePath:          run.Request.DatasetPath,
		LabelColumn:       run.Request.LabelField,
		SensitiveFeatures: run.Request.ProtectedFields,
		ProtectedValues:   run.ProtectedValues,
		MaxSamples:        run.Request.Runtime.MaxSampleCount,
		QidThreshold:      run.Request.Runtime.QidThreshold,
	})
	if err != nil {
		return err
	}

	metrics.DeriveAggregates(run.Request.Runtime.QidThreshold)
	run.Qid = metrics
	return nil
}

// SearchStage runs the gradient-guided search for discriminatory
// instance pairs.
type SearchStage struct {
	client *service.Client
}

// NewSearchStage creates the discriminatory-pair search stage.
func NewSearchStage(client *service.Client) *SearchStage {
	return &SearchStage{client: client}
}

// Kind returns the stage kind.
func (s *SearchStage) Kind() model.StageKind {
	return model.StageSearch
}

// Run executes the search stage.
func (s *SearchStage) Run(ctx context.Context, run *Run) error {
	result, err := s.client.Search(ctx, service.SearchRequest{
		ProtectedValues: run.ProtectedValues,
		NumIterations:   run.Request.Runtime.SearchIterationCount,
		NumNeighbors:    run.Request.Runtime.NeighborCount,
	})
	if err != nil {
		return err
	}

	run.Search = result
	return nil
}

// DebugStage localizes the most biased layer and neurons via causal
// interventions.
type DebugStage struct {
	client *service.Client
}

// NewDebugStage creates the causal debugging stage.
func NewDebugStage(client *service.Client) *DebugStage {
	return &DebugStage{client: client}
}

// Kind returns the stage kind.
func (s *DebugStage) Kind() model.StageKind {
	return model.StageDebug
}

// Run executes the debugging stage. The server's debug endpoint accepts
// the same request shape as search.
func (s *DebugStage) Run(ctx context.Context, run *Run) error {
	result, err := s.client.Debug(ctx, service.SearchRequest{
		ProtectedValues: run.ProtectedValues,
		NumIterations:   run.Request.Runtime.SearchIterationCount,
		NumNeighbors:    run.Request.Runtime.NeighborCount,
	})
	if err != nil {
		return err
	}

	run.Debug = result
	return nil
}

// ExplainStage computes SHAP and LIME feature attributions. This is
// always the last stage; its completion marks the run's finish time.
type ExplainStage struct {
	client *service.Client
}

// NewExplainStage creates the explanation stage.
func NewExplainStage(client *service.Client) *ExplainStage {
	return &ExplainStage{client: client}
}

// Kind returns the stage kind.
func (s *ExplainStage) Kind() model.StageKind {
	return model.StageExplain
}

// Run executes the explanation stage.
func (s *ExplainStage) Run(ctx context.Context, run *Run) error {
	result, err := s.client.Explain(ctx, service.ExplainRequest{
		Method:        explainMethod,
		NumInstances:  run.Request.Runtime.ExplainInstanceCount,
		MaxBackground: run.Request.Runtime.ExplainBackgroundCount,
	})
	if err != nil {
		return err
	}

	run.Explain = result
	return nil
}
