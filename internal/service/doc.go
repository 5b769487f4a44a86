// Package service provides the HTTP client for the fairness analysis server.
//
// The analysis server is a companion process that owns all statistical and
// machine-learning work: it trains the detector network, projects layer
// activations, computes QID metrics, searches for discriminatory instances,
// localizes biased units, and produces SHAP/LIME explanations. This package
// speaks its JSON API and nothing more; result interpretation lives in
// internal/model and orchestration in internal/pipeline.
//
// Design decision: The client carries no retry or per-stage timeout policy
// because:
//  1. Stage deadlines belong to the pipeline runner, which passes them down
//     as context deadlines
//  2. A failed stage aborts the whole run, so retrying inside the transport
//     would mask that policy
//  3. Keeping every method a single request/response exchange makes the
//     error classification in internal/diagnose exact
//
// The two non-stage calls (the liveness probe and the column preview) apply
// their own short timeouts since no stage deadline covers them.
//
// The package is designed to be used with dependency injection - create a
// Client and pass it to the components that need the analysis server rather
// than using global state.
package service
