// Package model defines the core data structures used throughout fairscan.
//
// This package contains the following main types:
//   - PipelineRequest: Validated parameters for a fairness audit run
//   - StageResult: The outcome of one remote analysis stage
//   - Report: The immutable aggregate produced by a completed run
//   - ClassifiedError: The normalized user-facing failure shape
//   - QidMetrics: Discrimination metrics feeding the fairness score
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (pipeline, service, report, database) need
// to use these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output,
// export snapshots, and database storage.
package model
