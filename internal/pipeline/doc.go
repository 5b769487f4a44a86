// Package pipeline orchestrates the six-stage fairness audit against the
// analysis server.
//
// A run executes the stages in a fixed order: train, activations,
// qid_analysis, search, debug, explain. Each stage stores its typed result
// on the shared Run state, and a later stage's request is built only from
// results of earlier ones, so the ordering is a hard invariant. The Runner
// enforces one timeout ceiling per stage and aborts on the first failure;
// accumulated results are discarded rather than reported partially.
//
// Design decision: We drive the stages through a Runner state machine with
// injected observer callbacks instead of chaining client calls in the CLI
// because:
// 1. The ordering and abort-on-first-failure contract is testable in one place
// 2. Progress and timing emissions stay decoupled from any output surface
// 3. Batch audits can reuse the same machine with fresh state per dataset
//
// The package also provides a BatchAuditor that runs several datasets
// through fresh Runners with bounded concurrency using errgroup.
package pipeline
