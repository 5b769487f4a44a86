package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Using errors.New() here rather than fmt.Errorf()
// because we don't need to include dynamic values in these messages.
var (
	// ErrNoDataset is returned when no dataset is specified.
	// This error occurs when the audit command receives no CSV arguments.
	ErrNoDataset = errors.New("no dataset specified: provide at least one CSV path")

	// ErrNoServerURL is returned when the analysis service URL is empty.
	// Every audit stage needs a reachable service address.
	ErrNoServerURL = errors.New("server URL cannot be empty")

	// ErrInvalidFormat is returned when the report format is not one of
	// the supported values.
	ErrInvalidFormat = errors.New("invalid report format: must be text, json, or markdown")

	// ErrInvalidConcurrency is returned when the concurrency is not positive.
	// A concurrency of zero would mean no audits run at all.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidStartupTimeout is returned when the server startup
	// timeout is not positive. A zero timeout would declare every
	// launched service dead before its first liveness poll.
	ErrInvalidStartupTimeout = errors.New("invalid server startup timeout: must be positive")

	// ErrInvalidQidThreshold is returned when the QID threshold is negative.
	// Use 0 to fall back to the service default.
	ErrInvalidQidThreshold = errors.New("invalid qid threshold: must be non-negative")

	// ErrInvalidEpochCount is returned when the epoch count is negative.
	// Use 0 to fall back to the service default.
	ErrInvalidEpochCount = errors.New("invalid epoch count: must be non-negative")
)
