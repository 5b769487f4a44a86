package service

import (
	"errors"
	"fmt"
)

// Analysis server connectivity errors.
// These errors are returned when there are problems reaching the server at
// all, before any stage request is issued.
//
// Design decision: We define specific error types rather than wrapping all
// errors generically. This allows callers to handle different failure modes
// appropriately (e.g., offer to launch the server when it cannot be reached,
// but fail fast when the port is serving something else).
var (
	// ErrInvalidBaseURL is returned when the base URL is not an absolute
	// http or https URL with a host.
	ErrInvalidBaseURL = errors.New("invalid base URL: expected http(s)://host[:port]")

	// ErrServerWrongService is returned when the base URL responds but does
	// not identify itself as the fairness analysis server. This typically
	// happens when another service is listening on the expected port.
	ErrServerWrongService = errors.New("endpoint is not the fairness analysis server")

	// ErrServerCannotConnect is returned when no TCP connection can be
	// established to the base URL. This usually means the analysis server
	// is not running or the address is wrong.
	ErrServerCannotConnect = errors.New("cannot connect to analysis server")

	// ErrServerTimeout is returned when the liveness probe times out.
	// This may indicate network issues or a server stuck mid-startup.
	ErrServerTimeout = errors.New("timeout connecting to analysis server")
)

// ServerStatus represents the result of probing the analysis server.
// This enum allows for easy status reporting and programmatic handling of
// the different reachability states.
type ServerStatus int

const (
	// ServerStatusOK indicates the server answered the liveness probe and
	// identified itself as the fairness analysis server.
	ServerStatusOK ServerStatus = iota

	// ServerStatusWrongService indicates something answered on the base
	// URL but it is not the analysis server.
	ServerStatusWrongService

	// ServerStatusCannotConnect indicates no connection could be
	// established. The server may not be running or the address may be wrong.
	ServerStatusCannotConnect

	// ServerStatusTimeout indicates the liveness probe timed out.
	ServerStatusTimeout
)

// String returns a human-readable description of the server status.
func (s ServerStatus) String() string {
	switch s {
	case ServerStatusOK:
		return "OK"
	case ServerStatusWrongService:
		return "wrong service (not the analysis server)"
	case ServerStatusCannotConnect:
		return "cannot connect"
	case ServerStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the appropriate error for this status, or nil if OK.
func (s ServerStatus) Error() error {
	switch s {
	case ServerStatusOK:
		return nil
	case ServerStatusWrongService:
		return ErrServerWrongService
	case ServerStatusCannotConnect:
		return ErrServerCannotConnect
	case ServerStatusTimeout:
		return ErrServerTimeout
	default:
		return errors.New("unknown server status")
	}
}

// ServiceError is an HTTP-level failure reported by the analysis server.
// It preserves both the status code and the server-supplied detail text so
// the classification cascade in internal/diagnose can inspect them.
//
// The server reports failures as a JSON object with a single "detail"
// field; decodeServiceError extracts it.
type ServiceError struct {
	// StatusCode is the HTTP status code of the failed response.
	StatusCode int

	// Detail is the server-supplied failure description. It is never
	// empty: when the response body carries no usable detail, the
	// standard status text is substituted.
	Detail string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("analysis server returned %d: %s", e.StatusCode, e.Detail)
}
