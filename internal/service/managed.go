package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Managed server lifecycle errors.
var (
	// ErrServerAlreadyStarted is returned when Start is called on an
	// instance whose process is still running.
	ErrServerAlreadyStarted = errors.New("analysis server is already started")

	// ErrServerStartupTimeout is returned when the launched process never
	// answers the liveness probe within the startup timeout.
	ErrServerStartupTimeout = errors.New("analysis server did not become ready")
)

// Defaults for the managed server lifecycle. Startup covers loading the
// server's ML runtime, which dominates the wait.
const (
	defaultStartupTimeout = 60 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// ManagedServer launches and supervises a local analysis server process.
// It provides automatic startup and shutdown, eliminating the need to
// start the server by hand before an audit.
//
// Design decision: We poll the liveness endpoint rather than parse the
// server's startup log because:
//  1. The probe is the same readiness signal the audit itself relies on
//  2. Log formats change between server versions; the health endpoint is
//     part of the API contract
//  3. It works identically whether the process writes logs or is silenced
type ManagedServer struct {
	// command and args form the server launch command line.
	command string
	args    []string

	// client probes readiness against the server's base URL.
	client *Client

	// startupTimeout is the maximum time to wait for the first
	// successful liveness probe.
	startupTimeout time.Duration

	// pollInterval is the delay between liveness probes.
	pollInterval time.Duration

	// output receives the process's stdout and stderr.
	output io.Writer

	// cmd is the running process; nil when not started.
	cmd *exec.Cmd

	// waitCh delivers the process's exit status exactly once.
	waitCh chan error
}

// ManagedServerOption configures a ManagedServer.
type ManagedServerOption func(*ManagedServer)

// WithStartupTimeout sets the maximum time to wait for the server to
// answer its first liveness probe.
func WithStartupTimeout(timeout time.Duration) ManagedServerOption {
	return func(m *ManagedServer) {
		m.startupTimeout = timeout
	}
}

// WithPollInterval sets the delay between liveness probes during startup.
func WithPollInterval(interval time.Duration) ManagedServerOption {
	return func(m *ManagedServer) {
		m.pollInterval = interval
	}
}

// WithServerOutput directs the server process's stdout and stderr to w.
// By default the output is discarded.
func WithServerOutput(w io.Writer) ManagedServerOption {
	return func(m *ManagedServer) {
		if w != nil {
			m.output = w
		}
	}
}

// NewManagedServer creates a managed server that launches command with
// args and probes readiness through client. Call Start to actually launch
// the process.
//
// The command should exec the server process directly; Stop kills only
// the process it started, not descendants spawned by a wrapper shell.
func NewManagedServer(client *Client, command string, args []string, opts ...ManagedServerOption) *ManagedServer {
	m := &ManagedServer{
		command:        command,
		args:           args,
		client:         client,
		startupTimeout: defaultStartupTimeout,
		pollInterval:   defaultPollInterval,
		output:         io.Discard,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start launches the server process and waits until it answers the
// liveness probe. The process is killed again if it fails to become ready
// in time, exits on its own, or the context is cancelled.
func (m *ManagedServer) Start(ctx context.Context) error {
	if m.cmd != nil {
		return ErrServerAlreadyStarted
	}

	cmd := exec.Command(m.command, m.args...)
	cmd.Stdout = m.output
	cmd.Stderr = m.output

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start analysis server %q: %w", m.command, err)
	}

	// Reap the process exactly once, whether it dies during startup or
	// is stopped later.
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	deadline := time.Now().Add(m.startupTimeout)
	for {
		if m.client.CheckConnection(ctx) == ServerStatusOK {
			m.cmd = cmd
			m.waitCh = waitCh
			return nil
		}

		if time.Now().After(deadline) {
			_ = cmd.Process.Kill() //nolint:errcheck // best effort cleanup
			<-waitCh
			return fmt.Errorf("%w within %s", ErrServerStartupTimeout, m.startupTimeout)
		}

		select {
		case waitErr := <-waitCh:
			if waitErr == nil {
				return errors.New("analysis server exited during startup")
			}
			return fmt.Errorf("analysis server exited during startup: %w", waitErr)
		case <-ctx.Done():
			_ = cmd.Process.Kill() //nolint:errcheck // best effort cleanup
			<-waitCh
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

// Stop terminates the managed server process.
// It's safe to call Stop multiple times or on an unstarted instance.
func (m *ManagedServer) Stop() error {
	if m.cmd == nil {
		return nil
	}

	killErr := m.cmd.Process.Kill()
	// Reap the process; the exit error after a kill carries no signal
	// worth reporting.
	<-m.waitCh
	m.cmd = nil
	m.waitCh = nil

	if killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return fmt.Errorf("stop analysis server: %w", killErr)
	}
	return nil
}

// IsRunning returns true if the managed server process is currently running.
func (m *ManagedServer) IsRunning() bool {
	return m.cmd != nil
}
