package service

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"
)

// skipWithoutPOSIX skips tests that exec POSIX commands like sleep.
func skipWithoutPOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("managed server tests exec POSIX commands")
	}
}

// unreachableClient returns a client whose base URL is guaranteed not to
// answer, by binding a test server and closing it again.
func unreachableClient(t *testing.T) *Client {
	t.Helper()

	srv := httptest.NewServer(healthHandler())
	addr := srv.URL
	srv.Close()

	client, err := NewClient(addr)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

// TestNewManagedServer tests construction and option application.
func TestNewManagedServer(t *testing.T) {
	t.Parallel()

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient(DefaultBaseURL)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		m := NewManagedServer(client, "python3", []string{"server.py"})
		if m.startupTimeout != defaultStartupTimeout {
			t.Errorf("startupTimeout = %v, expected %v", m.startupTimeout, defaultStartupTimeout)
		}
		if m.pollInterval != defaultPollInterval {
			t.Errorf("pollInterval = %v, expected %v", m.pollInterval, defaultPollInterval)
		}
		if m.output == nil {
			t.Error("expected a non-nil default output")
		}
		if m.IsRunning() {
			t.Error("expected a new managed server not to be running")
		}
	})

	t.Run("applies options", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient(DefaultBaseURL)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		var buf strings.Builder
		m := NewManagedServer(client, "python3", nil,
			WithStartupTimeout(5*time.Second),
			WithPollInterval(20*time.Millisecond),
			WithServerOutput(&buf),
		)
		if m.startupTimeout != 5*time.Second {
			t.Errorf("startupTimeout = %v, expected 5s", m.startupTimeout)
		}
		if m.pollInterval != 20*time.Millisecond {
			t.Errorf("pollInterval = %v, expected 20ms", m.pollInterval)
		}
		if m.output != &buf {
			t.Error("expected the custom output writer to be installed")
		}
	})

	t.Run("nil output keeps the default", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient(DefaultBaseURL)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		m := NewManagedServer(client, "python3", nil, WithServerOutput(nil))
		if m.output != io.Discard {
			t.Error("expected the default output to be kept")
		}
	})
}

// TestManagedServerStart tests the launch and readiness-poll loop.
func TestManagedServerStart(t *testing.T) {
	t.Parallel()
	skipWithoutPOSIX(t)

	t.Run("becomes ready when the probe succeeds", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, healthHandler())
		m := NewManagedServer(client, "sleep", []string{"30"},
			WithStartupTimeout(5*time.Second),
			WithPollInterval(10*time.Millisecond),
		)
		t.Cleanup(func() { _ = m.Stop() })

		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !m.IsRunning() {
			t.Error("expected the managed server to be running")
		}

		if err := m.Stop(); err != nil {
			t.Errorf("unexpected stop error: %v", err)
		}
		if m.IsRunning() {
			t.Error("expected the managed server to be stopped")
		}
	})

	t.Run("reports a process that exits during startup", func(t *testing.T) {
		t.Parallel()

		m := NewManagedServer(unreachableClient(t), "true", nil,
			WithStartupTimeout(5*time.Second),
			WithPollInterval(10*time.Millisecond),
		)

		err := m.Start(context.Background())
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "exited during startup") {
			t.Errorf("error = %v, expected an exit-during-startup report", err)
		}
		if m.IsRunning() {
			t.Error("expected the managed server not to be running")
		}
	})

	t.Run("fails when the server never becomes ready", func(t *testing.T) {
		t.Parallel()

		m := NewManagedServer(unreachableClient(t), "sleep", []string{"30"},
			WithStartupTimeout(50*time.Millisecond),
			WithPollInterval(10*time.Millisecond),
		)

		err := m.Start(context.Background())
		if !errors.Is(err, ErrServerStartupTimeout) {
			t.Errorf("expected ErrServerStartupTimeout, got %v", err)
		}
		if m.IsRunning() {
			t.Error("expected the managed server not to be running")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		m := NewManagedServer(unreachableClient(t), "sleep", []string{"30"},
			WithStartupTimeout(5*time.Second),
			WithPollInterval(10*time.Millisecond),
		)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := m.Start(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if m.IsRunning() {
			t.Error("expected the managed server not to be running")
		}
	})

	t.Run("rejects a second start", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, healthHandler())
		m := NewManagedServer(client, "sleep", []string{"30"},
			WithStartupTimeout(5*time.Second),
			WithPollInterval(10*time.Millisecond),
		)
		t.Cleanup(func() { _ = m.Stop() })

		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := m.Start(context.Background()); !errors.Is(err, ErrServerAlreadyStarted) {
			t.Errorf("expected ErrServerAlreadyStarted, got %v", err)
		}
	})

	t.Run("start fails for a missing command", func(t *testing.T) {
		t.Parallel()

		m := NewManagedServer(unreachableClient(t), "/nonexistent/fairness-server", nil)
		if err := m.Start(context.Background()); err == nil {
			t.Error("expected error for a missing command")
		}
		if m.IsRunning() {
			t.Error("expected the managed server not to be running")
		}
	})
}

// TestManagedServerStop tests the shutdown path.
func TestManagedServerStop(t *testing.T) {
	t.Parallel()

	t.Run("stop on an unstarted instance is a no-op", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient(DefaultBaseURL)
		if err != nil {
			t.Fatalf("failed to create client: %v", err)
		}

		m := NewManagedServer(client, "python3", nil)
		if err := m.Stop(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		t.Parallel()
		skipWithoutPOSIX(t)

		client := newTestClient(t, healthHandler())
		m := NewManagedServer(client, "sleep", []string{"30"},
			WithStartupTimeout(5*time.Second),
			WithPollInterval(10*time.Millisecond),
		)

		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := m.Stop(); err != nil {
			t.Errorf("first stop: unexpected error: %v", err)
		}
		if err := m.Stop(); err != nil {
			t.Errorf("second stop: unexpected error: %v", err)
		}
	})
}
