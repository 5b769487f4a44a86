package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/fairscan/internal/database"
)

// TestNewExportCmd tests the export command creation.
func TestNewExportCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates export command", func(t *testing.T) {
		t.Parallel()
		cmd := NewExportCmd()
		if cmd == nil {
			t.Fatal("NewExportCmd() returned nil")
		}
		if !strings.HasPrefix(cmd.Use, "export") {
			t.Errorf("unexpected command use: %s", cmd.Use)
		}
	})

	t.Run("has output flag", func(t *testing.T) {
		t.Parallel()
		cmd := NewExportCmd()
		flag := cmd.Flags().Lookup("output")
		if flag == nil {
			t.Fatal("output flag not found")
		}
		if flag.Shorthand != "o" {
			t.Errorf("expected shorthand 'o', got %s", flag.Shorthand)
		}
	})
}

// TestExportRun tests exporting run snapshots.
func TestExportRun(t *testing.T) {
	ctx := context.Background()

	t.Run("exports the latest run to stdout", func(t *testing.T) {
		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		auditReport := sampleAuditReport(t, "/data/adult.csv", time.Now().UTC())
		if err := db.SaveReport(ctx, auditReport); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}

		// Capture stdout
		oldStdout := os.Stdout
		r, w, _ := os.Pipe()
		os.Stdout = w

		err = exportRun(ctx, db, "", "")

		w.Close()
		os.Stdout = oldStdout

		if err != nil {
			t.Fatalf("exportRun() error = %v", err)
		}

		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		r.Close()

		var snapshot map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &snapshot); err != nil {
			t.Fatalf("failed to parse JSON: %v", err)
		}
		if snapshot["generated_at"] == nil {
			t.Error("expected generated_at in snapshot")
		}
		inner, ok := snapshot["report"].(map[string]interface{})
		if !ok {
			t.Fatal("expected report object in snapshot")
		}
		if inner["run_id"] != auditReport.RunID {
			t.Errorf("expected run_id %q, got %v", auditReport.RunID, inner["run_id"])
		}
	})

	t.Run("exports a run by ID prefix to a file", func(t *testing.T) {
		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		auditReport := sampleAuditReport(t, "/data/adult.csv", time.Now().UTC())
		if err := db.SaveReport(ctx, auditReport); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}

		outputPath := filepath.Join(t.TempDir(), "snapshot.json")

		// Capture the confirmation line printed on file output
		oldStdout := os.Stdout
		r, w, _ := os.Pipe()
		os.Stdout = w

		err = exportRun(ctx, db, shortRunID(auditReport.RunID), outputPath)

		w.Close()
		os.Stdout = oldStdout

		if err != nil {
			t.Fatalf("exportRun() error = %v", err)
		}

		var printed bytes.Buffer
		_, _ = printed.ReadFrom(r)
		r.Close()
		if !strings.Contains(printed.String(), "Exported run") {
			t.Errorf("expected confirmation message, got:\n%s", printed.String())
		}

		content, err := os.ReadFile(outputPath)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		var snapshot map[string]interface{}
		if err := json.Unmarshal(content, &snapshot); err != nil {
			t.Fatalf("failed to parse JSON: %v", err)
		}
		inner, ok := snapshot["report"].(map[string]interface{})
		if !ok {
			t.Fatal("expected report object in snapshot")
		}
		if inner["run_id"] != auditReport.RunID {
			t.Errorf("expected run_id %q, got %v", auditReport.RunID, inner["run_id"])
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := db.SaveReport(ctx, sampleAuditReport(t, "/data/adult.csv", time.Now().UTC())); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}

		outputPath := filepath.Join(t.TempDir(), "subdir", "nested", "snapshot.json")

		oldStdout := os.Stdout
		_, w, _ := os.Pipe()
		os.Stdout = w

		err = exportRun(ctx, db, "", outputPath)

		w.Close()
		os.Stdout = oldStdout

		if err != nil {
			t.Fatalf("exportRun() error = %v", err)
		}
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			t.Error("expected output file to be created in nested directory")
		}
	})

	t.Run("snapshot file has owner-only permissions", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("file permissions work differently on Windows")
		}

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := db.SaveReport(ctx, sampleAuditReport(t, "/data/adult.csv", time.Now().UTC())); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}

		outputPath := filepath.Join(t.TempDir(), "snapshot.json")

		oldStdout := os.Stdout
		_, w, _ := os.Pipe()
		os.Stdout = w

		err = exportRun(ctx, db, "", outputPath)

		w.Close()
		os.Stdout = oldStdout

		if err != nil {
			t.Fatalf("exportRun() error = %v", err)
		}

		info, err := os.Stat(outputPath)
		if err != nil {
			t.Fatalf("failed to stat file: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("expected permissions 0600, got %o", perm)
		}
	})

	t.Run("returns error when history is empty", func(t *testing.T) {
		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		err = exportRun(ctx, db, "", "")
		if err == nil {
			t.Fatal("expected error for empty history")
		}
		if !strings.Contains(err.Error(), "no audit history found") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

// TestResolveRun tests run lookup by ID prefix.
func TestResolveRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("returns the latest run for an empty ID", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		older := sampleAuditReport(t, "/data/adult.csv", base)
		newer := sampleAuditReport(t, "/data/adult.csv", base.Add(time.Hour))
		if err := db.SaveReport(ctx, older); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
		if err := db.SaveReport(ctx, newer); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}

		found, err := resolveRun(ctx, db, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found.RunID != newer.RunID {
			t.Errorf("expected latest run %s, got %s", newer.RunID, found.RunID)
		}
	})

	t.Run("returns error for an unknown run ID", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := db.SaveReport(ctx, sampleAuditReport(t, "/data/adult.csv", time.Now().UTC())); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}

		_, err = resolveRun(ctx, db, "zzzzzzzz")
		if err == nil {
			t.Fatal("expected error for unknown run ID")
		}
		if !strings.Contains(err.Error(), "no run found with ID") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("returns error for an ambiguous prefix", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		first := sampleAuditReport(t, "/data/adult.csv", base)
		first.RunID = "aaaa1111-0000-0000-0000-000000000001"
		second := sampleAuditReport(t, "/data/adult.csv", base.Add(time.Hour))
		second.RunID = "aaaa1111-0000-0000-0000-000000000002"
		if err := db.SaveReport(ctx, first); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
		if err := db.SaveReport(ctx, second); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}

		_, err = resolveRun(ctx, db, "aaaa")
		if err == nil {
			t.Fatal("expected error for ambiguous prefix")
		}
		if !strings.Contains(err.Error(), "matches multiple runs") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
