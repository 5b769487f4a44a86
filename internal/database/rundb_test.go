package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/fairscan/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *RunDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// sampleReport builds a minimal completed report for storage tests.
// The metrics yield score 100 and a GOOD verdict.
func sampleReport(t *testing.T, datasetPath string, finishedAt time.Time) *model.Report {
	t.Helper()

	payloads := []any{
		&model.TrainResult{Accuracy: 0.8},
		&model.ActivationsResult{NumSamples: 2},
		&model.QidMetrics{MeanDisparateImpact: 1.0},
		&model.SearchResult{},
		&model.DebugResult{},
		&model.ExplainResult{},
	}

	kinds := model.Stages()
	stages := make([]model.StageResult, 0, model.StageCount)
	for i, payload := range payloads {
		stage, err := model.NewStageResult(kinds[i], 1, payload)
		if err != nil {
			t.Fatalf("build %s stage result: %v", kinds[i], err)
		}
		stages = append(stages, stage)
	}

	req := model.PipelineRequest{
		DatasetPath:      datasetPath,
		LabelField:       "income",
		ProtectedFields:  []string{"sex"},
		HiddenLayerSizes: []int{64, 32},
	}
	dataset := model.DatasetRef{
		Path:        datasetPath,
		Fingerprint: "a3f8c2d1e5b4968706c5d4e3f2a1b0c9d8e7f6a5b4c3d2e1f0a9b8c7d6e5f4a3",
		SizeBytes:   1024,
	}

	report, err := model.BuildReport(req, dataset, "http://127.0.0.1:8765",
		stages, finishedAt.Add(-8*time.Second), finishedAt)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	return report
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		dbPath := filepath.Join(dbDir, "fairscan.db")
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("got path %q, expected %q", db.Path(), dbPath)
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		opts := Options{
			CreateIfNotExists: false,
			EnableWAL:         true,
		}

		_, err := Open(dbDir, opts)
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "history not found") {
			t.Errorf("expected error to mention missing history, got %q", err.Error())
		}

		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		ctx := context.Background()

		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}

		report := sampleReport(t, "/data/adult.csv", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
		if err := db1.SaveReport(ctx, report); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		retrieved, err := db2.GetReportByRunID(ctx, report.RunID)
		if err != nil {
			t.Fatalf("failed to get report: %v", err)
		}
		if retrieved == nil {
			t.Error("expected saved report to persist across reopen")
		}
	})

	t.Run("CreateIfNotExists=false with directory but no db file", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "empty-dir")
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}

		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when directory exists but database file does not")
		}
	})
}

// TestDefaultOptions tests the default options values.
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()

	if !opts.CreateIfNotExists {
		t.Error("expected CreateIfNotExists to be true by default")
	}
	if !opts.EnableWAL {
		t.Error("expected EnableWAL to be true by default")
	}
}

// TestSaveAndGetReport tests report storage and run-ID lookup.
func TestSaveAndGetReport(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	report := sampleReport(t, "/data/adult.csv", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	if err := db.SaveReport(ctx, report); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}

	t.Run("retrieves by full run id", func(t *testing.T) {
		retrieved, err := db.GetReportByRunID(ctx, report.RunID)
		if err != nil {
			t.Fatalf("failed to get report: %v", err)
		}
		if retrieved == nil {
			t.Fatal("expected report, got nil")
		}
		if retrieved.RunID != report.RunID {
			t.Errorf("got run ID %q, expected %q", retrieved.RunID, report.RunID)
		}
		if retrieved.FairnessScore != report.FairnessScore {
			t.Errorf("got score %d, expected %d", retrieved.FairnessScore, report.FairnessScore)
		}
		if retrieved.Qid() == nil {
			t.Error("stored report lost its qid metrics")
		}
	})

	t.Run("retrieves by unique prefix", func(t *testing.T) {
		retrieved, err := db.GetReportByRunID(ctx, report.RunID[:8])
		if err != nil {
			t.Fatalf("failed to get report by prefix: %v", err)
		}
		if retrieved == nil || retrieved.RunID != report.RunID {
			t.Error("prefix lookup did not find the stored run")
		}
	})

	t.Run("returns nil for unknown run id", func(t *testing.T) {
		retrieved, err := db.GetReportByRunID(ctx, "zzzz")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if retrieved != nil {
			t.Error("expected nil for unknown run id")
		}
	})

	t.Run("ambiguous prefix returns error", func(t *testing.T) {
		second := sampleReport(t, "/data/adult.csv", time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))
		if err := db.SaveReport(ctx, second); err != nil {
			t.Fatalf("failed to save second report: %v", err)
		}

		// The empty prefix matches every stored run.
		_, err := db.GetReportByRunID(ctx, "")
		if !errors.Is(err, ErrAmbiguousRunID) {
			t.Errorf("got error %v, expected ErrAmbiguousRunID", err)
		}
	})

	t.Run("saving the same run twice overwrites", func(t *testing.T) {
		if err := db.SaveReport(ctx, report); err != nil {
			t.Fatalf("failed to re-save report: %v", err)
		}

		history, err := db.GetHistoryWithMetadata(ctx, "", 0)
		if err != nil {
			t.Fatalf("failed to get history: %v", err)
		}

		count := 0
		for _, meta := range history {
			if meta.RunID == report.RunID {
				count++
			}
		}
		if count != 1 {
			t.Errorf("got %d rows for run %s, expected 1", count, report.RunID)
		}
	})
}

// TestGetLatestReport tests newest-run retrieval with dataset filtering.
func TestGetLatestReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("returns nil when history is empty", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		retrieved, err := db.GetLatestReport(ctx, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if retrieved != nil {
			t.Error("expected nil for empty history")
		}
	})

	t.Run("returns the newest run and filters by dataset", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		oldAdult := sampleReport(t, "/data/adult.csv", base)
		newAdult := sampleReport(t, "/data/adult.csv", base.Add(time.Hour))
		compas := sampleReport(t, "/data/compas.csv", base.Add(2*time.Hour))
		for _, report := range []*model.Report{oldAdult, newAdult, compas} {
			if err := db.SaveReport(ctx, report); err != nil {
				t.Fatalf("failed to save report: %v", err)
			}
		}

		latest, err := db.GetLatestReport(ctx, "")
		if err != nil {
			t.Fatalf("failed to get latest: %v", err)
		}
		if latest == nil || latest.RunID != compas.RunID {
			t.Error("expected the newest run across datasets")
		}

		latestAdult, err := db.GetLatestReport(ctx, "/data/adult.csv")
		if err != nil {
			t.Fatalf("failed to get latest for dataset: %v", err)
		}
		if latestAdult == nil || latestAdult.RunID != newAdult.RunID {
			t.Error("expected the newest run for the dataset")
		}
	})
}

// TestGetHistory tests full-report history retrieval.
func TestGetHistory(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	reports := []*model.Report{
		sampleReport(t, "/data/adult.csv", base),
		sampleReport(t, "/data/adult.csv", base.Add(time.Hour)),
		sampleReport(t, "/data/adult.csv", base.Add(2*time.Hour)),
	}
	for _, report := range reports {
		if err := db.SaveReport(ctx, report); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
	}

	t.Run("returns newest first", func(t *testing.T) {
		history, err := db.GetHistory(ctx, "/data/adult.csv", 0)
		if err != nil {
			t.Fatalf("failed to get history: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("got %d reports, expected 3", len(history))
		}
		for i, want := range []string{reports[2].RunID, reports[1].RunID, reports[0].RunID} {
			if history[i].RunID != want {
				t.Errorf("position %d holds run %q, expected %q", i, history[i].RunID, want)
			}
		}
	})

	t.Run("honors the limit", func(t *testing.T) {
		history, err := db.GetHistory(ctx, "/data/adult.csv", 2)
		if err != nil {
			t.Fatalf("failed to get history: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("got %d reports, expected 2", len(history))
		}
		if history[0].RunID != reports[2].RunID {
			t.Error("limited history should keep the newest runs")
		}
	})

	t.Run("returns empty list for unknown dataset", func(t *testing.T) {
		history, err := db.GetHistory(ctx, "/data/unknown.csv", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 0 {
			t.Errorf("got %d reports, expected none", len(history))
		}
	})
}

// TestGetHistoryWithMetadata tests metadata-only history retrieval.
func TestGetHistoryWithMetadata(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	adult := sampleReport(t, "/data/adult.csv", base)
	compas := sampleReport(t, "/data/compas.csv", base.Add(time.Hour))
	for _, report := range []*model.Report{adult, compas} {
		if err := db.SaveReport(ctx, report); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
	}

	t.Run("returns populated metadata rows", func(t *testing.T) {
		history, err := db.GetHistoryWithMetadata(ctx, "", 0)
		if err != nil {
			t.Fatalf("failed to get history: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("got %d rows, expected 2", len(history))
		}

		newest := history[0]
		if newest.ID == 0 {
			t.Error("expected non-zero row ID")
		}
		if newest.RunID != compas.RunID {
			t.Errorf("got run %q first, expected the newest", newest.RunID)
		}
		if newest.DatasetPath != "/data/compas.csv" {
			t.Errorf("got dataset %q, expected /data/compas.csv", newest.DatasetPath)
		}
		if newest.Fingerprint == "" {
			t.Error("expected a stored fingerprint")
		}
		if newest.FairnessScore != compas.FairnessScore {
			t.Errorf("got score %d, expected %d", newest.FairnessScore, compas.FairnessScore)
		}
		if newest.FairnessStatus != "GOOD" {
			t.Errorf("got status %q, expected GOOD", newest.FairnessStatus)
		}
		if !newest.AuditedAt.Equal(compas.DateAudited.UTC().Truncate(time.Second)) {
			t.Errorf("got audited at %v, expected %v", newest.AuditedAt, compas.DateAudited)
		}
	})

	t.Run("filters by dataset and honors the limit", func(t *testing.T) {
		history, err := db.GetHistoryWithMetadata(ctx, "/data/adult.csv", 1)
		if err != nil {
			t.Fatalf("failed to get history: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("got %d rows, expected 1", len(history))
		}
		if history[0].RunID != adult.RunID {
			t.Errorf("got run %q, expected %q", history[0].RunID, adult.RunID)
		}
	})

	t.Run("returns empty list for unknown dataset", func(t *testing.T) {
		history, err := db.GetHistoryWithMetadata(ctx, "/data/unknown.csv", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 0 {
			t.Errorf("got %d rows, expected none", len(history))
		}
	})
}

// TestListAuditedDatasets tests distinct dataset listing.
func TestListAuditedDatasets(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, path := range []string{"/data/compas.csv", "/data/adult.csv", "/data/adult.csv"} {
		report := sampleReport(t, path, base.Add(time.Duration(i)*time.Hour))
		if err := db.SaveReport(ctx, report); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
	}

	datasets, err := db.ListAuditedDatasets(ctx)
	if err != nil {
		t.Fatalf("failed to list datasets: %v", err)
	}

	want := []string{"/data/adult.csv", "/data/compas.csv"}
	if len(datasets) != len(want) {
		t.Fatalf("got %d datasets, expected %d", len(datasets), len(want))
	}
	for i := range want {
		if datasets[i] != want[i] {
			t.Errorf("position %d holds %q, expected %q", i, datasets[i], want[i])
		}
	}
}
