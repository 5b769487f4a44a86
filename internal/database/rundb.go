package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/fairscan/internal/model"
)

// ErrAmbiguousRunID is returned when a run ID prefix matches more than
// one stored run.
var ErrAmbiguousRunID = errors.New("run id prefix matches multiple runs")

// RunDB provides SQLite-based storage for completed audit runs.
// It manages connection pooling and provides methods for saving and
// querying run history.
//
// Design decision: We store one history file per machine rather than
// one per dataset. This keeps cross-dataset listings and run-to-run
// comparisons in a single relationship query.
type RunDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a RunDB at the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, "fairscan.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("history not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating
	// new files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Close closes the database connection.
func (rdb *RunDB) Close() error {
	return rdb.db.Close()
}

// Path returns the path to the SQLite database file.
func (rdb *RunDB) Path() string {
	return rdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (rdb *RunDB) createTables() error {
	schema := `
	-- Audit runs store complete fairness reports as JSON alongside the
	-- metadata columns that history listings and comparisons query.
	CREATE TABLE IF NOT EXISTS audit_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		dataset_path TEXT NOT NULL,
		dataset_fingerprint TEXT NOT NULL,
		audited_at DATETIME NOT NULL,
		fairness_score INTEGER NOT NULL,
		fairness_status TEXT NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_dataset ON audit_runs(dataset_path);
	CREATE INDEX IF NOT EXISTS idx_runs_audited ON audit_runs(audited_at);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// storedTimeFormat is how audit timestamps are written to SQLite.
// The format sorts lexically, so ORDER BY audited_at works as expected.
const storedTimeFormat = "2006-01-02 15:04:05"

// SaveReport stores a completed audit report.
// Saving the same run ID twice overwrites the stored row, so importing
// an exported snapshot is idempotent.
func (rdb *RunDB) SaveReport(ctx context.Context, report *model.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	query := `
	INSERT INTO audit_runs (run_id, dataset_path, dataset_fingerprint, audited_at, fairness_score, fairness_status, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		dataset_path = excluded.dataset_path,
		dataset_fingerprint = excluded.dataset_fingerprint,
		audited_at = excluded.audited_at,
		fairness_score = excluded.fairness_score,
		fairness_status = excluded.fairness_status,
		report_json = excluded.report_json
	`

	_, err = rdb.db.ExecContext(ctx, query,
		report.RunID,
		report.Dataset.Path,
		report.Dataset.Fingerprint,
		report.DateAudited.UTC().Format(storedTimeFormat),
		report.FairnessScore,
		report.FairnessStatusText,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	return nil
}

// GetReportByRunID retrieves a stored report by its run ID or a unique
// prefix of it. Returns nil without error when no run matches.
func (rdb *RunDB) GetReportByRunID(ctx context.Context, runID string) (*model.Report, error) {
	query := `
	SELECT report_json FROM audit_runs
	WHERE run_id = ? OR run_id LIKE ?
	ORDER BY audited_at DESC, id DESC
	LIMIT 2
	`

	rows, err := rdb.db.QueryContext(ctx, query, runID, runID+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		matches = append(matches, reportJSON)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return decodeReport(matches[0])
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRunID, runID)
	}
}

// GetLatestReport retrieves the most recently audited report.
// An empty datasetPath matches runs for any dataset.
// Returns nil without error when the history is empty.
func (rdb *RunDB) GetLatestReport(ctx context.Context, datasetPath string) (*model.Report, error) {
	query := `
	SELECT report_json FROM audit_runs
	WHERE 1=1
	`
	args := make([]any, 0, 1)

	if datasetPath != "" {
		query += " AND dataset_path = ?"
		args = append(args, datasetPath)
	}
	query += " ORDER BY audited_at DESC, id DESC LIMIT 1"

	var reportJSON string
	err := rdb.db.QueryRowContext(ctx, query, args...).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest report: %w", err)
	}

	return decodeReport(reportJSON)
}

// GetHistory retrieves stored reports newest first.
// An empty datasetPath matches runs for any dataset; a limit of zero
// returns all matching runs. Malformed stored rows are skipped.
func (rdb *RunDB) GetHistory(ctx context.Context, datasetPath string, limit int) ([]*model.Report, error) {
	query := `
	SELECT report_json FROM audit_runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if datasetPath != "" {
		query += " AND dataset_path = ?"
		args = append(args, datasetPath)
	}
	query += " ORDER BY audited_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var reports []*model.Report
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		report, err := decodeReport(reportJSON)
		if err != nil {
			continue // Skip malformed reports
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

// RunMetadata contains summary information about a stored run.
// This is used for displaying run history without loading full reports.
type RunMetadata struct {
	// ID is the unique identifier of the run row in the database.
	ID int64

	// RunID is the run's UUID.
	RunID string

	// DatasetPath is the audited dataset.
	DatasetPath string

	// Fingerprint is the dataset content hash at audit time.
	Fingerprint string

	// AuditedAt is when the run completed, in UTC.
	AuditedAt time.Time

	// FairnessScore is the run's composite score.
	FairnessScore int

	// FairnessStatus is the verdict band text.
	FairnessStatus string
}

// GetHistoryWithMetadata retrieves run metadata newest first.
// This is more efficient than GetHistory when only metadata is needed.
// An empty datasetPath matches runs for any dataset; a limit of zero
// returns all matching runs.
func (rdb *RunDB) GetHistoryWithMetadata(ctx context.Context, datasetPath string, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, run_id, dataset_path, dataset_fingerprint, audited_at, fairness_score, fairness_status
	FROM audit_runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if datasetPath != "" {
		query += " AND dataset_path = ?"
		args = append(args, datasetPath)
	}
	query += " ORDER BY audited_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var auditedAt string

		if err := rows.Scan(
			&meta.ID,
			&meta.RunID,
			&meta.DatasetPath,
			&meta.Fingerprint,
			&auditedAt,
			&meta.FairnessScore,
			&meta.FairnessStatus,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.AuditedAt = parseTimestamp(auditedAt)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// ListAuditedDatasets returns the distinct dataset paths in the history.
func (rdb *RunDB) ListAuditedDatasets(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT dataset_path FROM audit_runs
	ORDER BY dataset_path
	`

	rows, err := rdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []string
	for rows.Next() {
		var dataset string
		if err := rows.Scan(&dataset); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, dataset)
	}

	return datasets, rows.Err()
}

// decodeReport parses a stored report row.
func decodeReport(reportJSON string) (*model.Report, error) {
	var report model.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimeFormat,          // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
