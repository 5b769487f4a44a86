package report

import (
	"io"
	"time"

	"github.com/nao1215/fairscan/internal/model"
)

// Writer defines the interface for report output.
// Implementations write audit results in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the full report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.Report) (int, error)

	// WriteSummary outputs only the verdict summary.
	// This is useful for quick results without full details, such as
	// per-dataset lines after a batch audit.
	WriteSummary(summary *Summary) (int, error)
}

// Summary is the compact verdict view of a completed audit run.
type Summary struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// Dataset is the audited file name without directories.
	Dataset string `json:"dataset"`

	// Fingerprint is the dataset content fingerprint, possibly truncated.
	Fingerprint string `json:"fingerprint,omitempty"`

	// DateAudited is when the run completed.
	DateAudited time.Time `json:"date_audited"`

	// Score is the fairness score in [0, 100].
	Score int `json:"score"`

	// Status is the verdict band for Score.
	Status model.FairnessStatus `json:"status"`

	// StatusText is the string form of Status.
	StatusText string `json:"status_text"`

	// MeanQid and MaxQid are the QID aggregates in bits.
	MeanQid float64 `json:"mean_qid"`
	MaxQid  float64 `json:"max_qid"`

	// PctDiscriminatory is the share of flagged samples in percent.
	PctDiscriminatory float64 `json:"percent_discriminatory"`

	// MeanDisparateImpact is the mean disparate impact ratio.
	MeanDisparateImpact float64 `json:"mean_disparate_impact"`

	// TotalElapsedSeconds is the run's wall-clock duration.
	TotalElapsedSeconds int `json:"total_elapsed_seconds"`
}

// NewSummary projects a full report onto its verdict summary.
func NewSummary(report *model.Report) *Summary {
	summary := &Summary{
		RunID:               report.RunID,
		Dataset:             report.Dataset.Base(),
		Fingerprint:         report.Dataset.ShortFingerprint(),
		DateAudited:         report.DateAudited,
		Score:               report.FairnessScore,
		Status:              report.FairnessStatus,
		StatusText:          report.FairnessStatusText,
		TotalElapsedSeconds: report.TotalElapsedSeconds,
	}

	if qid := report.Qid(); qid != nil {
		summary.MeanQid = qid.MeanQid
		summary.MaxQid = qid.MaxQid
		summary.PctDiscriminatory = qid.PctDiscriminatory
		summary.MeanDisparateImpact = qid.MeanDisparateImpact
	}
	return summary
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the verdict summary to all configured Writers.
func (m *MultiWriter) WriteSummary(summary *Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
