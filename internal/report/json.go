package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/fairscan/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because:
// 1. It's part of the standard library (no extra dependencies)
// 2. It's sufficient for our needs
// 3. It provides consistent behavior across Go versions
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = ""
		w.indentString = "  "
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter:   newBaseWriter(output),
		indent:       false,
		indentPrefix: "",
		indentString: "",
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the full report in JSON format.
func (w *JSONWriter) Write(report *model.Report) (int, error) {
	return w.writeJSON(report)
}

// WriteSummary outputs only the verdict summary in JSON format.
func (w *JSONWriter) WriteSummary(summary *Summary) (int, error) {
	return w.writeJSON(summary)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// ExportSnapshot is the export artifact: the full report wrapped with
// generation metadata. Because the report carries every stage payload
// verbatim, decoding a snapshot recovers the run losslessly.
//
// Design decision: We wrap the report rather than adding fields to
// model.Report because this allows output-specific metadata without
// polluting the core data structure.
type ExportSnapshot struct {
	// GeneratedAt is when this snapshot was written, which can be long
	// after the run itself for exports of stored history.
	GeneratedAt time.Time `json:"generated_at"`

	// Report is the complete audit report.
	Report *model.Report `json:"report"`
}

// NewExportSnapshot wraps a report with generation metadata.
func NewExportSnapshot(report *model.Report, generatedAt time.Time) *ExportSnapshot {
	return &ExportSnapshot{
		GeneratedAt: generatedAt,
		Report:      report,
	}
}

// ExportWriter outputs complete export snapshots.
type ExportWriter struct {
	*JSONWriter

	// now supplies the generation timestamp.
	now func() time.Time
}

// NewExportWriter creates a writer for export snapshots.
func NewExportWriter(output io.Writer, opts ...JSONWriterOption) *ExportWriter {
	return &ExportWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		now:        time.Now,
	}
}

// Write outputs the report wrapped as an export snapshot.
func (w *ExportWriter) Write(report *model.Report) (int, error) {
	return w.writeJSON(NewExportSnapshot(report, w.now()))
}
