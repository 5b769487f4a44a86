package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// sampleKeys contains attribute keys that always carry raw dataset
// values. Audit datasets hold personal records, so values under these
// keys should not appear in logs.
var sampleKeys = map[string]bool{
	// Raw dataset rows
	"sample":      true,
	"sample_data": true,
	"sample_row":  true,
	"row":         true,
	"record":      true,

	// Individual cell values
	"cell":       true,
	"cell_value": true,

	// Preview payloads from the column inspection endpoint
	"preview":      true,
	"data_preview": true,
}

// sampleValuePatterns contains regex patterns that indicate raw dataset
// content. Values matching these patterns will be masked regardless of
// key name.
var sampleValuePatterns = []*regexp.Regexp{
	// Comma-separated records with four or more fields
	regexp.MustCompile(`^[^,\n]+(?:,[^,\n]+){3,}$`),

	// Tab-separated records with four or more fields
	regexp.MustCompile(`^[^\t\n]+(?:\t[^\t\n]+){3,}$`),
}

// MaskValue is the string used to replace masked values.
const MaskValue = "***REDACTED***"

// RedactHandler wraps an slog.Handler to mask raw dataset values.
// It intercepts log records and masks attribute values that name or
// resemble dataset samples before passing them to the underlying
// handler.
//
// Design decision: We use a handler wrapper rather than a custom logger
// because:
//  1. It integrates seamlessly with standard slog APIs
//  2. It works with any underlying handler (text, JSON, etc.)
//  3. It composes with slog.SetDefault so every package inherits masking
type RedactHandler struct {
	// handler is the underlying slog handler that receives masked records.
	handler slog.Handler

	// allowed holds lowercase attribute keys exempted from masking.
	allowed map[string]bool
}

// RedactHandlerOption configures a RedactHandler.
type RedactHandlerOption func(*RedactHandler)

// WithAllowedKeys exempts the given attribute keys from masking.
// Use it when a key that normally carries dataset values is known to
// hold derived, non-identifying data in a specific logger.
func WithAllowedKeys(keys ...string) RedactHandlerOption {
	return func(h *RedactHandler) {
		for _, key := range keys {
			h.allowed[strings.ToLower(key)] = true
		}
	}
}

// NewRedactHandler creates a new RedactHandler wrapping the given handler.
// All log attributes will be inspected before being passed to the underlying
// handler. If handler is nil, the returned RedactHandler will use
// slog.Default().Handler().
func NewRedactHandler(handler slog.Handler, opts ...RedactHandlerOption) *RedactHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	h := &RedactHandler{
		handler: handler,
		allowed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enabled reports whether the handler handles records at the given level.
// It delegates to the underlying handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks the record's attributes and passes it to the underlying handler.
func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	// Create a new record with masked attributes
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	// Mask each attribute
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(h.maskAttr(a))
		return true
	})

	return h.handler.Handle(ctx, masked)
}

// WithAttrs returns a new handler with the given attributes added.
// Attributes are masked before being added.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		maskedAttrs[i] = h.maskAttr(a)
	}
	return &RedactHandler{handler: h.handler.WithAttrs(maskedAttrs), allowed: h.allowed}
}

// WithGroup returns a new handler with the given group name.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{handler: h.handler.WithGroup(name), allowed: h.allowed}
}

// maskAttr masks a single attribute, recursively handling groups.
func (h *RedactHandler) maskAttr(a slog.Attr) slog.Attr {
	// Handle groups recursively
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		maskedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			maskedAttrs[i] = h.maskAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(maskedAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	if h.allowed[keyLower] {
		return a
	}

	// Check if the key names raw dataset content
	if sampleKeys[keyLower] || containsSampleKeyword(keyLower) {
		return slog.String(a.Key, MaskValue)
	}

	// Check if the value looks like a raw record
	if a.Value.Kind() == slog.KindString {
		if isSampleValue(a.Value.String()) {
			return slog.String(a.Key, MaskValue)
		}
	}

	return a
}

// containsSampleKeyword checks if the key refers to raw dataset content.
// Note: Keys that carry sizes or caps rather than data are excluded to
// avoid false positives ("num_samples", "max_samples", "sample_count"
// are record counts, and "cancelled" contains "cell"). The bare "row"
// keyword is also excluded ("browser", "thrown"); the exact key is
// covered by the sampleKeys map.
func containsSampleKeyword(key string) bool {
	countMarkers := []string{"num", "count", "max", "size", "total", "limit", "cancel"}
	for _, marker := range countMarkers {
		if strings.Contains(key, marker) {
			return false
		}
	}

	sampleKeywords := []string{"sample", "cell", "preview"}
	for _, keyword := range sampleKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

// isSampleValue checks if a value looks like a raw delimited record.
func isSampleValue(value string) bool {
	for _, pattern := range sampleValuePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// NewRedactLogger creates a new slog.Logger with dataset-value masking.
// The logger masks raw sample values in all log output.
//
// Parameters:
//   - w: The io.Writer to write log output to (typically os.Stderr)
//   - verbose: If true, sets log level to Debug; otherwise Warn
//
// Returns a *slog.Logger that can be used with slog.SetDefault() or passed
// to components that accept *slog.Logger.
func NewRedactLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	textHandler := slog.NewTextHandler(w, opts)
	redactHandler := NewRedactHandler(textHandler)

	return slog.New(redactHandler)
}

// NewRedactJSONLogger creates a new slog.Logger with dataset-value masking
// that outputs JSON format. Useful for structured log aggregation.
//
// Parameters:
//   - w: The io.Writer to write log output to
//   - verbose: If true, sets log level to Debug; otherwise Warn
//
// Returns a *slog.Logger configured for JSON output with masking.
func NewRedactJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	jsonHandler := slog.NewJSONHandler(w, opts)
	redactHandler := NewRedactHandler(jsonHandler)

	return slog.New(redactHandler)
}
