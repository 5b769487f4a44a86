package model

import "fmt"

// Classification titles form a closed taxonomy. Every failed run surfaces
// exactly one of these titles; the diagnose package owns the mapping from
// raw errors to titles.
const (
	// TitleConnectionError covers transport-level failures to reach the
	// analysis service.
	TitleConnectionError = "Connection Error"
	// TitleTimeout covers stage-ceiling expiries.
	TitleTimeout = "Timeout"
	// TitleInvalidRequest covers HTTP 400 responses.
	TitleInvalidRequest = "Invalid Request"
	// TitleNotFound covers HTTP 404 responses.
	TitleNotFound = "Not Found"
	// TitleInvalidColumn covers HTTP 500 responses mentioning the label
	// column.
	TitleInvalidColumn = "Invalid Column"
	// TitleMemoryError covers HTTP 500 responses mentioning memory.
	TitleMemoryError = "Memory Error"
	// TitleAnalysisError covers all other HTTP 500 responses.
	TitleAnalysisError = "Analysis Error"
	// TitleUnclassified covers anything no other rule matched.
	TitleUnclassified = "Error"
)

// ServerErrorTitle returns the title for an HTTP status outside the
// specifically classified ones.
func ServerErrorTitle(status int) string {
	return fmt.Sprintf("Server Error (%d)", status)
}

// ClassifiedError is the normalized, user-facing form of any pipeline
// failure. All three text fields are always non-empty; callers may
// surface them verbatim without further checks.
type ClassifiedError struct {
	// Stage is the stage that failed.
	Stage StageKind `json:"stage"`

	// StageText is the string form of Stage for serialization.
	StageText string `json:"stage_text"`

	// Title is the short failure category from the closed taxonomy.
	Title string `json:"title"`

	// Detail explains what happened, including any server-supplied
	// detail text.
	Detail string `json:"detail"`

	// Suggestion tells the user what to try next.
	Suggestion string `json:"suggestion"`
}

// NewClassifiedError builds a ClassifiedError for the given stage.
func NewClassifiedError(stage StageKind, title, detail, suggestion string) *ClassifiedError {
	return &ClassifiedError{
		Stage:      stage,
		StageText:  stage.String(),
		Title:      title,
		Detail:     detail,
		Suggestion: suggestion,
	}
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// Complete reports whether all three text fields are non-empty.
// The classifier guarantees this for every error it produces.
func (e *ClassifiedError) Complete() bool {
	return e.Title != "" && e.Detail != "" && e.Suggestion != ""
}
