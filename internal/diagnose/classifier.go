package diagnose

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/nao1215/fairscan/internal/model"
	"github.com/nao1215/fairscan/internal/service"
)

// Suggestion texts. Each classification carries exactly one of these so
// the user always gets a next step.
const (
	suggestCheckServer  = "Verify the analysis server is running, or restart it."
	suggestReduceLoad   = "Reduce the sample size or epoch count and try again."
	suggestCheckInput   = "Check the dataset path, label column, and protected columns, then try again."
	suggestCheckPath    = "Verify the dataset path exists and is reachable from the analysis server."
	suggestPickColumn   = "Choose a label column that exists in the dataset."
	suggestShrinkRun    = "Reduce the sample size or train on a smaller dataset."
	suggestServerLogs   = "Check the analysis server logs for the full traceback."
	suggestRetryRestart = "Retry the run; if the failure persists, restart the analysis server."
	suggestRetryVerbose = "Retry the run with --verbose to capture more detail."
)

// Substrings of server 500 detail text that select a specific
// classification. The matches are byte-for-byte and case-sensitive: they
// are a compatibility contract with the analysis server's error messages,
// not a heuristic to be broadened.
const (
	labelColumnMarker = "label_column"
	memoryMarker      = "memory"
)

// failure is the pre-processed input a rule inspects: the failed stage,
// the raw error, and the server response when one exists.
type failure struct {
	stage  model.StageKind
	err    error
	svcErr *service.ServiceError
}

// rule pairs a predicate with the classification it produces.
// Rules are evaluated strictly in order; the first match wins.
type rule struct {
	name     string
	matches  func(failure) bool
	classify func(failure) *model.ClassifiedError
}

// rules is the classification cascade. The final rule matches every
// failure, so Classify is a total function.
//
// The deadline rule runs before the connection rule: a stage ceiling that
// expires mid-dial surfaces wrapped in the same net.OpError a refused
// connection does, and it must still classify as a timeout.
var rules = []rule{
	{name: "stage ceiling expired", matches: matchDeadline, classify: classifyTimeout},
	{name: "server unreachable", matches: matchConnection, classify: classifyConnection},
	{name: "invalid request", matches: matchStatus(http.StatusBadRequest), classify: classifyInvalidRequest},
	{name: "not found", matches: matchStatus(http.StatusNotFound), classify: classifyNotFound},
	{name: "invalid column", matches: matchServerDetail(labelColumnMarker), classify: classifyInvalidColumn},
	{name: "memory exhausted", matches: matchServerDetail(memoryMarker), classify: classifyMemory},
	{name: "analysis failed", matches: matchStatus(http.StatusInternalServerError), classify: classifyAnalysis},
	{name: "unexpected status", matches: matchAnyResponse, classify: classifyServerError},
	{name: "unclassified", matches: matchAll, classify: classifyUnclassified},
}

// Classify maps a raw stage failure onto the closed taxonomy.
// The returned error always has non-empty title, detail, and suggestion.
func Classify(stage model.StageKind, err error) *model.ClassifiedError {
	f := failure{stage: stage, err: err}
	errors.As(err, &f.svcErr)

	for _, r := range rules {
		if r.matches(f) {
			return r.classify(f)
		}
	}

	// The trailing catch-all rule makes this unreachable.
	return classifyUnclassified(f)
}

func matchDeadline(f failure) bool {
	return errors.Is(f.err, context.DeadlineExceeded)
}

// matchConnection reports whether the failure never produced an HTTP
// response: dial refusals, resets, unresolvable hosts, and socket-level
// timeouts all arrive as net.OpError or net.DNSError.
func matchConnection(f failure) bool {
	if f.svcErr != nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(f.err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(f.err, &dnsErr) {
		return true
	}
	return errors.Is(f.err, service.ErrServerCannotConnect)
}

// matchStatus matches a server response with the given HTTP status.
func matchStatus(status int) func(failure) bool {
	return func(f failure) bool {
		return f.svcErr != nil && f.svcErr.StatusCode == status
	}
}

// matchServerDetail matches a 500 response whose detail text contains
// the given marker.
func matchServerDetail(marker string) func(failure) bool {
	return func(f failure) bool {
		return f.svcErr != nil &&
			f.svcErr.StatusCode == http.StatusInternalServerError &&
			strings.Contains(f.svcErr.Detail, marker)
	}
}

func matchAnyResponse(f failure) bool {
	return f.svcErr != nil
}

func matchAll(failure) bool {
	return true
}

func classifyTimeout(f failure) *model.ClassifiedError {
	detail := fmt.Sprintf("The %s stage exceeded its %d second limit.",
		f.stage, int(f.stage.Timeout().Seconds()))
	return model.NewClassifiedError(f.stage, model.TitleTimeout, detail, suggestReduceLoad)
}

func classifyConnection(f failure) *model.ClassifiedError {
	detail := "The analysis server could not be reached."
	var dnsErr *net.DNSError
	switch {
	case errors.Is(f.err, syscall.ECONNREFUSED):
		detail = "The analysis server refused the connection."
	case errors.As(f.err, &dnsErr):
		detail = "The analysis server's host could not be resolved."
	}
	return model.NewClassifiedError(f.stage, model.TitleConnectionError, detail, suggestCheckServer)
}

func classifyInvalidRequest(f failure) *model.ClassifiedError {
	return model.NewClassifiedError(f.stage, model.TitleInvalidRequest, serverDetail(f), suggestCheckInput)
}

func classifyNotFound(f failure) *model.ClassifiedError {
	return model.NewClassifiedError(f.stage, model.TitleNotFound, serverDetail(f), suggestCheckPath)
}

func classifyInvalidColumn(f failure) *model.ClassifiedError {
	return model.NewClassifiedError(f.stage, model.TitleInvalidColumn, serverDetail(f), suggestPickColumn)
}

func classifyMemory(f failure) *model.ClassifiedError {
	return model.NewClassifiedError(f.stage, model.TitleMemoryError, serverDetail(f), suggestShrinkRun)
}

func classifyAnalysis(f failure) *model.ClassifiedError {
	return model.NewClassifiedError(f.stage, model.TitleAnalysisError, serverDetail(f), suggestServerLogs)
}

func classifyServerError(f failure) *model.ClassifiedError {
	title := model.ServerErrorTitle(f.svcErr.StatusCode)
	return model.NewClassifiedError(f.stage, title, serverDetail(f), suggestRetryRestart)
}

// serverDetail returns the server-supplied detail text, falling back to
// the standard status text for responses that carried none.
func serverDetail(f failure) string {
	if f.svcErr.Detail != "" {
		return f.svcErr.Detail
	}
	if text := http.StatusText(f.svcErr.StatusCode); text != "" {
		return text
	}
	return "The analysis server returned an error without detail."
}

func classifyUnclassified(f failure) *model.ClassifiedError {
	detail := "An unexpected error occurred."
	if f.err != nil && f.err.Error() != "" {
		detail = f.err.Error()
	}
	return model.NewClassifiedError(f.stage, model.TitleUnclassified, detail, suggestRetryVerbose)
}
