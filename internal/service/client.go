package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/fairscan/internal/model"
)

// DefaultBaseURL is the analysis server's default listen address.
const DefaultBaseURL = "http://127.0.0.1:8765"

// livenessTimeout bounds the liveness probe. We use a short timeout here
// because the probe only decides whether the server is reachable before a
// run, not whether any analysis can complete.
const livenessTimeout = 2 * time.Second

// columnsTimeout bounds the column preview call. Reading a CSV header is
// cheap for the server, so a slow answer means something is wrong.
const columnsTimeout = 10 * time.Second

// healthMessage is the identity string the analysis server reports on its
// root endpoint. The liveness probe requires it so that an arbitrary HTTP
// service on the same port is not mistaken for the analysis server.
const healthMessage = "Fairness Analysis API"

// maxErrorBody caps how much of a failed response body is read when
// extracting the server's detail message.
const maxErrorBody = 64 * 1024

// Client is a typed HTTP client for the analysis server.
//
// All stage methods issue exactly one request and honor the caller's
// context deadline; the underlying http.Client carries no timeout of its
// own. A Client is safe for use from multiple goroutines.
type Client struct {
	// baseURL is the server address without a trailing slash.
	baseURL string

	// httpClient performs all requests.
	httpClient *http.Client

	// userAgent is sent as the User-Agent header when non-empty.
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Useful for tests
// and for callers that need custom transport settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a client for the analysis server at baseURL.
//
// The baseURL must be an absolute http or https URL with a host
// (e.g., "http://127.0.0.1:8765"). A trailing slash is dropped.
//
// This function validates the URL but does not contact the server.
// Call CheckConnection to verify the server is reachable.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the configured server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckConnection probes the analysis server's root endpoint and reports
// whether it is reachable. The probe applies its own short timeout on top
// of the caller's context.
//
// The check requires the server to identify itself in the response body.
// A plain 200 is not enough: any HTTP service would produce one, and a run
// against the wrong service should fail here rather than at the first stage.
func (c *Client) CheckConnection(ctx context.Context) ServerStatus {
	ctx, cancel := context.WithTimeout(ctx, livenessTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return ServerStatusCannotConnect
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ServerStatusTimeout
		}
		return ServerStatusCannotConnect
	}
	defer resp.Body.Close() //nolint:errcheck // response body close on read path

	if resp.StatusCode != http.StatusOK {
		return ServerStatusWrongService
	}

	var health healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&health); err != nil {
		return ServerStatusWrongService
	}
	if health.Message != healthMessage {
		return ServerStatusWrongService
	}

	return ServerStatusOK
}

// Columns fetches the column preview for the CSV at filePath. The call
// applies its own timeout on top of the caller's context because no stage
// deadline covers it.
func (c *Client) Columns(ctx context.Context, filePath string) (*ColumnsResult, error) {
	ctx, cancel := context.WithTimeout(ctx, columnsTimeout)
	defer cancel()

	var out ColumnsResult
	if err := c.postJSON(ctx, "/columns", columnsRequest{FilePath: filePath}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Train runs the training stage and returns the trained model's summary.
func (c *Client) Train(ctx context.Context, req TrainRequest) (*model.TrainResult, error) {
	// The train response carries its fields flat, without a result key.
	var out model.TrainResult
	if err := c.postJSON(ctx, "/train", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Activations runs the activation-projection stage.
func (c *Client) Activations(ctx context.Context, req ActivationsRequest) (*model.ActivationsResult, error) {
	var out activationsEnvelope
	if err := c.postJSON(ctx, "/activations", req, &out); err != nil {
		return nil, err
	}
	return &out.Activations, nil
}

// Analyze runs the QID analysis stage.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*model.QidMetrics, error) {
	var out analyzeEnvelope
	if err := c.postJSON(ctx, "/analyze", req, &out); err != nil {
		return nil, err
	}
	return &out.QidMetrics, nil
}

// Search runs the discriminatory-instance search stage.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*model.SearchResult, error) {
	var out searchEnvelope
	if err := c.postJSON(ctx, "/search", req, &out); err != nil {
		return nil, err
	}
	return &out.SearchResults, nil
}

// Debug runs the causal debugging stage. The endpoint accepts the same
// parameters as the search stage.
func (c *Client) Debug(ctx context.Context, req SearchRequest) (*model.DebugResult, error) {
	var out debugEnvelope
	if err := c.postJSON(ctx, "/debug", req, &out); err != nil {
		return nil, err
	}
	return &model.DebugResult{
		LayerAnalysis:  out.LayerAnalysis,
		NeuronAnalysis: out.NeuronAnalysis,
	}, nil
}

// Explain runs the explanation stage.
func (c *Client) Explain(ctx context.Context, req ExplainRequest) (*model.ExplainResult, error) {
	var out explainEnvelope
	if err := c.postJSON(ctx, "/explain", req, &out); err != nil {
		return nil, err
	}
	return &out.Explanations, nil
}

// postJSON performs one POST exchange: it marshals body, sends it to path,
// and decodes a 2xx response into out. Non-2xx responses become a
// *ServiceError carrying the server's detail text.
//
// Transport errors are wrapped, not replaced, so callers can still reach
// the underlying *url.Error and context deadline through errors.Is/As.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body close on read path

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeServiceError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeServiceError turns a failed response into a *ServiceError.
//
// The server wraps failures as {"detail": "..."}. Responses that do not
// follow that shape (proxies, crashes mid-write) fall back to the raw body
// text, then to the standard status text, so Detail is never empty.
func decodeServiceError(resp *http.Response) *ServiceError {
	detail := ""
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil {
		var envelope struct {
			Detail string `json:"detail"`
		}
		if jsonErr := json.Unmarshal(body, &envelope); jsonErr == nil && envelope.Detail != "" {
			detail = envelope.Detail
		} else if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
			detail = trimmed
		}
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	return &ServiceError{StatusCode: resp.StatusCode, Detail: detail}
}
