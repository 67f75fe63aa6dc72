// Package apiclient talks to the external brand analysis backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/visibi/internal/brand"
)

const (
	DefaultBaseURL      = "http://localhost:8000"
	DefaultHistoryLimit = 10
)

// Client is a thin JSON client for the analysis API. It never retries.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a client. An empty baseURL means DefaultBaseURL.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AnalyzeURL runs a brand analysis. Empty queries and keywords are omitted
// so the backend falls back to its default monitoring queries.
func (c *Client) AnalyzeURL(ctx context.Context, rawURL string, queries, keywords []string) (*AnalysisResponse, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, &FieldError{Field: "url", Reason: "is required"}
	}
	body := AnalyzeRequest{URL: rawURL, Queries: queries, CustomKeywords: keywords}

	var out AnalysisResponse
	if err := c.do(ctx, http.MethodPost, "/api/brands/analyze", body, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns the most recent analyses. limit <= 0 means 10.
func (c *Client) History(ctx context.Context, limit int) (*HistoryResponse, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	path := "/api/brands/history?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()

	var out HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out, "Failed to fetch history"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearHistory deletes the backend's analysis history.
func (c *Client) ClearHistory(ctx context.Context) (*ClearHistoryResponse, error) {
	var out ClearHistoryResponse
	if err := c.do(ctx, http.MethodDelete, "/api/brands/history", nil, &out, "Failed to clear history"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the API is up.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out, ""); err != nil {
		if apiErr, ok := err.(*Error); ok {
			apiErr.Message = "API is not available"
		}
		return nil, err
	}
	return &out, nil
}

// SendContact submits the contact form. The form is validated first and
// nothing is sent when a field is missing.
func (c *Client) SendContact(ctx context.Context, form ContactForm) error {
	form = form.Normalize()
	if err := form.Validate(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/api/send-email", form, nil, "")
}

// JoinWaitlist registers an email for the tool waitlist and returns the
// preview the backend computed for the brand.
func (c *Client) JoinWaitlist(ctx context.Context, req WaitlistRequest) (*WaitlistResponse, error) {
	req, err := prepareWaitlist(req)
	if err != nil {
		return nil, err
	}
	var out WaitlistResponse
	if err := c.do(ctx, http.MethodPost, "/api/waitlist", req, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestBrandAnalysis asks the backend to email a full analysis report.
func (c *Client) RequestBrandAnalysis(ctx context.Context, req WaitlistRequest) (*WaitlistResponse, error) {
	req, err := prepareWaitlist(req)
	if err != nil {
		return nil, err
	}
	var out WaitlistResponse
	if err := c.do(ctx, http.MethodPost, "/api/brand-analysis", req, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

func prepareWaitlist(req WaitlistRequest) (WaitlistRequest, error) {
	if strings.TrimSpace(req.BrandURL) == "" {
		return req, &FieldError{Field: "brand_url", Reason: "is required"}
	}
	if err := ValidateEmail(req.Email); err != nil {
		return req, err
	}
	req.BrandURL = brand.NormalizeURL(req.BrandURL)
	req.Email = strings.TrimSpace(req.Email)
	if req.CustomQueries == nil {
		req.CustomQueries = []string{}
	}
	if req.CustomKeywords == nil {
		req.CustomKeywords = []string{}
	}
	return req, nil
}

// do sends one JSON request. A nil out discards a successful body.
func (c *Client) do(ctx context.Context, method, path string, in, out any, errPrefix string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := responseError(resp, errPrefix)
		c.logger.Debug("api error",
			zap.Int("status", resp.StatusCode),
			zap.String("request_id", requestID),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
