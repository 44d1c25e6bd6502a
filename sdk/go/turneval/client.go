package turneval

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
)

const userAgent = "turneval-go-sdk"

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the turneval server (e.g. "http://localhost:8080").
	BaseURL string

	// ClientID and APIKey are exchanged for a bearer token.
	ClientID string
	APIKey   string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the turneval API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL, ClientID, or APIKey is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("turneval: BaseURL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("turneval: ClientID is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("turneval: APIKey is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  baseURL,
		client:   httpClient,
		tokenMgr: newTokenManager(baseURL, cfg.ClientID, cfg.APIKey, httpClient),
	}, nil
}

// Evaluate submits a turn and returns its report. Requires the evaluator role.
func (c *Client) Evaluate(ctx context.Context, ec EvaluationContext) (*Report, error) {
	var report Report
	if err := c.do(ctx, http.MethodPost, "/v1/evaluations", map[string]any{"context": ec}, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GetReport returns the cached report for a message. IsNotFound reports a
// message that was never evaluated or whose report expired.
func (c *Client) GetReport(ctx context.Context, messageID string) (*Report, error) {
	var report Report
	if err := c.do(ctx, http.MethodGet, "/v1/evaluations/"+url.PathEscape(messageID), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Recent returns up to limit cached reports, newest first. A limit of zero
// or less uses the server default.
func (c *Client) Recent(ctx context.Context, limit int) ([]Report, error) {
	path := "/v1/evaluations"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var reports []Report
	if err := c.do(ctx, http.MethodGet, path, nil, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// Health checks server health. It does not authenticate.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("turneval: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("turneval: GET /health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var health HealthResponse
	if err := handleResponse(resp, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends an authenticated request. A 401 drops the cached token and
// retries once with a fresh one.
func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("turneval: marshal request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		token, err := c.tokenMgr.getToken(ctx)
		if err != nil {
			return err
		}

		var reader io.Reader
		if encoded != nil {
			reader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("turneval: create request: %w", err)
		}
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("turneval: %s %s: %w", method, req.URL.Path, err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			c.tokenMgr.invalidate(token)
			continue
		}
		err = handleResponse(resp, dest)
		_ = resp.Body.Close()
		return err
	}
}

func handleResponse(resp *http.Response, dest any) error {
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("turneval: read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("turneval: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return fmt.Errorf("turneval: response has no data")
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("turneval: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &Error{StatusCode: resp.StatusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
