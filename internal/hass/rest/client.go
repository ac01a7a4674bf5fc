package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 32 << 20
)

// Logger defines the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Client.
type Options struct {
	// BaseURL is the hub's HTTP root, e.g. http://hub.local:8123.
	BaseURL string

	// Token is sent as a bearer token.
	Token string

	// Timeout bounds each request. Zero uses 30s.
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	Logger Logger
}

// Client calls the hub's REST API.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  Logger
}

// New creates a REST client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    httpClient,
		logger:  logger,
	}
}

// CallService invokes "domain.service" with data as the request body.
//
// Parameters:
//   - ctx: Request context
//   - service: Dotted service name, e.g. "light.turn_on"
//   - data: Service data, sent verbatim
//
// Returns:
//   - json.RawMessage: The hub's response body (changed states)
//   - error: ErrInvalidService, or a wrapped ErrRequestFailed/ErrHTTPStatus
func (c *Client) CallService(ctx context.Context, service string, data map[string]any) (json.RawMessage, error) {
	domain, name, ok := strings.Cut(service, ".")
	if !ok || domain == "" || name == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidService, service)
	}
	if data == nil {
		data = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, "/api/services/"+domain+"/"+name, data)
}

// GetAllEntities fetches /api/states.
//
// Non-2xx responses are returned as an error-shaped body rather than an
// error, matching what the hub's proxy layers emit; callers decide whether
// the payload is a usable list. Transport failures return an error.
func (c *Client) GetAllEntities(ctx context.Context) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/states", nil)
	if err == nil {
		return body, nil
	}
	var status *StatusError
	if asStatus(err, &status) {
		shaped, _ := json.Marshal(map[string]string{"text": status.Status, "body": status.Body})
		return shaped, nil
	}
	return nil, err
}

// GetServices fetches /api/services.
func (c *Client) GetServices(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/api/services", nil)
}

// Ping checks that the API answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding body: %w", ErrRequestFailed, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrRequestFailed, err)
	}

	c.logger.Debug("hub rest call", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(data)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}
