// Package api is the JSON-over-HTTP transport used by the broker client:
// default headers, an outgoing rate limit, a span per call and bounded retries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"supertrend-bot/internal/logger"
	"supertrend-bot/internal/trace"
)

// Client sends JSON requests relative to a base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	limiter    *rate.Limiter
	verbose    bool
}

type ClientOption func(*Client)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHeaders adds default headers sent on every request.
func WithHeaders(h map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithRateLimit caps outgoing requests at rps with the given burst.
// Requests wait for a token or for their context to end.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithLogging logs every request and response at debug level and failures at warn.
func WithLogging(enabled bool) ClientOption {
	return func(c *Client) { c.verbose = enabled }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request is one call; build it with NewRequest and the With* setters.
type Request struct {
	Method  string
	Path    string
	Body    any
	Headers map[string]string
	ctx     context.Context
}

func NewRequest(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Headers: make(map[string]string),
		ctx:     context.Background(),
	}
}

func (r *Request) WithContext(ctx context.Context) *Request {
	r.ctx = ctx
	return r
}

// WithBody sets a value to be sent JSON encoded.
func (r *Request) WithBody(body any) *Request {
	r.Body = body
	return r
}

// WithHeader sets a header that overrides the client defaults.
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

func (r *Response) ParseJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// HTTPError is returned for responses with a status of 400 or above.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Do sends the request once.
func (c *Client) Do(req *Request) (*Response, error) {
	ctx, span := trace.StartSpan(req.ctx, "http "+req.Method)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", req.Method), attribute.String("http.path", req.Path))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var bodyReader io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	url := c.baseURL + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.warn(ctx, "HTTP request failed", "method", req.Method, "path", req.Path, "error", err)
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", httpResp.StatusCode))
	c.debug(ctx, "HTTP response",
		"method", req.Method,
		"path", req.Path,
		"status", httpResp.StatusCode,
		"duration", time.Since(start),
		"bytes", len(body))

	if httpResp.StatusCode >= 400 {
		c.warn(ctx, "HTTP error response", "method", req.Method, "path", req.Path, "status", httpResp.StatusCode)
		return nil, &HTTPError{StatusCode: httpResp.StatusCode, Body: string(body)}
	}
	return &Response{StatusCode: httpResp.StatusCode, Body: body, Headers: httpResp.Header}, nil
}

// POST sends body to path with optional extra headers.
func (c *Client) POST(ctx context.Context, path string, body any, headers ...map[string]string) (*Response, error) {
	req := NewRequest(http.MethodPost, path).WithContext(ctx).WithBody(body)
	for _, h := range headers {
		for k, v := range h {
			req.WithHeader(k, v)
		}
	}
	return c.Do(req)
}

// SmartAPIHeaders returns the fixed headers Angel One SmartAPI expects on every call.
// Client IPs and MAC address are informational; the exchange does not verify them.
func SmartAPIHeaders(apiKey, localIP, publicIP, mac string) map[string]string {
	return map[string]string{
		"Content-Type":     "application/json",
		"Accept":           "application/json",
		"X-UserType":       "USER",
		"X-SourceID":       "WEB",
		"X-ClientLocalIP":  orDefault(localIP, "127.0.0.1"),
		"X-ClientPublicIP": orDefault(publicIP, "127.0.0.1"),
		"X-MACAddress":     orDefault(mac, "00:00:00:00:00:00"),
		"X-PrivateKey":     apiKey,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// RetryConfig bounds DoWithRetry. Waits double from InitialWait up to MaxWait.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DoWithRetry retries transport failures, 429 and 5xx responses. Other client
// errors and a cancelled context are returned at once. A nil config sends once.
func (c *Client) DoWithRetry(req *Request, config *RetryConfig) (*Response, error) {
	if config == nil || config.MaxAttempts < 1 {
		return c.Do(req)
	}

	var lastErr error
	wait := config.InitialWait
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		resp, err := c.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.Temporary() {
			return nil, err
		}
		if req.ctx.Err() != nil || attempt == config.MaxAttempts {
			break
		}

		c.warn(req.ctx, "Request failed, retrying", "path", req.Path, "attempt", attempt, "error", err, "wait", wait)
		select {
		case <-req.ctx.Done():
			return nil, lastErr
		case <-time.After(wait):
		}
		wait = min(wait*2, config.MaxWait)
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", config.MaxAttempts, lastErr)
}

func (c *Client) debug(ctx context.Context, msg string, args ...any) {
	if c.verbose {
		logger.DebugSkip(ctx, 1, msg, args...)
	}
}

func (c *Client) warn(ctx context.Context, msg string, args ...any) {
	if c.verbose {
		logger.Warn(ctx, msg, args...)
	}
}
