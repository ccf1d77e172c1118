package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iammorganparry/issuehub/internal/session"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "issuehub-cli"

	// maxResponseBytes caps how much of a response body is buffered.
	maxResponseBytes = 8 << 20
)

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is prepended to every request path (e.g. "http://localhost:8000/api").
	BaseURL string
	// Session supplies the bearer token and is cleared on a 401. Required.
	Session *session.Session
	// HTTPClient is used for all requests. If nil, a client with Timeout is created.
	HTTPClient *http.Client
	// Timeout applies only when HTTPClient is nil. Defaults to 30s.
	Timeout time.Duration
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// OnUnauthenticated runs after the session has been cleared because the
	// server answered 401. It runs once per failing response.
	OnUnauthenticated func(ctx context.Context)
	// UserAgent is sent on every request.
	UserAgent string
}

// Client is the authenticated IssueHub HTTP client. Every request reads the
// session token and attaches it as a bearer credential; every 401 clears the
// session and reports through OnUnauthenticated. Call sites never handle
// either concern themselves.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	session           *session.Session
	logger            *slog.Logger
	onUnauthenticated func(ctx context.Context)
	userAgent         string
}

// New creates a Client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	if config.Session == nil {
		return nil, fmt.Errorf("client: Session is required")
	}

	// Request URLs are built by concatenation, so only the string form with
	// the trailing slash stripped is kept.
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("client: BaseURL %q must be http or https", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:           strings.TrimRight(config.BaseURL, "/"),
		httpClient:        httpClient,
		session:           config.Session,
		logger:            logger,
		onUnauthenticated: config.OnUnauthenticated,
		userAgent:         userAgent,
	}, nil
}

// BaseURL returns the address prefix requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session returns the session the client reads credentials from.
func (c *Client) Session() *session.Session {
	return c.session
}

// Request sends one request and returns the JSON response body, or nil when
// the response had no body. body, if non-nil, is encoded as JSON. query may
// be nil.
//
// Non-2xx responses return *HTTPError; a missing response returns
// *NetworkError. Nothing is retried.
func (c *Client) Request(ctx context.Context, method, path string, body any, query url.Values) (json.RawMessage, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}

	requestID := uuid.New().String()[:8]
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("X-Request-ID", requestID)
	c.authorize(ctx, request)

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Debug("request failed",
			"method", method,
			"path", path,
			"request_id", requestID,
			"error", err,
		)
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer response.Body.Close()

	responseBody, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))

	c.logger.Debug("request",
		"method", method,
		"path", path,
		"status", response.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)

	success := response.StatusCode >= 200 && response.StatusCode < 300
	if readErr != nil {
		if success {
			return nil, &NetworkError{Method: method, Path: path, Err: fmt.Errorf("read response body: %w", readErr)}
		}
		// The status arrived, so a failure is still an HTTPError; only the
		// body is lost.
		c.logger.Debug("reading error body failed", "status", response.StatusCode, "error", readErr)
		responseBody = nil
	}

	trimmed := bytes.TrimSpace(responseBody)
	if success {
		if len(trimmed) == 0 {
			return nil, nil
		}
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("client: %s %s: response is not JSON", method, path)
		}
		return json.RawMessage(trimmed), nil
	}

	httpErr := &HTTPError{Status: response.StatusCode, Method: method, Path: path}
	if len(trimmed) > 0 && json.Valid(trimmed) {
		httpErr.Body = json.RawMessage(trimmed)
	}

	if response.StatusCode == http.StatusUnauthorized {
		c.unauthenticated(ctx, httpErr)
	}

	return nil, httpErr
}

// Do is Request followed by decoding the response body into out. out may be
// nil when the caller does not need the body.
func (c *Client) Do(ctx context.Context, method, path string, body any, query url.Values, out any) error {
	raw, err := c.Request(ctx, method, path, body, query)
	if err != nil {
		return err
	}
	if out == nil || raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("client: decode %s %s response: %w", method, path, err)
	}
	return nil
}

// authorize attaches the current token. A failed session read is logged and
// the request goes out without credentials; the server will reject it.
func (c *Client) authorize(ctx context.Context, request *http.Request) {
	token, err := c.session.Token(ctx)
	if err != nil {
		c.logger.Warn("reading session token failed, sending unauthenticated", "error", err)
		return
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
}

// unauthenticated clears the session and fires the callback. Clearing is
// detached from ctx so a canceled caller cannot leave a dead token behind.
func (c *Client) unauthenticated(ctx context.Context, httpErr *HTTPError) {
	c.logger.Warn("session rejected by server, clearing credentials",
		"method", httpErr.Method,
		"path", httpErr.Path,
	)

	if err := c.session.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error("clearing session failed", "error", err)
	}

	if c.onUnauthenticated != nil {
		c.onUnauthenticated(ctx)
	}
}
