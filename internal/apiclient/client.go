// Package apiclient sends queued mutations to the backend API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"yatrisync/internal/auth"
	"yatrisync/internal/logging"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "yatrisync/dev"
	maxErrorBody     = 64 << 10
)

// ErrUnauthorized matches a StatusError for HTTP 401 via errors.Is.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	// Message is the server's explanation, from a JSON "message" field when present.
	Message string
}

func (e *StatusError) Error() string {
	text := fmt.Sprintf("%s %s: %d %s", e.Method, e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		text += ": " + e.Message
	}
	return text
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// TokenStore supplies and revokes the bearer token.
type TokenStore interface {
	Token() (string, error)
	DeleteToken() error
}

// Client performs authenticated JSON requests against a base URL.
type Client struct {
	baseURL   string
	http      *http.Client
	tokens    TokenStore
	userAgent string
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logging.NewComponentLogger(logger, "api-client") }
}

// New builds a client. tokens may be nil for unauthenticated backends.
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		tokens:    tokens,
		userAgent: defaultUserAgent,
		logger:    logging.NewComponentLogger(nil, "api-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request sends payload (already-serialized JSON, may be empty) and returns nil
// on any 2xx response. A 401 revokes the stored token before returning.
func (c *Client) Request(ctx context.Context, method, endpoint string, payload []byte) error {
	target := c.resolve(endpoint)

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		switch {
		case err == nil:
			req.Header.Set("Authorization", "Bearer "+token)
		case errors.Is(err, auth.ErrTokenNotFound):
		default:
			return fmt.Errorf("read auth token: %w", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{
		Method:     method,
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(raw),
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.revokeToken()
	}
	return statusErr
}

func (c *Client) resolve(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint
}

func (c *Client) revokeToken() {
	if c.tokens == nil {
		return
	}
	err := c.tokens.DeleteToken()
	if err != nil && !errors.Is(err, auth.ErrTokenNotFound) {
		logging.WarnWithContext(c.logger, "failed to clear rejected auth token", "auth_token_clear_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'yatrisync auth logout' then log in again"),
			logging.String(logging.FieldImpact, "requests keep using a token the server rejected"),
		)
		return
	}
	logging.WarnWithContext(c.logger, "server rejected auth token; cleared stored token", "auth_token_rejected",
		logging.String(logging.FieldErrorHint, "run 'yatrisync auth login' with a fresh token"),
		logging.String(logging.FieldImpact, "queued actions fail until a new token is stored"),
	)
}

// errorMessage pulls a human-readable explanation out of an error body.
func errorMessage(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var decoded struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if msg := strings.TrimSpace(decoded.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(decoded.Error); msg != "" {
			return msg
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 256 {
		text = text[:256] + "…"
	}
	return text
}
