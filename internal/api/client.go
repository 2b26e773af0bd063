// Package api wraps the APEX.BUILD platform REST API. Every call is
// context-aware, authenticates through a TokenProvider and decodes the
// backend's JSON error envelope into a typed RequestError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"apex-client/internal/auth"
	"apex-client/internal/logging"
	"apex-client/pkg/models"
)

const defaultTimeout = 30 * time.Second

// Client is the platform API client. Safe for concurrent use.
type Client struct {
	base   string
	http   *http.Client
	tokens auth.TokenProvider
	log    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a client for the API root, e.g. https://api.apex.build/api.
func New(baseURL string, tokens auth.TokenProvider, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: defaultTimeout},
		tokens: tokens,
		log:    logging.Named("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestError is a non-2xx response from the backend.
type RequestError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("api: %d %s (request %s)", e.Status, e.Message, e.RequestID)
}

// IsNotFound reports whether the backend returned 404.
func (e *RequestError) IsNotFound() bool { return e.Status == http.StatusNotFound }

// IsAuth reports whether the backend rejected the credential.
func (e *RequestError) IsAuth() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// do performs one JSON round trip. out may be nil for calls with no
// interesting response body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("api: building request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("api: fetching credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	c.log.Debug("request", zap.String("method", method), zap.String("path", path),
		zap.String("request_id", requestID))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.asRequestError(resp, requestID)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding %s response: %w", path, err)
	}
	return nil
}

// stream performs a GET whose body the caller consumes directly (archives,
// raw file content). The caller owns the returned body.
func (c *Client) stream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("api: building request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("api: fetching credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: GET %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, c.asRequestError(resp, requestID)
	}
	return resp.Body, nil
}

func (c *Client) asRequestError(resp *http.Response, requestID string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope models.APIError
	msg := ""
	if json.Unmarshal(raw, &envelope) == nil {
		msg = envelope.Text()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &RequestError{Status: resp.StatusCode, Message: msg, RequestID: requestID}
}
