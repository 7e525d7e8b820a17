// Package api is the typed REST client for the project-management backend.
package api

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

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const maxResponseBytes = 4 << 20

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() string
}

// Logger is satisfied by *charmLog.Logger.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

// Config holds client settings.
type Config struct {
	BaseURL          string
	V1Prefix         string
	APIPrefix        string
	Timeout          time.Duration
	PrehashPasswords bool
	UserAgent        string
}

// Client issues authenticated requests and decodes typed responses.
type Client struct {
	base           *url.URL
	cfg            Config
	http           *http.Client
	tokens         TokenSource
	onUnauthorized func(*StatusError)
	newRequestID   func() string
	logger         Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		if c != nil {
			client.http = c
		}
	}
}

// WithUnauthorizedHandler registers the handler invoked once per 401 response.
func WithUnauthorizedHandler(fn func(*StatusError)) Option {
	return func(client *Client) {
		client.onUnauthorized = fn
	}
}

// WithRequestIDs overrides X-Request-ID generation.
func WithRequestIDs(fn func() string) Option {
	return func(client *Client) {
		if fn != nil {
			client.newRequestID = fn
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// New constructs a client for cfg.BaseURL.
func New(cfg Config, tokens TokenSource, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", cfg.BaseURL)
	}
	if cfg.V1Prefix == "" {
		cfg.V1Prefix = "/v1"
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "kanri"
	}
	c := &Client{
		base:         base,
		cfg:          cfg,
		http:         &http.Client{Timeout: cfg.Timeout},
		tokens:       tokens,
		newRequestID: uuid.NewString,
		logger:       charmLog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) v1(format string, args ...any) string {
	return strings.TrimRight(c.cfg.V1Prefix, "/") + fmt.Sprintf(format, args...)
}

func (c *Client) api(format string, args ...any) string {
	return strings.TrimRight(c.cfg.APIPrefix, "/") + fmt.Sprintf(format, args...)
}

// getParsedResponse sends one request and decodes the body into out when out is non-nil.
func (c *Client) getParsedResponse(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.getResponse(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return malformed("%s %s returned an empty body", method, path)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, method, path, err)
	}
	return nil
}

func (c *Client) getResponse(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	target := *c.base
	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	target.Path = strings.TrimRight(target.Path, "/") + rel.Path
	target.RawQuery = rel.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Request-ID", c.newRequestID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := strings.TrimSpace(c.tokens.Token()); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("api request failed", "method", method, "path", rel.Path, "err", err)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, rel.Path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", ErrTransport, method, rel.Path, err)
	}
	c.logger.Debug("api request", "method", method, "path", rel.Path, "status", resp.StatusCode, "elapsed", time.Since(started))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	statusErr := &StatusError{Method: method, Path: rel.Path, StatusCode: resp.StatusCode}
	var envelope ErrorEnvelope
	if json.Unmarshal(raw, &envelope) == nil {
		statusErr.Code = envelope.Error.Code
		statusErr.Message = envelope.Error.Message
	}
	if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized(statusErr)
	}
	return nil, statusErr
}

// IsUnauthorized reports whether err came from a 401 response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
