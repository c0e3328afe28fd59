// Package remote is the HTTP transport shared by the pack repository and
// the credential issuer. Both admin endpoints are authenticated by the
// operator secret in the X-ADMIN-KEY header.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/tokendesk/internal/model"
)

const (
	// HeaderAdminKey carries the operator secret.
	HeaderAdminKey = "X-ADMIN-KEY"
	// HeaderRequestID correlates a call with the issuer's logs.
	HeaderRequestID = "X-Request-ID"

	// DefaultTimeout bounds every call. Expiry is reported as a server error.
	DefaultTimeout = 15 * time.Second

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 4 << 20
)

// Client issues authenticated JSON requests against the issuer base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout sets the per-call timeout. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client for the issuer at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		userAgent:  "tokendesk",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized issuer base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// NewRequestID returns a fresh correlation id.
func NewRequestID() string { return "req_" + uuid.NewString() }

// Do sends one request and returns the body of a 2xx response. It never
// retries. Non-2xx statuses and timeouts are KindServer errors carrying the
// raw body; other transport failures are KindTransport.
func (c *Client) Do(ctx context.Context, method, path, secret string, body any) ([]byte, error) {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, model.Wrap(model.KindValidation, op, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, model.Wrap(model.KindTransport, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set(HeaderAdminKey, secret)
	req.Header.Set(HeaderRequestID, NewRequestID())
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, &model.Error{
				Kind: model.KindServer,
				Op:   op,
				Msg:  fmt.Sprintf("no response within %s", c.timeout),
				Err:  err,
			}
		}
		return nil, model.Wrap(model.KindTransport, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, &model.Error{
				Kind: model.KindServer,
				Op:   op,
				Msg:  fmt.Sprintf("response not completed within %s", c.timeout),
				Err:  err,
			}
		}
		return nil, model.Wrap(model.KindTransport, op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.Error{
			Kind: model.KindServer,
			Op:   op,
			Msg:  fmt.Sprintf("HTTP %d", resp.StatusCode),
			Body: string(data),
		}
	}
	return data, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
