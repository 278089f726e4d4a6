// Package client retrieves capability manifests from devices over HTTP.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rmrfslashbin/device-gateway/pkg/models"
)

const (
	// DefaultTimeout bounds a single manifest request.
	DefaultTimeout = 5 * time.Second

	// maxManifestSize caps the manifest body read from a device (1MB).
	maxManifestSize = 1 << 20
)

// Errors returned by FetchManifest.
var (
	ErrTransport = errors.New("transport error")
	ErrStatus    = errors.New("unexpected status")
	ErrDecode    = errors.New("manifest decode error")
)

// Client is an HTTP client for device manifests.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for probe diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a new manifest client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// Fetch tries the addresses in order and returns the manifest of the first
// one that answers with a valid body, together with the index of that
// address. Every address tried before it is marked unreachable; addresses
// after it are not contacted. When no address succeeds Fetch returns nil
// and -1. If ctx is cancelled the address in flight keeps its previous state.
func (c *Client) Fetch(ctx context.Context, addresses []models.DeviceAddress) (*models.DeviceData, int) {
	for i := range addresses {
		addr := &addresses[i]

		data, err := c.FetchManifest(ctx, addr.Request)
		if err == nil {
			addr.Reachable = true
			return data, i
		}

		if ctx.Err() != nil {
			// A cancelled request says nothing about the address.
			c.logger.Debug("manifest retrieval cancelled", "request", addr.Request, "error", ctx.Err())
			return nil, -1
		}

		addr.Reachable = false
		if errors.Is(err, ErrDecode) {
			c.logger.Debug("manifest decode failed", "request", addr.Request, "error", err)
		} else {
			c.logger.Debug("address unreachable", "request", addr.Request, "error", err)
		}
	}
	return nil, -1
}

// FetchManifest performs a GET on request and decodes the manifest.
func (c *Client) FetchManifest(ctx context.Context, request string) (*models.DeviceData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %w", ErrTransport, err)
	}
	if len(body) > maxManifestSize {
		return nil, fmt.Errorf("%w: manifest exceeds %d bytes", ErrDecode, maxManifestSize)
	}

	data, err := models.DecodeManifest(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return data, nil
}
