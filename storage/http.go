package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ruteri/redact-client/interfaces"
)

// maxRecordSize bounds the size of a record read from a remote storage service.
const maxRecordSize = 32 * 1024 * 1024

// HTTPBackend talks to a remote storage service that exposes
// GET {base}/data/{path} and POST {base}/data/{path}. Transient failures are
// retried by the client; callers see a single outcome.
type HTTPBackend struct {
	client      *retryablehttp.Client
	baseURL     string
	log         *slog.Logger
	locationURI string
}

// NewHTTPBackend creates a backend for the storage service at baseURL.
// tlsConfig may carry a client certificate for mutual TLS.
func NewHTTPBackend(baseURL string, retryMax int, timeout time.Duration, tlsConfig *tls.Config, log *slog.Logger) (*HTTPBackend, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = log
	client.HTTPClient.Timeout = timeout
	if tlsConfig != nil {
		client.HTTPClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	return &HTTPBackend{
		client:      client,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		log:         log,
		locationURI: baseURL,
	}, nil
}

// Fetch retrieves the record for path. A 404 response maps to ErrNotFound.
func (b *HTTPBackend) Fetch(ctx context.Context, path interfaces.DataPath) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, b.recordURL(path), nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, interfaces.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", interfaces.ErrBackendUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	b.log.Debug("Fetched record from storage service",
		slog.String("path", string(path)),
		slog.Int("size", len(data)))

	return data, nil
}

// Store posts the record for path.
func (b *HTTPBackend) Store(ctx context.Context, path interfaces.DataPath, data []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.recordURL(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("storage service rejected record: status %d", resp.StatusCode)
	}
	return nil
}

// Available issues a HEAD request against the service base URL.
func (b *HTTPBackend) Available(ctx context.Context) bool {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, b.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.HTTPClient.Do(req.Request)
	if err != nil {
		b.log.Debug("Storage service unavailable", "err", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// Name returns a unique identifier for this storage backend.
func (b *HTTPBackend) Name() string {
	u, err := url.Parse(b.baseURL)
	if err != nil {
		return "http"
	}
	return fmt.Sprintf("http-%s", u.Host)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *HTTPBackend) LocationURI() string {
	return b.locationURI
}

func (b *HTTPBackend) recordURL(path interfaces.DataPath) string {
	return b.baseURL + "/data/" + url.PathEscape(string(path))
}
