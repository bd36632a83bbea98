// Package relayer talks to third-party hosts on behalf of the secure pages:
// it notifies a relay URL after a value was written and fetches resources for
// the proxy route. Requests present a client certificate.
package relayer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruteri/redact-client/interfaces"
	"github.com/stretchr/testify/mock"
)

// MaxResponseSize bounds proxied response bodies.
const MaxResponseSize = 16 << 20

// RelayBody is posted to the relay URL.
type RelayBody struct {
	Path   interfaces.DataPath `json:"path"`
	UserID string              `json:"userId"`
}

// MutualTLSRelayer sends requests with the configured client identity.
type MutualTLSRelayer struct {
	client *http.Client
	userID string
	log    *slog.Logger
}

// NewMutualTLSRelayer creates a relayer. tlsConfig carries the client
// certificate and, optionally, the roots used to verify relay hosts.
func NewMutualTLSRelayer(tlsConfig *tls.Config, userID string, timeout time.Duration, log *slog.Logger) *MutualTLSRelayer {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &MutualTLSRelayer{
		client: &http.Client{Transport: transport, Timeout: timeout},
		userID: userID,
		log:    log,
	}
}

// Relay notifies relayURL that the value at path has changed.
func (r *MutualTLSRelayer) Relay(ctx context.Context, path interfaces.DataPath, relayURL string) error {
	body, err := json.Marshal(RelayBody{Path: path, UserID: r.userID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, relayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not initialize relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach relay: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	r.log.Debug("Relayed update", slog.String("path", string(path)), slog.String("relayURL", relayURL))
	return nil
}

// Get fetches url and returns its body and content type. Non-2xx responses
// are errors.
func (r *MutualTLSRelayer) Get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("could not initialize request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("could not reach host: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("host returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("could not read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, "", fmt.Errorf("response exceeds %d bytes", MaxResponseSize)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// MockRelayer implements interfaces.Relayer for testing.
type MockRelayer struct {
	mock.Mock
}

func (m *MockRelayer) Relay(ctx context.Context, path interfaces.DataPath, relayURL string) error {
	return m.Called(ctx, path, relayURL).Error(0)
}

func (m *MockRelayer) Get(ctx context.Context, url string) ([]byte, string, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}
