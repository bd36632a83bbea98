package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/redact-client/interfaces"
)

// VaultBackend implements a storage backend on a HashiCorp Vault KV v2 mount.
// It authenticates with a token, a TLS client certificate, or both.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault storage backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount under which records are kept (e.g. "redact")
//   - token: Vault token, may be empty when certificate auth is used
//   - clientCert: optional TLS client certificate
//   - log: Structured logger for operational insights
func NewVaultBackend(address, mountPath, dataPath, token string, clientCert *tls.Certificate, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address

	if clientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{*clientCert},
				},
			},
			Timeout: 30 * time.Second,
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

// Fetch reads the record for path from the KV v2 mount.
func (b *VaultBackend) Fetch(ctx context.Context, path interfaces.DataPath) ([]byte, error) {
	start := time.Now()
	secretPath := b.secretPath(path)

	secret, err := b.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", secretPath),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		b.log.Debug("Record not found in Vault", slog.String("path", secretPath))
		return nil, interfaces.ErrNotFound
	}

	// KV v2 wraps the payload in a "data" map; a deleted version has nil data.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return nil, interfaces.ErrNotFound
	}

	content, ok := data["content"].(string)
	if !ok {
		b.log.Error("Invalid content format in Vault data", slog.String("path", secretPath))
		return nil, fmt.Errorf("invalid content format in Vault data at %s", secretPath)
	}

	b.log.Debug("Fetched record from Vault",
		slog.String("path", secretPath),
		slog.Duration("duration", time.Since(start)))

	return []byte(content), nil
}

// Store writes a new version of the record for path.
func (b *VaultBackend) Store(ctx context.Context, path interfaces.DataPath, data []byte) error {
	start := time.Now()
	secretPath := b.secretPath(path)

	_, err := b.client.Logical().WriteWithContext(ctx, secretPath, map[string]interface{}{
		"data": map[string]interface{}{
			"content": string(data),
		},
	})
	if err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", secretPath),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored record in Vault",
		slog.String("path", secretPath),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Available checks that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) secretPath(path interfaces.DataPath) string {
	if b.dataPath == "" {
		return fmt.Sprintf("%s/data/%s", b.mountPath, recordKey(path))
	}
	return fmt.Sprintf("%s/data/%s/%s", b.mountPath, b.dataPath, recordKey(path))
}
