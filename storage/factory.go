package storage

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/redact-client/interfaces"
)

// StorageBackendFactory creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
type StorageBackendFactory struct {
	log          *slog.Logger
	clientCertFn func() (tls.Certificate, error)
}

// NewStorageBackendFactory creates a new factory instance that can create storage backends.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{log: logger}
}

// WithTLSAuth returns a copy of the factory whose Vault and HTTP backends
// present the certificate returned by certFn.
func (sf *StorageBackendFactory) WithTLSAuth(certFn func() (tls.Certificate, error)) interfaces.StorageBackendFactory {
	return &StorageBackendFactory{log: sf.log, clientCertFn: certFn}
}

// StorageBackendFor creates a storage backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS mutable file system through a node API
//   - vault:// - Vault KV v2 mount
//   - http://, https:// - Remote storage service
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (sf *StorageBackendFactory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	u, err := url.Parse(location.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ipfs":
		return sf.createIPFSBackend(u)
	case "s3":
		return sf.createS3Backend(u)
	case "file":
		return sf.createFileBackend(u)
	case "vault":
		return sf.createVaultBackend(u)
	case "http", "https":
		return sf.createHTTPBackend(u)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of location URIs.
// Reads fall back across backends in order and writes go to every available backend.
// Returns an error if no valid backends could be created from the provided URIs.
func (sf *StorageBackendFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locations))

	for _, location := range locations {
		backend, err := sf.StorageBackendFor(location)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", location.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}
	if len(backends) == 1 {
		return backends[0], nil
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

// createIPFSBackend creates an IPFS storage backend.
// URI format: ipfs://host:port/mfs/root?timeout=30s
func (sf *StorageBackendFactory) createIPFSBackend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", u.Redacted()))

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "5001"
	}

	root := u.Path
	if root == "" || root == "/" {
		root = "/redact"
	}

	timeout := 30 * time.Second
	if raw := u.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = parsed
	}

	return NewIPFSBackend(host, port, root, timeout, sf.log)
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (sf *StorageBackendFactory) createS3Backend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("uri", u.Redacted()))

	bucketName := u.Host
	if bucketName == "" {
		return nil, fmt.Errorf("%w: missing bucket name", interfaces.ErrInvalidLocationURI)
	}
	prefix := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, sf.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, u.String())
	}

	return NewFileBackend(path, sf.log)
}

// createVaultBackend creates a Vault KV v2 backend.
// URI format: vault://host:port/mount/data/path?tls=false&token_env=VAULT_TOKEN
// The token is read from the named environment variable (VAULT_TOKEN by default).
func (sf *StorageBackendFactory) createVaultBackend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("uri", u.Redacted()))

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return nil, fmt.Errorf("%w: missing Vault mount path", interfaces.ErrInvalidLocationURI)
	}
	mountPath := parts[0]
	dataPath := ""
	if len(parts) == 2 {
		dataPath = parts[1]
	}

	query := u.Query()
	scheme := "https"
	if query.Get("tls") == "false" {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)

	tokenEnv := query.Get("token_env")
	if tokenEnv == "" {
		tokenEnv = "VAULT_TOKEN"
	}

	var clientCert *tls.Certificate
	if sf.clientCertFn != nil {
		cert, err := sf.clientCertFn()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain client certificate: %w", err)
		}
		clientCert = &cert
	}

	return NewVaultBackend(address, mountPath, dataPath, os.Getenv(tokenEnv), clientCert, sf.log)
}

// createHTTPBackend creates a backend for a remote storage service.
// URI format: https://storage.example.com/base?retries=3&timeout=10s
func (sf *StorageBackendFactory) createHTTPBackend(u *url.URL) (interfaces.StorageBackend, error) {
	sf.log.Debug("Creating HTTP backend", slog.String("uri", u.Redacted()))

	query := u.Query()
	retries := 3
	if raw := query.Get("retries"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid retries %q", interfaces.ErrInvalidLocationURI, raw)
		}
		retries = n
	}

	timeout := 10 * time.Second
	if raw := query.Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = parsed
	}

	var tlsConfig *tls.Config
	if sf.clientCertFn != nil {
		cert, err := sf.clientCertFn()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain client certificate: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	base := url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host, Path: u.Path}
	return NewHTTPBackend(base.String(), retries, timeout, tlsConfig, sf.log)
}
