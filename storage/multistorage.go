package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/redact-client/interfaces"
)

// MultiStorageBackend implements interfaces.StorageBackend using multiple backends with fallback
type MultiStorageBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback
func NewMultiStorageBackend(backends []interfaces.StorageBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Fetch returns the record from the first available backend that has it.
// ErrNotFound is returned only when every reachable backend reports it.
func (m *MultiStorageBackend) Fetch(ctx context.Context, path interfaces.DataPath) ([]byte, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("path", string(path)))
			continue
		}

		data, err := backend.Fetch(ctx, path)
		if err == nil {
			m.log.Debug("Fetched record",
				slog.String("backend_name", backend.Name()),
				slog.String("path", string(path)),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrNotFound) {
			notFound++
			continue
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("path", string(path)),
			"err", err)
	}

	if notFound > 0 && len(errs) == 0 {
		return nil, interfaces.ErrNotFound
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no backend available", interfaces.ErrBackendUnavailable)
	}

	m.log.Error("All backends failed to fetch record",
		slog.String("path", string(path)),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("%w: all backends failed to fetch %s: %w", interfaces.ErrBackendUnavailable, path, errors.Join(errs...))
}

// Store saves the record to every backend. It succeeds only when all of them
// accepted the write; unavailable backends count as failures.
func (m *MultiStorageBackend) Store(ctx context.Context, path interfaces.DataPath, data []byte) error {
	start := time.Now()
	if len(m.backends) == 0 {
		return fmt.Errorf("%w: no backend configured", interfaces.ErrBackendUnavailable)
	}

	var errs []error
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			errs = append(errs, fmt.Errorf("%s: unavailable", backend.Name()))
			continue
		}

		if err := backend.Store(ctx, path, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				slog.String("path", string(path)),
				"err", err)
		}
	}

	if len(errs) > 0 {
		m.log.Error("Record not stored on every backend",
			slog.String("path", string(path)),
			slog.Int("failed_backends", len(errs)),
			slog.Int("backends", len(m.backends)),
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("%w: %d of %d backends failed to store %s: %w",
			interfaces.ErrBackendUnavailable, len(errs), len(m.backends), path, errors.Join(errs...))
	}

	return nil
}

// Available checks if any backend is available
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the URI of this backend
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
