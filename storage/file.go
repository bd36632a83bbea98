package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/redact-client/interfaces"
)

// FileBackend implements a storage backend using the local file system.
// Each record is a single file under the records directory.
type FileBackend struct {
	baseDir     string
	recordsDir  string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory.
// It creates the records directory if it doesn't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	recordsDir := filepath.Join(baseDir, "records")
	if err := os.MkdirAll(recordsDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		recordsDir:  recordsDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch reads the record at path. Returns ErrNotFound if the file doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context, path interfaces.DataPath) ([]byte, error) {
	filePath := b.filePath(path)

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched record from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Store writes the record at path, replacing any previous content atomically.
func (b *FileBackend) Store(ctx context.Context, path interfaces.DataPath, data []byte) error {
	filePath := b.filePath(path)

	tmp, err := os.CreateTemp(b.recordsDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	b.log.Debug("Stored record in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.recordsDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) filePath(path interfaces.DataPath) string {
	return filepath.Join(b.recordsDir, recordKey(path)+".json")
}
