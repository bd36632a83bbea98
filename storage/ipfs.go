package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/redact-client/interfaces"
)

// IPFSBackend stores records in the mutable file system (MFS) of an IPFS
// node, so paths stay stable while content changes.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the node API
// at host:port. Records live under root in MFS.
func NewIPFSBackend(host, port, root string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	root = "/" + strings.Trim(root, "/")

	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s?timeout=%s", apiURL, root, timeout),
	}, nil
}

// Fetch reads the record for p from MFS. Returns ErrNotFound if the file
// doesn't exist or ErrBackendUnavailable if the node is not reachable.
func (b *IPFSBackend) Fetch(ctx context.Context, p interfaces.DataPath) ([]byte, error) {
	start := time.Now()
	mfsPath := b.mfsPath(p)

	reader, err := b.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "not found") {
			b.log.Debug("Record not found in IPFS",
				slog.String("path", mfsPath),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrNotFound
		}

		b.log.Error("Failed to read record from IPFS",
			slog.String("path", mfsPath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched record from IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store writes the record for p into MFS, creating parent directories and
// truncating any previous content.
func (b *IPFSBackend) Store(ctx context.Context, p interfaces.DataPath, data []byte) error {
	mfsPath := b.mfsPath(p)

	err := b.shell.FilesWrite(ctx, mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return fmt.Errorf("failed to write record to IPFS: %w", err)
	}

	b.log.Debug("Stored record in IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)))

	return nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) mfsPath(p interfaces.DataPath) string {
	return path.Join(b.root, recordKey(p)+".json")
}
