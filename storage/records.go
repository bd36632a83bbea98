package storage

import (
	"context"
	"fmt"

	"github.com/ruteri/redact-client/interfaces"
)

// RecordStore encodes descriptors onto a byte backend.
type RecordStore struct {
	backend interfaces.StorageBackend
}

// NewRecordStore wraps backend as an interfaces.DescriptorStore.
func NewRecordStore(backend interfaces.StorageBackend) *RecordStore {
	return &RecordStore{backend: backend}
}

// Fetch returns the descriptor stored at path or interfaces.ErrNotFound.
func (s *RecordStore) Fetch(ctx context.Context, path interfaces.DataPath) (interfaces.Descriptor, error) {
	data, err := s.backend.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	d, err := interfaces.UnmarshalDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("record at %s: %w", path, err)
	}
	return d, nil
}

// Store encodes d and replaces the record at path.
func (s *RecordStore) Store(ctx context.Context, path interfaces.DataPath, d interfaces.Descriptor) error {
	data, err := interfaces.MarshalDescriptor(d)
	if err != nil {
		return err
	}
	return s.backend.Store(ctx, path, data)
}

// Backend returns the underlying byte backend.
func (s *RecordStore) Backend() interfaces.StorageBackend {
	return s.backend
}
