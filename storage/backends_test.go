package storage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/redact-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	assert.True(t, backend.Available(ctx))

	_, err = backend.Fetch(ctx, ".missing.")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, backend.Store(ctx, ".profile.", []byte("parent")))
	require.NoError(t, backend.Store(ctx, ".profile.firstName.", []byte("v1")))
	require.NoError(t, backend.Store(ctx, ".profile.firstName.", []byte("v2")))

	data, err := backend.Fetch(ctx, ".profile.firstName.")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	data, err = backend.Fetch(ctx, ".profile.")
	require.NoError(t, err)
	assert.Equal(t, []byte("parent"), data)
}

// fakeStorageService mimics a remote storage service, failing the first
// failFirst requests with a 503.
type fakeStorageService struct {
	mu        sync.Mutex
	records   map[string][]byte
	failFirst int
	requests  int
}

func (f *fakeStorageService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests++
	if r.Method != http.MethodHead && f.failFirst > 0 {
		f.failFirst--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.records[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	case http.MethodPost:
		data, _ := io.ReadAll(r.Body)
		f.records[r.URL.Path] = data
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestHTTPBackend(t *testing.T) {
	ctx := context.Background()
	service := &fakeStorageService{records: map[string][]byte{}}
	server := httptest.NewServer(service)
	defer server.Close()

	backend, err := NewHTTPBackend(server.URL, 3, 5*time.Second, nil, testLogger())
	require.NoError(t, err)
	assert.True(t, backend.Available(ctx))

	_, err = backend.Fetch(ctx, ".missing.")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, backend.Store(ctx, ".profile.firstName.", []byte("record")))

	data, err := backend.Fetch(ctx, ".profile.firstName.")
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), data)
	assert.Contains(t, service.records, "/data/.profile.firstName.")
}

func TestHTTPBackend_Retries(t *testing.T) {
	ctx := context.Background()
	service := &fakeStorageService{
		records:   map[string][]byte{"/data/.a.": []byte("record")},
		failFirst: 2,
	}
	server := httptest.NewServer(service)
	defer server.Close()

	backend, err := NewHTTPBackend(server.URL, 3, 5*time.Second, nil, testLogger())
	require.NoError(t, err)

	data, err := backend.Fetch(ctx, ".a.")
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), data)
	assert.Equal(t, 3, service.requests)
}

func TestHTTPBackend_RetriesExhausted(t *testing.T) {
	service := &fakeStorageService{records: map[string][]byte{}, failFirst: 10}
	server := httptest.NewServer(service)
	defer server.Close()

	backend, err := NewHTTPBackend(server.URL, 1, 5*time.Second, nil, testLogger())
	require.NoError(t, err)

	_, err = backend.Fetch(context.Background(), ".a.")
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}

func TestRecordStore(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	store := NewRecordStore(backend)

	_, err = store.Fetch(ctx, ".missing.")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	ref := interfaces.Reference{Path: ".profile.email."}
	require.NoError(t, store.Store(ctx, ".contact.", ref))

	got, err := store.Fetch(ctx, ".contact.")
	require.NoError(t, err)
	assert.Equal(t, ref, got)

	require.NoError(t, backend.Store(ctx, ".corrupt.", []byte("not json")))
	_, err = store.Fetch(ctx, ".corrupt.")
	assert.ErrorIs(t, err, interfaces.ErrInvalidDescriptor)
}

func TestStorageBackendFactory(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())
	dir := t.TempDir()

	tests := []struct {
		uri      string
		wantType any
		wantErr  bool
	}{
		{uri: "file://" + dir, wantType: &FileBackend{}},
		{uri: "s3://bucket/prefix?region=eu-west-1", wantType: &S3Backend{}},
		{uri: "ipfs://127.0.0.1:5001/redact?timeout=5s", wantType: &IPFSBackend{}},
		{uri: "vault://127.0.0.1:8200/secret/redact?tls=false", wantType: &VaultBackend{}},
		{uri: "https://storage.example.com/base?retries=2", wantType: &HTTPBackend{}},
		{uri: "ipfs://127.0.0.1:5001/?timeout=soon", wantErr: true},
		{uri: "https://storage.example.com/?retries=-1", wantErr: true},
		{uri: "vault://127.0.0.1:8200", wantErr: true},
		{uri: "s3:///prefix", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			location, err := interfaces.NewStorageBackendLocation(tt.uri)
			require.NoError(t, err)

			backend, err := factory.StorageBackendFor(location)
			if tt.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, backend)
		})
	}

	_, err := interfaces.NewStorageBackendLocation("ftp://example.com")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestStorageBackendFactory_Multi(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())

	first, err := interfaces.NewStorageBackendLocation("file://" + t.TempDir())
	require.NoError(t, err)
	second, err := interfaces.NewStorageBackendLocation("file://" + t.TempDir())
	require.NoError(t, err)

	backend, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{first, second})
	require.NoError(t, err)
	assert.IsType(t, &MultiStorageBackend{}, backend)

	single, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{first})
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, single)

	_, err = factory.CreateMultiBackend(nil)
	assert.Error(t, err)
}
