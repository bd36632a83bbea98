package resolver

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ruteri/redact-client/cryptoutils"
	"github.com/ruteri/redact-client/interfaces"
	"github.com/ruteri/redact-client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")

type memoryStore struct {
	mu      sync.Mutex
	records map[interfaces.DataPath]interfaces.Descriptor
	writes  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[interfaces.DataPath]interfaces.Descriptor)}
}

func (s *memoryStore) Fetch(_ context.Context, path interfaces.DataPath) (interfaces.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.records[path]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return d, nil
}

func (s *memoryStore) Store(_ context.Context, path interfaces.DataPath, d interfaces.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[path] = d
	s.writes++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seal(t *testing.T, inner interfaces.Descriptor, alg interfaces.Algorithm, key []byte, keyDesc interfaces.Descriptor) interfaces.Sealed {
	t.Helper()
	encoded, err := interfaces.MarshalDescriptor(inner)
	require.NoError(t, err)
	ciphertext, err := cryptoutils.NewSuite().Encrypt(context.Background(), alg, encoded, key)
	require.NoError(t, err)
	return interfaces.Sealed{Ciphertext: ciphertext, Algorithm: alg, Key: keyDesc}
}

func newKey(t *testing.T, alg interfaces.Algorithm) []byte {
	t.Helper()
	key, err := cryptoutils.GenerateKey(alg)
	require.NoError(t, err)
	return key
}

func keyRecord(key []byte) interfaces.Plain {
	return interfaces.Plain{Bytes: key, Type: interfaces.TypeKey}
}

func newTestEngine(store interfaces.DescriptorStore, cfg Config) *Engine {
	return NewEngine(store, cryptoutils.NewSuite(), cfg, testLogger())
}

func TestResolve_Plain(t *testing.T) {
	store := newMemoryStore()
	store.records[".profile.firstName."] = interfaces.Plain{Bytes: []byte("Alice"), Type: interfaces.TypeString}
	store.records[".profile.age."] = interfaces.Plain{Bytes: []byte("42"), Type: interfaces.TypeU64}

	engine := newTestEngine(store, DefaultConfig())
	ctx := context.Background()

	v, err := engine.Resolve(ctx, ".profile.firstName.", interfaces.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "Alice", v.String)

	v, err = engine.Resolve(ctx, ".profile.age.", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v.U64)

	_, err = engine.Resolve(ctx, ".profile.lastName.", interfaces.TypeString)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = engine.Resolve(ctx, "profile", interfaces.TypeString)
	assert.ErrorIs(t, err, interfaces.ErrInvalidPath)
}

func TestResolve_TypeMismatch(t *testing.T) {
	store := newMemoryStore()
	store.records[".profile.age."] = interfaces.Plain{Bytes: []byte("42"), Type: interfaces.TypeU64}
	store.records[".keys.a."] = keyRecord(newKey(t, cryptoutils.AlgorithmSecretbox))

	engine := newTestEngine(store, DefaultConfig())
	ctx := context.Background()

	_, err := engine.Resolve(ctx, ".profile.age.", interfaces.TypeString)
	var mismatch *interfaces.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, interfaces.TypeU64, mismatch.Stored)
	assert.Equal(t, interfaces.TypeString, mismatch.Requested)

	// key material is never served as a user value
	_, err = engine.Resolve(ctx, ".keys.a.", "")
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, interfaces.TypeKey, mismatch.Stored)

	v, err := engine.Resolve(ctx, ".keys.a.", interfaces.TypeKey)
	require.NoError(t, err)
	assert.Len(t, v.Key, cryptoutils.SecretboxKeySize)
}

func TestResolve_ReferenceChain(t *testing.T) {
	store := newMemoryStore()
	store.records[".a."] = interfaces.Reference{Path: ".b."}
	store.records[".b."] = interfaces.Reference{Path: ".c."}
	store.records[".c."] = interfaces.Plain{Bytes: []byte("-7"), Type: interfaces.TypeI64}

	engine := newTestEngine(store, DefaultConfig())

	v, err := engine.Resolve(context.Background(), ".a.", interfaces.TypeI64)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), v.I64)
}

func TestResolve_ReferenceCycle(t *testing.T) {
	store := newMemoryStore()
	store.records[".x."] = interfaces.Reference{Path: ".y."}
	store.records[".y."] = interfaces.Reference{Path: ".x."}
	store.records[".self."] = interfaces.Reference{Path: ".self."}

	engine := newTestEngine(store, DefaultConfig())

	_, err := engine.Resolve(context.Background(), ".x.", "")
	assert.ErrorIs(t, err, interfaces.ErrCycleDetected)

	_, err = engine.Resolve(context.Background(), ".self.", "")
	assert.ErrorIs(t, err, interfaces.ErrCycleDetected)
}

func TestResolve_SealedPerAlgorithm(t *testing.T) {
	for _, alg := range cryptoutils.Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			key := newKey(t, alg)
			store := newMemoryStore()
			store.records[".keys.k."] = keyRecord(key)
			store.records[".profile.email."] = seal(t,
				interfaces.Plain{Bytes: []byte("alice@example.com"), Type: interfaces.TypeString},
				alg, key, interfaces.Reference{Path: ".keys.k."})

			engine := newTestEngine(store, DefaultConfig())

			v, err := engine.Resolve(context.Background(), ".profile.email.", interfaces.TypeString)
			require.NoError(t, err)
			assert.Equal(t, "alice@example.com", v.String)
		})
	}
}

func TestResolve_NestedSealing(t *testing.T) {
	inner := newKey(t, cryptoutils.AlgorithmAge)
	outer := newKey(t, cryptoutils.AlgorithmSecretbox)

	store := newMemoryStore()
	store.records[".keys.inner."] = keyRecord(inner)
	store.records[".keys.outer."] = keyRecord(outer)

	// sealed inside sealed inside a reference, each layer with its own key
	innermost := seal(t, interfaces.Plain{Bytes: []byte("true"), Type: interfaces.TypeBool},
		cryptoutils.AlgorithmAge, inner, interfaces.Reference{Path: ".keys.inner."})
	store.records[".flags.vip."] = seal(t, innermost, cryptoutils.AlgorithmSecretbox, outer, interfaces.Reference{Path: ".keys.outer."})
	store.records[".alias."] = interfaces.Reference{Path: ".flags.vip."}

	engine := newTestEngine(store, DefaultConfig())

	v, err := engine.Resolve(context.Background(), ".alias.", interfaces.TypeBool)
	require.NoError(t, err)
	assert.True(t, v.Bool)
}

func TestResolve_SealedKeyChainDepth(t *testing.T) {
	k2 := newKey(t, cryptoutils.AlgorithmSecretbox)
	k1 := newKey(t, cryptoutils.AlgorithmSecretbox)

	store := newMemoryStore()
	store.records[".keys.k2."] = keyRecord(k2)
	store.records[".keys.k1."] = seal(t, keyRecord(k1), cryptoutils.AlgorithmSecretbox, k2, interfaces.Reference{Path: ".keys.k2."})
	store.records[".a."] = seal(t, interfaces.Plain{Bytes: []byte("2.5"), Type: interfaces.TypeF64},
		cryptoutils.AlgorithmSecretbox, k1, interfaces.Reference{Path: ".keys.k1."})

	// fetch .a., fetch .keys.k1., fetch .keys.k2., decrypt k1, decrypt .a.
	cfg := DefaultConfig()
	cfg.MaxDepth = 5
	v, err := newTestEngine(store, cfg).Resolve(context.Background(), ".a.", interfaces.TypeF64)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v.F64)

	cfg.MaxDepth = 4
	_, err = newTestEngine(store, cfg).Resolve(context.Background(), ".a.", interfaces.TypeF64)
	assert.ErrorIs(t, err, interfaces.ErrChainTooDeep)
}

func TestResolve_KeyChainCycle(t *testing.T) {
	store := newMemoryStore()
	store.records[".a."] = interfaces.Sealed{
		Ciphertext: []byte("irrelevant"),
		Algorithm:  cryptoutils.AlgorithmSecretbox,
		Key:        interfaces.Reference{Path: ".keys.loop."},
	}
	store.records[".keys.loop."] = interfaces.Reference{Path: ".a."}

	engine := newTestEngine(store, DefaultConfig())

	_, err := engine.Resolve(context.Background(), ".a.", "")
	assert.ErrorIs(t, err, interfaces.ErrCycleDetected)
}

func TestResolve_SharedWrappingKey(t *testing.T) {
	master := newKey(t, cryptoutils.AlgorithmSecretbox)
	k1 := newKey(t, cryptoutils.AlgorithmSecretbox)
	k2 := newKey(t, cryptoutils.AlgorithmAge)

	store := newMemoryStore()
	store.records[".keys.master."] = keyRecord(master)
	store.records[".keys.k1."] = seal(t, keyRecord(k1), cryptoutils.AlgorithmSecretbox, master, interfaces.Reference{Path: ".keys.master."})
	store.records[".keys.k2."] = seal(t, keyRecord(k2), cryptoutils.AlgorithmSecretbox, master, interfaces.Reference{Path: ".keys.master."})

	// both layers' keys are wrapped by .keys.master.
	inner := seal(t, interfaces.Plain{Bytes: []byte("Alice"), Type: interfaces.TypeString},
		cryptoutils.AlgorithmAge, k2, interfaces.Reference{Path: ".keys.k2."})
	store.records[".profile.name."] = seal(t, inner, cryptoutils.AlgorithmSecretbox, k1, interfaces.Reference{Path: ".keys.k1."})

	engine := newTestEngine(store, DefaultConfig())

	v, err := engine.Resolve(context.Background(), ".profile.name.", interfaces.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "Alice", v.String)

	// the same key reached twice on one key chain is still a cycle
	store.records[".keys.a."] = interfaces.Sealed{Ciphertext: []byte("x"), Algorithm: cryptoutils.AlgorithmSecretbox, Key: interfaces.Reference{Path: ".keys.b."}}
	store.records[".keys.b."] = interfaces.Sealed{Ciphertext: []byte("x"), Algorithm: cryptoutils.AlgorithmSecretbox, Key: interfaces.Reference{Path: ".keys.a."}}
	store.records[".c."] = interfaces.Sealed{Ciphertext: []byte("x"), Algorithm: cryptoutils.AlgorithmSecretbox, Key: interfaces.Reference{Path: ".keys.a."}}

	_, err = engine.Resolve(context.Background(), ".c.", "")
	assert.ErrorIs(t, err, interfaces.ErrCycleDetected)

	// the shared key does not lift the hop bound
	cfg := DefaultConfig()
	cfg.MaxDepth = 8
	_, err = newTestEngine(store, cfg).Resolve(context.Background(), ".profile.name.", interfaces.TypeString)
	assert.ErrorIs(t, err, interfaces.ErrChainTooDeep)
}

func TestResolve_DecryptFailures(t *testing.T) {
	key := newKey(t, cryptoutils.AlgorithmSecretbox)
	wrong := newKey(t, cryptoutils.AlgorithmSecretbox)

	store := newMemoryStore()
	store.records[".keys.wrong."] = keyRecord(wrong)
	store.records[".keys.text."] = interfaces.Plain{Bytes: []byte("hunter2"), Type: interfaces.TypeString}
	store.records[".a."] = seal(t, interfaces.Plain{Bytes: []byte("x"), Type: interfaces.TypeString},
		cryptoutils.AlgorithmSecretbox, key, interfaces.Reference{Path: ".keys.wrong."})
	store.records[".b."] = interfaces.Sealed{Ciphertext: []byte("x"), Algorithm: cryptoutils.AlgorithmSecretbox, Key: interfaces.Reference{Path: ".keys.text."}}
	store.records[".c."] = interfaces.Sealed{Ciphertext: []byte("x"), Algorithm: cryptoutils.AlgorithmSecretbox, Key: interfaces.Reference{Path: ".keys.missing."}}

	engine := newTestEngine(store, DefaultConfig())
	ctx := context.Background()

	_, err := engine.Resolve(ctx, ".a.", interfaces.TypeString)
	assert.ErrorIs(t, err, interfaces.ErrDecrypt)

	_, err = engine.Resolve(ctx, ".b.", interfaces.TypeString)
	assert.ErrorIs(t, err, interfaces.ErrDecrypt)

	_, err = engine.Resolve(ctx, ".c.", interfaces.TypeString)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestResolve_Media(t *testing.T) {
	store := newMemoryStore()
	store.records[".profile.photo."] = interfaces.Plain{Bytes: jpegBytes, Type: interfaces.TypeMedia, MimeType: "image/jpeg"}
	store.records[".profile.gif."] = interfaces.Plain{Bytes: []byte("GIF89a...."), Type: interfaces.TypeMedia, MimeType: "image/gif"}
	store.records[".profile.liar."] = interfaces.Plain{Bytes: []byte("<html></html>"), Type: interfaces.TypeMedia, MimeType: "image/jpeg"}

	engine := newTestEngine(store, DefaultConfig())
	ctx := context.Background()

	v, err := engine.Resolve(ctx, ".profile.photo.", interfaces.TypeMedia)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", v.Media.MimeType)
	assert.Equal(t, jpegBytes, v.Media.Data)

	_, err = engine.Resolve(ctx, ".profile.gif.", interfaces.TypeMedia)
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedMedia)

	_, err = engine.Resolve(ctx, ".profile.liar.", interfaces.TypeMedia)
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedMedia)
}

func TestSealAndStore_PlainWithoutDefaultKey(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(store, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, engine.SealAndStore(ctx, ".profile.firstName.", interfaces.Value{Type: interfaces.TypeString, String: "Bob"}))
	assert.IsType(t, interfaces.Plain{}, store.records[".profile.firstName."])

	v, err := engine.Resolve(ctx, ".profile.firstName.", interfaces.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "Bob", v.String)
}

func TestSealAndStore_DefaultKey(t *testing.T) {
	store := newMemoryStore()
	store.records[".keys.encryption.default."] = keyRecord(newKey(t, cryptoutils.AlgorithmSecretbox))

	cfg := DefaultConfig()
	cfg.DefaultKeyPath = ".keys.encryption.default."
	cfg.DefaultAlgorithm = cryptoutils.AlgorithmSecretbox
	engine := newTestEngine(store, cfg)
	ctx := context.Background()

	require.NoError(t, engine.SealAndStore(ctx, ".profile.age.", interfaces.Value{Type: interfaces.TypeU64, U64: 31}))

	sealed, ok := store.records[".profile.age."].(interfaces.Sealed)
	require.True(t, ok)
	assert.Equal(t, cryptoutils.AlgorithmSecretbox, sealed.Algorithm)
	assert.Equal(t, interfaces.Reference{Path: ".keys.encryption.default."}, sealed.Key)
	assert.NotContains(t, string(sealed.Ciphertext), "31")

	v, err := engine.Resolve(ctx, ".profile.age.", interfaces.TypeU64)
	require.NoError(t, err)
	assert.Equal(t, uint64(31), v.U64)
}

func TestSealAndStore_MissingDefaultKey(t *testing.T) {
	store := newMemoryStore()
	cfg := DefaultConfig()
	cfg.DefaultKeyPath = ".keys.encryption.default."
	cfg.DefaultAlgorithm = cryptoutils.AlgorithmSecretbox
	engine := newTestEngine(store, cfg)

	err := engine.SealAndStore(context.Background(), ".profile.age.", interfaces.Value{Type: interfaces.TypeU64, U64: 31})
	assert.ErrorIs(t, err, interfaces.ErrEncrypt)
	assert.Empty(t, store.records)
}

func TestSealAndStore_ReusesExistingKey(t *testing.T) {
	ageKey := newKey(t, cryptoutils.AlgorithmAge)
	store := newMemoryStore()
	store.records[".keys.personal."] = keyRecord(ageKey)
	store.records[".keys.encryption.default."] = keyRecord(newKey(t, cryptoutils.AlgorithmSecretbox))
	store.records[".profile.email."] = seal(t, interfaces.Plain{Bytes: []byte("old@example.com"), Type: interfaces.TypeString},
		cryptoutils.AlgorithmAge, ageKey, interfaces.Reference{Path: ".keys.personal."})
	store.records[".contact."] = interfaces.Reference{Path: ".profile.email."}

	cfg := DefaultConfig()
	cfg.DefaultKeyPath = ".keys.encryption.default."
	cfg.DefaultAlgorithm = cryptoutils.AlgorithmSecretbox
	engine := newTestEngine(store, cfg)
	ctx := context.Background()

	writes := store.writes
	require.NoError(t, engine.SealAndStore(ctx, ".contact.", interfaces.Value{Type: interfaces.TypeString, String: "new@example.com"}))
	assert.Equal(t, writes+1, store.writes)

	// the write lands at the concrete record, the reference stays
	assert.Equal(t, interfaces.Reference{Path: ".profile.email."}, store.records[".contact."])
	sealed, ok := store.records[".profile.email."].(interfaces.Sealed)
	require.True(t, ok)
	assert.Equal(t, cryptoutils.AlgorithmAge, sealed.Algorithm)
	assert.Equal(t, interfaces.Reference{Path: ".keys.personal."}, sealed.Key)

	v, err := engine.Resolve(ctx, ".contact.", interfaces.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", v.String)
}

func TestSealAndStore_Rejections(t *testing.T) {
	store := newMemoryStore()
	store.records[".loop."] = interfaces.Reference{Path: ".loop."}
	engine := newTestEngine(store, DefaultConfig())
	ctx := context.Background()

	err := engine.SealAndStore(ctx, ".loop.", interfaces.Value{Type: interfaces.TypeString, String: "x"})
	assert.ErrorIs(t, err, interfaces.ErrCycleDetected)

	err = engine.SealAndStore(ctx, ".keys.x.", interfaces.Value{Type: interfaces.TypeKey, Key: []byte("k")})
	assert.ErrorIs(t, err, interfaces.ErrInvalidDataType)

	err = engine.SealAndStore(ctx, ".photo.", interfaces.Value{Type: interfaces.TypeMedia, Media: interfaces.Media{MimeType: "image/png", Data: []byte("\x89PNG")}})
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedMedia)

	err = engine.SealAndStore(ctx, ".bad path.", interfaces.Value{Type: interfaces.TypeString})
	assert.ErrorIs(t, err, interfaces.ErrInvalidPath)
}

func TestSealAndStore_KeyRecordsAreProtected(t *testing.T) {
	defaultKey := newKey(t, cryptoutils.AlgorithmSecretbox)
	master := newKey(t, cryptoutils.AlgorithmSecretbox)
	wrapped := newKey(t, cryptoutils.AlgorithmSecretbox)

	store := newMemoryStore()
	store.records[".keys.encryption.default."] = keyRecord(defaultKey)
	store.records[".keys.master."] = keyRecord(master)
	store.records[".keys.wrapped."] = seal(t, keyRecord(wrapped), cryptoutils.AlgorithmSecretbox, master, interfaces.Reference{Path: ".keys.master."})
	store.records[".keys.alias."] = interfaces.Reference{Path: ".keys.master."}

	cfg := DefaultConfig()
	cfg.DefaultKeyPath = ".keys.encryption.default."
	cfg.DefaultAlgorithm = cryptoutils.AlgorithmSecretbox
	engine := newTestEngine(store, cfg)
	ctx := context.Background()

	require.NoError(t, engine.SealAndStore(ctx, ".profile.name.", interfaces.Value{Type: interfaces.TypeString, String: "Alice"}))

	oops := interfaces.Value{Type: interfaces.TypeString, String: "oops"}
	for _, path := range []interfaces.DataPath{".keys.encryption.default.", ".keys.master.", ".keys.wrapped.", ".keys.alias."} {
		t.Run(string(path), func(t *testing.T) {
			writes := store.writes
			assert.ErrorIs(t, engine.SealAndStore(ctx, path, oops), interfaces.ErrInvalidDataType)
			assert.ErrorIs(t, engine.SealWithKey(ctx, path, oops, cryptoutils.AlgorithmSecretbox, ".keys.master."), interfaces.ErrInvalidDataType)
			assert.Equal(t, writes, store.writes)
		})
	}

	assert.Equal(t, keyRecord(defaultKey), store.records[".keys.encryption.default."])
	v, err := engine.Resolve(ctx, ".profile.name.", interfaces.TypeString)
	require.NoError(t, err)
	assert.Equal(t, "Alice", v.String)

	// a value sealed under its own path could never be opened
	err = engine.SealWithKey(ctx, ".profile.name.", oops, cryptoutils.AlgorithmSecretbox, ".profile.name.")
	assert.ErrorIs(t, err, interfaces.ErrCycleDetected)
}

func TestSealWithKeyAndLink(t *testing.T) {
	backend, err := storage.NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	store := storage.NewRecordStore(backend)

	ctx := context.Background()
	ecKey := newKey(t, cryptoutils.AlgorithmECIES)
	require.NoError(t, store.Store(ctx, ".keys.ec.", keyRecord(ecKey)))

	engine := newTestEngine(store, DefaultConfig())

	photo := interfaces.Value{Type: interfaces.TypeMedia, Media: interfaces.Media{MimeType: "image/jpeg", Data: jpegBytes}}
	require.NoError(t, engine.SealWithKey(ctx, ".profile.photo.", photo, cryptoutils.AlgorithmECIES, ".keys.ec."))
	require.NoError(t, engine.Link(ctx, ".avatar.", ".profile.photo."))

	v, err := engine.Resolve(ctx, ".avatar.", interfaces.TypeMedia)
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, v.Media.Data)

	assert.ErrorIs(t, engine.Link(ctx, ".avatar.", ".avatar."), interfaces.ErrCycleDetected)
}
