package kms

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"

	"github.com/ruteri/redact-client/cryptoutils"
	"github.com/ruteri/redact-client/interfaces"
	"github.com/ruteri/redact-client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSeed(t *testing.T) []byte {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err, "Failed to generate test seed")
	return seed
}

func TestSplitSeed(t *testing.T) {
	seed := randomSeed(t)

	shares, err := SplitSeed(seed, 5, 3)
	require.NoError(t, err)
	assert.Len(t, shares, 5)

	_, err = SplitSeed(seed, 5, 6)
	assert.Error(t, err, "Should fail when threshold > total shares")

	_, err = SplitSeed(seed, 5, 1)
	assert.Error(t, err, "Should fail when threshold < 2")

	_, err = SplitSeed(seed[:16], 5, 3)
	assert.Error(t, err, "Should fail with seed < 32 bytes")
}

func TestSeedFromShares(t *testing.T) {
	seed := randomSeed(t)
	shares, err := SplitSeed(seed, 5, 3)
	require.NoError(t, err)

	recovered, err := SeedFromShares([][]byte{shares[4], shares[0], shares[2]})
	require.NoError(t, err)
	assert.Equal(t, seed, recovered)

	encoded := []string{hex.EncodeToString(shares[1]), hex.EncodeToString(shares[3]), " " + hex.EncodeToString(shares[0]) + "\n"}
	parsed, err := ParseHexShares(encoded)
	require.NoError(t, err)
	recovered, err = SeedFromShares(parsed)
	require.NoError(t, err)
	assert.Equal(t, seed, recovered)

	_, err = SeedFromShares(shares[:1])
	assert.Error(t, err)

	_, err = ParseHexShares([]string{"zz"})
	assert.Error(t, err)
}

func TestSimpleKMS_DeriveKey(t *testing.T) {
	seed := randomSeed(t)
	k, err := NewSimpleKMS(seed)
	require.NoError(t, err)

	_, err = NewSimpleKMS(seed[:31])
	assert.Error(t, err)

	first, err := k.DeriveKey(cryptoutils.AlgorithmSecretbox, ".keys.a.")
	require.NoError(t, err)
	again, err := k.DeriveKey(cryptoutils.AlgorithmSecretbox, ".keys.a.")
	require.NoError(t, err)
	other, err := k.DeriveKey(cryptoutils.AlgorithmSecretbox, ".keys.b.")
	require.NoError(t, err)

	assert.Len(t, first, 32)
	assert.Equal(t, first, again, "derivation must be deterministic")
	assert.NotEqual(t, first, other, "labels must separate keys")

	eciesKey, err := k.DeriveKey(cryptoutils.AlgorithmECIES, ".keys.a.")
	require.NoError(t, err)
	suite := cryptoutils.NewSuite()
	ciphertext, err := suite.Encrypt(context.Background(), cryptoutils.AlgorithmECIES, []byte("hi"), eciesKey)
	require.NoError(t, err)
	plaintext, err := suite.Decrypt(context.Background(), cryptoutils.AlgorithmECIES, ciphertext, eciesKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), plaintext)

	_, err = k.DeriveKey(cryptoutils.AlgorithmAge, ".keys.a.")
	assert.ErrorIs(t, err, interfaces.ErrUnknownAlgorithm)
}

func TestBootstrapDefaultKey(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)
	store := storage.NewRecordStore(backend)

	k, err := NewSimpleKMS(randomSeed(t))
	require.NoError(t, err)

	created, err := BootstrapDefaultKey(ctx, store, DefaultKeyPath, cryptoutils.AlgorithmSecretbox, k, logger)
	require.NoError(t, err)
	assert.True(t, created)

	record, err := store.Fetch(ctx, DefaultKeyPath)
	require.NoError(t, err)
	plain, ok := record.(interfaces.Plain)
	require.True(t, ok)
	assert.Equal(t, interfaces.TypeKey, plain.Type)

	expected, err := k.DeriveKey(cryptoutils.AlgorithmSecretbox, string(DefaultKeyPath))
	require.NoError(t, err)
	assert.Equal(t, expected, plain.Bytes)

	created, err = BootstrapDefaultKey(ctx, store, DefaultKeyPath, cryptoutils.AlgorithmSecretbox, k, logger)
	require.NoError(t, err)
	assert.False(t, created, "existing key must be kept")

	created, err = BootstrapDefaultKey(ctx, store, ".keys.age.", cryptoutils.AlgorithmAge, k, logger)
	require.NoError(t, err)
	assert.True(t, created, "age keys fall back to random generation")
}
