package kms

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/ruteri/redact-client/cryptoutils"
	"github.com/ruteri/redact-client/interfaces"
	"golang.org/x/crypto/hkdf"
)

// SimpleKMS provides deterministic key derivation from a master seed.
type SimpleKMS struct {
	masterKey []byte
	mu        sync.RWMutex
}

// NewSimpleKMS creates a new instance with the provided master key.
// The master key must be at least 32 bytes long.
func NewSimpleKMS(masterKey []byte) (*SimpleKMS, error) {
	if len(masterKey) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}

	key := make([]byte, len(masterKey))
	copy(key, masterKey)
	return &SimpleKMS{masterKey: key}, nil
}

// DeriveKey returns key bytes for algorithm bound to label.
func (k *SimpleKMS) DeriveKey(algorithm interfaces.Algorithm, label string) ([]byte, error) {
	seed, err := k.expand(algorithm, label, 32)
	if err != nil {
		return nil, err
	}

	switch algorithm {
	case cryptoutils.AlgorithmSecretbox:
		return seed, nil
	case cryptoutils.AlgorithmECIES:
		key, err := k.deriveP256Key(algorithm, label)
		if err != nil {
			return nil, err
		}
		return cryptoutils.MarshalP256Privkey(key)
	default:
		return nil, fmt.Errorf("%w: %q cannot be derived", interfaces.ErrUnknownAlgorithm, algorithm)
	}
}

func (k *SimpleKMS) expand(algorithm interfaces.Algorithm, label string, size int) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	info := fmt.Sprintf("redact-client/%s/%s", algorithm, label)
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, k.masterKey, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return out, nil
}

// deriveP256Key maps derived bytes onto a valid P-256 scalar in [1, N-1].
func (k *SimpleKMS) deriveP256Key(algorithm interfaces.Algorithm, label string) (*ecdsa.PrivateKey, error) {
	// 16 extra bytes make the modular bias negligible.
	seed, err := k.expand(algorithm, label, 48)
	if err != nil {
		return nil, err
	}

	curve := elliptic.P256()
	nMinusOne := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	d := new(big.Int).SetBytes(seed)
	d.Mod(d, nMinusOne)
	d.Add(d, big.NewInt(1))

	privateKey := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve},
		D:         d,
	}
	privateKey.PublicKey.X, privateKey.PublicKey.Y = curve.ScalarBaseMult(d.FillBytes(make([]byte, 32)))

	return privateKey, nil
}
