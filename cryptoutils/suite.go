package cryptoutils

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ruteri/redact-client/interfaces"
)

const (
	AlgorithmSecretbox interfaces.Algorithm = "secretbox"
	AlgorithmECIES     interfaces.Algorithm = "ecies-p256"
	AlgorithmAge       interfaces.Algorithm = "age-x25519"
)

// Algorithms lists every algorithm Suite understands.
var Algorithms = []interfaces.Algorithm{AlgorithmSecretbox, AlgorithmECIES, AlgorithmAge}

type sealFunc func(key, data []byte) ([]byte, error)

// Suite dispatches to the sealing algorithm named by each call.
type Suite struct {
	seal map[interfaces.Algorithm]sealFunc
	open map[interfaces.Algorithm]sealFunc
}

// NewSuite returns a Suite supporting all built-in algorithms.
func NewSuite() *Suite {
	return &Suite{
		seal: map[interfaces.Algorithm]sealFunc{
			AlgorithmSecretbox: SecretboxSeal,
			AlgorithmECIES: func(key, data []byte) ([]byte, error) {
				return EncryptWithPrivateKey(PrivkeyPEM(key), data)
			},
			AlgorithmAge: AgeSeal,
		},
		open: map[interfaces.Algorithm]sealFunc{
			AlgorithmSecretbox: SecretboxOpen,
			AlgorithmECIES: func(key, data []byte) ([]byte, error) {
				return DecryptWithPrivateKey(PrivkeyPEM(key), data)
			},
			AlgorithmAge: AgeOpen,
		},
	}
}

// Decrypt opens ciphertext. Any failure is reported as interfaces.ErrDecrypt.
func (s *Suite) Decrypt(ctx context.Context, algorithm interfaces.Algorithm, ciphertext, key []byte) ([]byte, error) {
	open, ok := s.open[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", interfaces.ErrDecrypt, interfaces.ErrUnknownAlgorithm, algorithm)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plaintext, err := open(key, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", interfaces.ErrDecrypt, algorithm, err)
	}
	return plaintext, nil
}

// Encrypt seals plaintext. Any failure is reported as interfaces.ErrEncrypt.
func (s *Suite) Encrypt(ctx context.Context, algorithm interfaces.Algorithm, plaintext, key []byte) ([]byte, error) {
	seal, ok := s.seal[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", interfaces.ErrEncrypt, interfaces.ErrUnknownAlgorithm, algorithm)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ciphertext, err := seal(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", interfaces.ErrEncrypt, algorithm, err)
	}
	return ciphertext, nil
}

// GenerateKey returns fresh random key material for algorithm.
func GenerateKey(algorithm interfaces.Algorithm) ([]byte, error) {
	switch algorithm {
	case AlgorithmSecretbox:
		key := make([]byte, SecretboxKeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, err
		}
		return key, nil
	case AlgorithmECIES:
		_, priv, err := RandomP256Keypair()
		return priv, err
	case AlgorithmAge:
		return GenerateAgeIdentity()
	default:
		return nil, fmt.Errorf("%w: %q", interfaces.ErrUnknownAlgorithm, algorithm)
	}
}
