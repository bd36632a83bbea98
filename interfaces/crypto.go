package interfaces

import "context"

// Cipher opens and seals byte strings under a named algorithm. Key bytes are
// algorithm specific.
type Cipher interface {
	Decrypt(ctx context.Context, algorithm Algorithm, ciphertext, key []byte) ([]byte, error)
	Encrypt(ctx context.Context, algorithm Algorithm, plaintext, key []byte) ([]byte, error)
}

// KMS derives key material deterministically from a master seed.
type KMS interface {
	// DeriveKey returns key bytes suitable for algorithm, bound to label.
	DeriveKey(algorithm Algorithm, label string) ([]byte, error)
}
