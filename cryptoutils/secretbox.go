package cryptoutils

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	SecretboxKeySize   = 32
	secretboxNonceSize = 24
)

// SecretboxSeal encrypts plaintext under a 32-byte key. The random nonce is
// prepended to the sealed box.
func SecretboxSeal(key, plaintext []byte) ([]byte, error) {
	k, err := secretboxKey(key)
	if err != nil {
		return nil, err
	}

	var nonce [secretboxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, k), nil
}

// SecretboxOpen reverses SecretboxSeal.
func SecretboxOpen(key, ciphertext []byte) ([]byte, error) {
	k, err := secretboxKey(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < secretboxNonceSize+secretbox.Overhead {
		return nil, errors.New("ciphertext too short")
	}

	var nonce [secretboxNonceSize]byte
	copy(nonce[:], ciphertext[:secretboxNonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[secretboxNonceSize:], &nonce, k)
	if !ok {
		return nil, errors.New("secretbox authentication failed")
	}
	return plaintext, nil
}

func secretboxKey(key []byte) (*[SecretboxKeySize]byte, error) {
	if len(key) != SecretboxKeySize {
		return nil, fmt.Errorf("secretbox key must be %d bytes, got %d", SecretboxKeySize, len(key))
	}
	var k [SecretboxKeySize]byte
	copy(k[:], key)
	return &k, nil
}
