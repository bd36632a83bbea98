package cryptoutils

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// GenerateAgeIdentity returns a new identity in AGE-SECRET-KEY-1... format.
func GenerateAgeIdentity() ([]byte, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	return []byte(identity.String()), nil
}

func parseAgeIdentity(key []byte) (*age.X25519Identity, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(key)))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return identity, nil
}

// AgeSeal encrypts plaintext to the recipient of the given identity.
func AgeSeal(identityKey, plaintext []byte) ([]byte, error) {
	identity, err := parseAgeIdentity(identityKey)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	writer, err := age.Encrypt(&out, identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return out.Bytes(), nil
}

// AgeOpen decrypts ciphertext with the given identity.
func AgeOpen(identityKey, ciphertext []byte) ([]byte, error) {
	identity, err := parseAgeIdentity(identityKey)
	if err != nil {
		return nil, err
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted payload: %w", err)
	}
	return plaintext, nil
}
