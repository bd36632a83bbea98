package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const gcmNonceSize = 12

// EncryptWithPublicKey encrypts data using ECIES with the given public key PEM.
// A fresh ephemeral key is generated for each call.
func EncryptWithPublicKey(publicKeyPEM PubkeyPEM, data []byte) ([]byte, error) {
	publicKey, err := publicKeyPEM.ECDHKey()
	if err != nil {
		return nil, err
	}

	ephemeralKey, err := publicKey.Curve().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	shared, err := ephemeralKey.ECDH(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}

	aesGCM, err := newGCM(shared)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	ephemeralPublic := ephemeralKey.PublicKey().Bytes()

	// [ephemeral key length (2 bytes)][ephemeral key][iv][ciphertext]
	out := make([]byte, 2, 2+len(ephemeralPublic)+gcmNonceSize+len(data)+aesGCM.Overhead())
	binary.BigEndian.PutUint16(out, uint16(len(ephemeralPublic)))
	out = append(out, ephemeralPublic...)
	out = append(out, iv...)
	return aesGCM.Seal(out, iv, data, nil), nil
}

// EncryptWithPrivateKey encrypts to the public half of privateKeyPEM.
func EncryptWithPrivateKey(privateKeyPEM PrivkeyPEM, data []byte) ([]byte, error) {
	pub, err := privateKeyPEM.Pubkey()
	if err != nil {
		return nil, err
	}
	return EncryptWithPublicKey(pub, data)
}

// DecryptWithPrivateKey decrypts data produced by EncryptWithPublicKey.
func DecryptWithPrivateKey(privateKeyPEM PrivkeyPEM, encryptedData []byte) ([]byte, error) {
	privateKey, err := privateKeyPEM.ECDHKey()
	if err != nil {
		return nil, err
	}

	if len(encryptedData) < 2 {
		return nil, errors.New("encrypted data too short")
	}

	ephemeralKeyLen := int(binary.BigEndian.Uint16(encryptedData[0:2]))
	if len(encryptedData) < 2+ephemeralKeyLen+gcmNonceSize {
		return nil, errors.New("encrypted data has invalid format")
	}

	ephemeralPublic, err := privateKey.Curve().NewPublicKey(encryptedData[2 : 2+ephemeralKeyLen])
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ephemeral public key: %w", err)
	}

	shared, err := privateKey.ECDH(ephemeralPublic)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}

	aesGCM, err := newGCM(shared)
	if err != nil {
		return nil, err
	}

	ivStart := 2 + ephemeralKeyLen
	iv := encryptedData[ivStart : ivStart+gcmNonceSize]
	ciphertext := encryptedData[ivStart+gcmNonceSize:]

	plaintext, err := aesGCM.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(shared []byte) (cipher.AEAD, error) {
	key := sha256.Sum256(shared)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
