package cryptoutils

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// PrivkeyPEM is an EC private key in PEM format.
type PrivkeyPEM []byte

// PubkeyPEM is a PKIX public key in PEM format.
type PubkeyPEM []byte

// ECDSAKey parses the private key, accepting both SEC1 and PKCS#8 encodings.
func (priv PrivkeyPEM) ECDSAKey() (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(priv)
	if block == nil {
		return nil, errors.New("failed to decode private key PEM")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type: %T", parsed)
	}
	return key, nil
}

// ECDHKey returns the private key as an ECDH key on its curve.
func (priv PrivkeyPEM) ECDHKey() (*ecdh.PrivateKey, error) {
	key, err := priv.ECDSAKey()
	if err != nil {
		return nil, err
	}
	return key.ECDH()
}

// Pubkey returns the PEM-encoded public half.
func (priv PrivkeyPEM) Pubkey() (PubkeyPEM, error) {
	key, err := priv.ECDSAKey()
	if err != nil {
		return nil, err
	}
	return marshalPubkey(&key.PublicKey)
}

// ECDHKey parses the public key as an ECDH key.
func (pub PubkeyPEM) ECDHKey() (*ecdh.PublicKey, error) {
	block, _ := pem.Decode(pub)
	if block == nil {
		return nil, errors.New("failed to decode public key PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}
	return key.ECDH()
}

// MarshalP256Privkey encodes a P-256 key as SEC1 PEM.
func MarshalP256Privkey(key *ecdsa.PrivateKey) (PrivkeyPEM, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

func marshalPubkey(key *ecdsa.PublicKey) (PubkeyPEM, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// RandomP256Keypair generates a fresh P-256 keypair.
func RandomP256Keypair() (PubkeyPEM, PrivkeyPEM, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	priv, err := MarshalP256Privkey(key)
	if err != nil {
		return nil, nil, err
	}

	pub, err := marshalPubkey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	return pub, priv, nil
}
