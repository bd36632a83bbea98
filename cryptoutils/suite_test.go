package cryptoutils

import (
	"context"
	"crypto/x509"
	"testing"

	"github.com/ruteri/redact-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuite_RoundTrip(t *testing.T) {
	suite := NewSuite()
	ctx := context.Background()

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "Simple string", data: []byte("This is a secret message")},
		{name: "Encoded descriptor", data: []byte(`{"plain":{"bytes":"QWxpY2U=","type":"string"}}`)},
		{name: "Binary data", data: []byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE, 0xFD}},
		{name: "Empty data", data: []byte{}},
		{name: "Long data", data: make([]byte, 64*1024)},
	}

	for _, alg := range Algorithms {
		key, err := GenerateKey(alg)
		require.NoError(t, err)

		for _, tc := range testCases {
			t.Run(string(alg)+"/"+tc.name, func(t *testing.T) {
				ciphertext, err := suite.Encrypt(ctx, alg, tc.data, key)
				require.NoError(t, err)
				assert.NotEqual(t, tc.data, ciphertext)

				plaintext, err := suite.Decrypt(ctx, alg, ciphertext, key)
				require.NoError(t, err)
				assert.Equal(t, len(tc.data), len(plaintext))
				if len(tc.data) > 0 {
					assert.Equal(t, tc.data, plaintext)
				}
			})
		}
	}
}

func TestSuite_WrongKey(t *testing.T) {
	suite := NewSuite()
	ctx := context.Background()

	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			key, err := GenerateKey(alg)
			require.NoError(t, err)
			otherKey, err := GenerateKey(alg)
			require.NoError(t, err)

			ciphertext, err := suite.Encrypt(ctx, alg, []byte("secret"), key)
			require.NoError(t, err)

			_, err = suite.Decrypt(ctx, alg, ciphertext, otherKey)
			assert.ErrorIs(t, err, interfaces.ErrDecrypt)
		})
	}
}

func TestSuite_Tampered(t *testing.T) {
	suite := NewSuite()
	ctx := context.Background()

	key, err := GenerateKey(AlgorithmSecretbox)
	require.NoError(t, err)

	ciphertext, err := suite.Encrypt(ctx, AlgorithmSecretbox, []byte("secret"), key)
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xff

	_, err = suite.Decrypt(ctx, AlgorithmSecretbox, ciphertext, key)
	assert.ErrorIs(t, err, interfaces.ErrDecrypt)

	_, err = suite.Decrypt(ctx, AlgorithmSecretbox, []byte("short"), key)
	assert.ErrorIs(t, err, interfaces.ErrDecrypt)
}

func TestSuite_InvalidKeys(t *testing.T) {
	suite := NewSuite()
	ctx := context.Background()

	_, err := suite.Encrypt(ctx, AlgorithmSecretbox, []byte("x"), []byte("too short"))
	assert.ErrorIs(t, err, interfaces.ErrEncrypt)

	_, err = suite.Encrypt(ctx, AlgorithmECIES, []byte("x"), []byte("not a pem"))
	assert.ErrorIs(t, err, interfaces.ErrEncrypt)

	_, err = suite.Encrypt(ctx, AlgorithmAge, []byte("x"), []byte("AGE-SECRET-KEY-1INVALID"))
	assert.ErrorIs(t, err, interfaces.ErrEncrypt)
}

func TestSuite_UnknownAlgorithm(t *testing.T) {
	suite := NewSuite()

	_, err := suite.Decrypt(context.Background(), "rot13", []byte("x"), []byte("k"))
	assert.ErrorIs(t, err, interfaces.ErrDecrypt)
	assert.ErrorIs(t, err, interfaces.ErrUnknownAlgorithm)

	_, err = GenerateKey("rot13")
	assert.ErrorIs(t, err, interfaces.ErrUnknownAlgorithm)
}

func TestEncryptWithPublicKey(t *testing.T) {
	pub, priv, err := RandomP256Keypair()
	require.NoError(t, err)

	derived, err := priv.Pubkey()
	require.NoError(t, err)
	assert.Equal(t, pub, derived)

	ciphertext, err := EncryptWithPublicKey(pub, []byte("hello"))
	require.NoError(t, err)

	plaintext, err := DecryptWithPrivateKey(priv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plaintext)

	_, err = DecryptWithPrivateKey(priv, ciphertext[:10])
	assert.Error(t, err)
}

func TestRandomCert(t *testing.T) {
	cert, err := RandomCert("localhost", "localhost", "127.0.0.1")
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "localhost", parsed.Subject.CommonName)
	assert.Contains(t, parsed.DNSNames, "localhost")
	assert.Len(t, parsed.IPAddresses, 1)
}
