// Package cryptoutils implements the sealing algorithms used for stored
// records and exposes them through Suite, an implementation of
// interfaces.Cipher.
//
// # Algorithms
//
//   - secretbox: NaCl secretbox (XSalsa20-Poly1305) with a 32-byte key.
//     Ciphertext format: [nonce (24 bytes)][sealed box]
//   - ecies-p256: ECDH over NIST P-256, SHA-256 key derivation and AES-GCM.
//     The key is an EC private key in PEM format; encryption uses its public half.
//     Ciphertext format: [ephemeral key length (2 bytes)][ephemeral key][iv (12 bytes)][ciphertext]
//   - age-x25519: age file encryption. The key is an AGE-SECRET-KEY-1... identity.
//
// Decryption failures are reported as interfaces.ErrDecrypt and never include
// key or plaintext material.
package cryptoutils
