// Package kms derives key material for sealed records from a master seed.
//
// It implements the interfaces.KMS interface:
//
//	type KMS interface {
//	    DeriveKey(algorithm Algorithm, label string) ([]byte, error)
//	}
//
// # SimpleKMS
//
// Derives keys deterministically from a master seed with HKDF-SHA256, so the
// same seed and label always produce the same key across restarts.
//
// # Shamir shares
//
// The master seed can be kept off the host entirely: it is split into shares
// with Shamir's Secret Sharing and reconstructed at startup from a threshold
// number of shares supplied by operators.
//
// # Default key bootstrap
//
// BootstrapDefaultKey stores a key record at the configured default key path
// when none exists, so values submitted by pages are sealed from the first write.
package kms
