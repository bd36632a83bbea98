package kms

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/shamir"
)

// SplitSeed splits a master seed into parts shares, any threshold of which
// reconstruct it.
func SplitSeed(seed []byte, parts, threshold int) ([][]byte, error) {
	if len(seed) < 32 {
		return nil, errors.New("master seed must be at least 32 bytes")
	}
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if parts < threshold {
		return nil, errors.New("total shares must be at least equal to threshold")
	}

	shares, err := shamir.Split(seed, parts, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split master seed: %w", err)
	}
	return shares, nil
}

// SeedFromShares reconstructs a master seed. The result is only correct when
// at least the original threshold of distinct shares is supplied.
func SeedFromShares(shares [][]byte) ([]byte, error) {
	if len(shares) < 2 {
		return nil, errors.New("at least two shares are required")
	}

	seed, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	if len(seed) < 32 {
		return nil, errors.New("reconstructed seed is shorter than 32 bytes")
	}
	return seed, nil
}

// ParseHexShares decodes hex-encoded shares as produced by the operator CLI.
func ParseHexShares(encoded []string) ([][]byte, error) {
	shares := make([][]byte, 0, len(encoded))
	for i, s := range encoded {
		share, err := hex.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("share %d is not valid hex: %w", i, err)
		}
		shares = append(shares, share)
	}
	return shares, nil
}
