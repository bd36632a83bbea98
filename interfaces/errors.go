package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists at a storage path or a
	// session is absent or expired.
	ErrNotFound = errors.New("not found")

	// ErrCycleDetected is returned when resolution revisits a path already on
	// the chain being followed.
	ErrCycleDetected = errors.New("reference cycle detected")

	// ErrChainTooDeep is returned when resolution exceeds the configured
	// number of hops.
	ErrChainTooDeep = errors.New("resolution chain too deep")

	// ErrDecrypt is returned when a ciphertext cannot be opened with the
	// resolved key.
	ErrDecrypt = errors.New("decryption failed")

	// ErrEncrypt is returned when a value cannot be sealed.
	ErrEncrypt = errors.New("encryption failed")

	// ErrDenied is returned when a session id and token pair is not authorized.
	ErrDenied = errors.New("denied")

	ErrInvalidPath       = errors.New("invalid data path")
	ErrInvalidValue      = errors.New("invalid value")
	ErrInvalidDataType   = errors.New("invalid data type")
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrUnknownAlgorithm  = errors.New("unknown algorithm")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// TypeMismatchError reports that the stored type differs from the type the
// caller asked for.
type TypeMismatchError struct {
	Stored    DataType
	Requested DataType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: stored %s, requested %s", e.Stored, e.Requested)
}
