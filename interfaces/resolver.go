package interfaces

import "context"

// ResolutionEngine reduces stored records to typed values and writes values
// back.
type ResolutionEngine interface {
	// Resolve returns the value at path. An empty requested type accepts the
	// stored type.
	Resolve(ctx context.Context, path DataPath, requested DataType) (Value, error)

	// SealAndStore writes value at the record path resolves to, sealed the
	// same way as the record it replaces.
	SealAndStore(ctx context.Context, path DataPath, value Value) error

	// AllowedMediaTypes returns the MIME allow-list for media values.
	AllowedMediaTypes() []string
}
