package interfaces

import (
	"context"
	"io"
)

// Renderer writes a named HTML template with the given values.
type Renderer interface {
	Render(w io.Writer, name string, values any) error
}

// Relayer notifies and fetches from third-party hosts over mutually
// authenticated TLS.
type Relayer interface {
	// Relay notifies relayURL that the value at path changed.
	Relay(ctx context.Context, path DataPath, relayURL string) error

	// Get fetches url and returns the response body and content type.
	Get(ctx context.Context, url string) ([]byte, string, error)
}
