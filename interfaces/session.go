package interfaces

import (
	"context"
	"time"
)

// SessionRecord binds a token to the data path it was minted for.
type SessionRecord struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	Path      DataPath  `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore persists session records until their ttl elapses.
type SessionStore interface {
	Create(ctx context.Context, record SessionRecord, ttl time.Duration) error
	// Get returns ErrNotFound for absent or expired sessions.
	Get(ctx context.Context, sessionID string) (SessionRecord, error)
	Destroy(ctx context.Context, sessionID string) error
}

// Decision is the outcome of an authorization check.
type Decision int

const (
	Denied Decision = iota
	Authorized
)

func (d Decision) String() string {
	if d == Authorized {
		return "authorized"
	}
	return "denied"
}

// Grant is returned by a successful authorization. Path is the data path the
// session was minted for.
type Grant struct {
	Decision Decision
	Path     DataPath
}

// SessionManager issues and verifies session tokens.
type SessionManager interface {
	// BeginSession stores a session bound to path and returns its id and token.
	BeginSession(ctx context.Context, path DataPath) (sessionID string, token string, err error)

	// Authorize returns an Authorized grant only for a live session whose
	// token matches. A non-nil error means the store could not be consulted.
	Authorize(ctx context.Context, sessionID, token string) (Grant, error)

	// Rotate replaces sessionID with a fresh session for path.
	Rotate(ctx context.Context, sessionID string, path DataPath) (string, string, error)
}
