package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/redact-client/interfaces"
)

const (
	// TokenBytes is the number of random bytes in a token.
	TokenBytes = 32

	// DefaultTTL matches the cookie lifetime handed to browsers.
	DefaultTTL = 60 * time.Second
)

// Manager issues and verifies session tokens. It holds no state besides the
// store.
type Manager struct {
	store interfaces.SessionStore
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time
}

// NewManager creates a session manager over store. A non-positive ttl
// selects DefaultTTL.
func NewManager(store interfaces.SessionStore, ttl time.Duration, log *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, log: log, now: time.Now}
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// BeginSession stores a new session bound to path and returns its id and
// token.
func (m *Manager) BeginSession(ctx context.Context, path interfaces.DataPath) (string, string, error) {
	if err := path.Validate(); err != nil {
		return "", "", err
	}

	token, err := NewToken()
	if err != nil {
		return "", "", err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", "", fmt.Errorf("could not generate session id: %w", err)
	}

	record := interfaces.SessionRecord{
		SessionID: id.String(),
		Token:     token,
		Path:      path,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Create(ctx, record, m.ttl); err != nil {
		return "", "", fmt.Errorf("could not create session: %w", err)
	}

	m.log.Debug("Session started", slog.String("path", string(path)))
	return record.SessionID, record.Token, nil
}

// Authorize checks a session id and token pair. Ordinary denials return a
// Denied grant and a nil error; a non-nil error means the store could not be
// consulted.
func (m *Manager) Authorize(ctx context.Context, sessionID, token string) (interfaces.Grant, error) {
	denied := interfaces.Grant{Decision: interfaces.Denied}

	if sessionID == "" || !ValidToken(token) {
		return denied, nil
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return denied, nil
	}

	record, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return denied, nil
	}
	if err != nil {
		return denied, fmt.Errorf("%w: session lookup: %w", interfaces.ErrBackendUnavailable, err)
	}

	if subtle.ConstantTimeCompare([]byte(record.Token), []byte(token)) != 1 {
		return denied, nil
	}

	return interfaces.Grant{Decision: interfaces.Authorized, Path: record.Path}, nil
}

// Rotate destroys sessionID and starts a fresh session for path.
func (m *Manager) Rotate(ctx context.Context, sessionID string, path interfaces.DataPath) (string, string, error) {
	if err := m.store.Destroy(ctx, sessionID); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return "", "", fmt.Errorf("could not destroy session: %w", err)
	}
	return m.BeginSession(ctx, path)
}

// NewToken returns TokenBytes random bytes as upper-case hex.
func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate token: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// ValidToken reports whether token has the shape produced by NewToken.
func ValidToken(token string) bool {
	if len(token) != 2*TokenBytes {
		return false
	}
	for _, c := range token {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
