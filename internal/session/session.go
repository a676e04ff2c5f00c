// Package session issues, validates, rotates and revokes browser sessions
// backed by hashed bearer tokens. The durable store is the single source of
// truth: there is no cross-request session cache, so a revocation is
// visible on the very next validation.
package session

import (
	"context"
	"errors"
	"time"
)

// Session statuses. Revoked and expired are terminal; a refresh replaces
// the secret hash and extends expiry of an active row in place without a
// state change.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
	StatusExpired = "expired"
)

var (
	// ErrInvalid covers every resolution failure: malformed cookie, unknown
	// id, expired, revoked, wrong secret, inactive owner. The caller never
	// learns which; internal logs may.
	ErrInvalid = errors.New("session: invalid session")

	// ErrNotActive is returned by rotation when the row is no longer
	// active, so a concurrent revoke is never silently undone.
	ErrNotActive = errors.New("session: session is not active")

	// ErrNotFound is returned by lookups for unknown session ids.
	ErrNotFound = errors.New("session: not found")

	// ErrInvalidCredentials is the uniform sign-in failure; it never
	// reveals whether the email exists.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
)

// metadataLimit bounds the opaque device metadata columns. The values are
// best-effort and never validated beyond truncation.
const metadataLimit = 255

// Metadata is opaque device/platform/geo context captured at issuance.
type Metadata struct {
	Device   string
	Platform string
	IP       string
	City     string
	Country  string
}

func (m Metadata) truncated() Metadata {
	return Metadata{
		Device:   clip(m.Device),
		Platform: clip(m.Platform),
		IP:       clip(m.IP),
		City:     clip(m.City),
		Country:  clip(m.Country),
	}
}

func clip(s string) string {
	if len(s) > metadataLimit {
		return s[:metadataLimit]
	}
	return s
}

// Session is one authenticated device/browser. Rows are never physically
// deleted; revocation flips status and stamps the actor, preserving the
// audit trail.
type Session struct {
	ID           string
	UserID       string
	SecretHash   string
	Status       string
	ExpiresAt    time.Time
	LastActiveAt time.Time
	RevokedAt    *time.Time
	RevokedBy    string
	Metadata     Metadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	// RotateActive replaces the secret hash and expiry of an active row in
	// place, clearing revocation fields, and fails with ErrNotActive when
	// the row is missing or no longer active. The status guard runs in the
	// same statement as the write.
	RotateActive(ctx context.Context, id, secretHash string, expiresAt, now time.Time) error
	// Revoke is idempotent: it stamps the actor and time regardless of
	// prior status.
	Revoke(ctx context.Context, id, revokedBy string, at time.Time) error
	MarkExpired(ctx context.Context, id string) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
	ListForUser(ctx context.Context, userID string) ([]*Session, error)
	// RevokeAllForUser revokes every active session of a user except the
	// one identified by keepID (empty keeps nothing).
	RevokeAllForUser(ctx context.Context, userID, keepID, revokedBy string, at time.Time) error
}

// Cookies is the transport capability the web layer hands in. The engine
// never touches HTTP directly.
type Cookies interface {
	Get(name string) (string, bool)
	Set(name, value string, opts CookieOptions)
	Delete(name string)
}

// CookieOptions carries the flags the engine requires on its cookie.
type CookieOptions struct {
	Expires  time.Time
	Path     string
	HTTPOnly bool
	Secure   bool
	SameSite string
}
