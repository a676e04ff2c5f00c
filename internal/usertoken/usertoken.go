// Package usertoken persists single-use secrets: email verification links,
// password resets, passkey challenges and magic links. Only a digest of the
// secret is stored; a token is consumed exactly once.
package usertoken

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"authd.dev/internal/ids"
)

// Type discriminates what operation a token backs.
type Type string

const (
	TypeEmailVerify      Type = "email_verify"
	TypePasswordReset    Type = "password_reset"
	TypeTempPassword     Type = "temp_password"
	TypePasskeyChallenge Type = "passkey_challenge"
	TypeMagicLink        Type = "magic_link"
)

// ErrInvalid covers every redemption failure: unknown, expired, consumed or
// mismatched tokens all look identical to the caller so the response never
// reveals which check failed.
var ErrInvalid = errors.New("usertoken: invalid token")

// Token is one single-use secret holder. Metadata is an opaque description
// of the operation and its target, serialized as JSON at the storage
// boundary.
type Token struct {
	ID         string
	UserID     string
	Type       Type
	SecretHash string
	Metadata   map[string]string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Store persists tokens.
type Store interface {
	Create(ctx context.Context, tok *Token) error
	Find(ctx context.Context, id string) (*Token, error)
	Consume(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// Service issues and redeems tokens.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Issue creates a token row and returns the raw secret exactly once, as
// "<id>.<secret>". The secret is never stored.
func (s *Service) Issue(ctx context.Context, userID string, typ Type, ttl time.Duration, metadata map[string]string) (string, *Token, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	secret := hex.EncodeToString(buf)
	tok := &Token{
		ID:         ids.New(),
		UserID:     userID,
		Type:       typ,
		SecretHash: hashSecret(secret),
		Metadata:   metadata,
		ExpiresAt:  s.now().Add(ttl),
	}
	if err := s.store.Create(ctx, tok); err != nil {
		return "", nil, err
	}
	return tok.ID + "." + secret, tok, nil
}

// Redeem consumes a presented token. Every failure surfaces as ErrInvalid.
func (s *Service) Redeem(ctx context.Context, raw string, typ Type) (*Token, error) {
	id, secret, ok := splitRaw(raw)
	if !ok {
		return nil, ErrInvalid
	}
	tok, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, ErrInvalid
	}
	now := s.now()
	if tok.Type != typ || tok.ConsumedAt != nil || !tok.ExpiresAt.After(now) {
		return nil, ErrInvalid
	}
	if !hashEqual(tok.SecretHash, hashSecret(secret)) {
		return nil, ErrInvalid
	}
	if err := s.store.Consume(ctx, tok.ID, now); err != nil {
		return nil, ErrInvalid
	}
	consumed := now
	tok.ConsumedAt = &consumed
	return tok, nil
}

// Discard deletes a token row, used to roll back a token whose delivery
// failed so a retry cannot collide with orphaned state.
func (s *Service) Discard(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func splitRaw(raw string) (id, secret string, ok bool) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func hashEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
