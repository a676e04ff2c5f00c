package session

import (
	"context"
	"time"

	"authd.dev/internal/authz"
	"authd.dev/internal/identity"
	"authd.dev/internal/token"
)

// DefaultTTL is the fixed session lifetime applied at issuance and on
// every refresh.
const DefaultTTL = 30 * 24 * time.Hour

// DefaultCookieName names the transport cookie.
const DefaultCookieName = "SESSION"

// Service drives the session lifecycle.
type Service struct {
	store      Store
	directory  authz.Store
	codec      *token.Codec
	ttl        time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCookieName overrides the transport cookie name.
func WithCookieName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.cookieName = name
		}
	}
}

// WithSecureCookies toggles the Secure cookie flag; enabled in production.
func WithSecureCookies(secure bool) Option {
	return func(s *Service) { s.secure = secure }
}

// WithClock overrides the time source for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the session service. The codec has already
// startup-checked the server key.
func NewService(store Store, directory authz.Store, codec *token.Codec, opts ...Option) *Service {
	s := &Service{
		store:      store,
		directory:  directory,
		codec:      codec,
		ttl:        DefaultTTL,
		cookieName: DefaultCookieName,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a session (or rotates an existing one in place when
// existingID is set) and writes the transport cookie. The raw secret lives
// only inside this call; afterwards the cookie is the sole copy.
func (s *Service) Issue(ctx context.Context, cookies Cookies, userID string, meta Metadata, existingID string) (*Session, error) {
	secret, err := s.codec.NewSecret()
	if err != nil {
		return nil, err
	}
	id := s.codec.NewSessionID(existingID)
	now := s.now()
	sess := &Session{
		ID:           id,
		UserID:       userID,
		SecretHash:   s.codec.Bind(id, secret),
		Status:       StatusActive,
		ExpiresAt:    now.Add(s.ttl),
		LastActiveAt: now,
		Metadata:     meta.truncated(),
	}
	if existingID == "" {
		if err := s.store.Create(ctx, sess); err != nil {
			return nil, err
		}
	} else {
		// Rotation re-checks active status in the same statement so a
		// concurrent revoke wins the race.
		if err := s.store.RotateActive(ctx, id, sess.SecretHash, sess.ExpiresAt, now); err != nil {
			return nil, err
		}
	}
	s.setCookie(cookies, token.Token(id, secret), sess.ExpiresAt)
	return sess, nil
}

// Resolved is the outcome of a successful validation.
type Resolved struct {
	UserID      string
	PrimaryRole string
	SessionID   string
}

// Resolve validates a presented token. Every failure collapses to
// ErrInvalid; a wrong secret against a valid id additionally revokes the
// session, and an inactive owner does the same.
func (s *Service) Resolve(ctx context.Context, presented string) (*Resolved, error) {
	id, secret, err := token.Parse(presented)
	if err != nil {
		return nil, ErrInvalid
	}
	sess, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, ErrInvalid
	}
	if sess.Status != StatusActive {
		return nil, ErrInvalid
	}
	now := s.now()
	// An expiry exactly equal to now is already expired.
	if !sess.ExpiresAt.After(now) {
		_ = s.store.MarkExpired(ctx, sess.ID)
		return nil, ErrInvalid
	}
	if !token.HashEqual(sess.SecretHash, s.codec.Bind(id, secret)) {
		// Someone presented a valid id with a wrong secret: assume the
		// credential is compromised and burn the session.
		_ = s.store.Revoke(ctx, sess.ID, "", now)
		return nil, ErrInvalid
	}
	user, err := s.directory.Users(ctx).Find(ctx, sess.UserID)
	if err != nil {
		return nil, ErrInvalid
	}
	if user.Status != authz.StatusActive {
		_ = s.store.Revoke(ctx, sess.ID, "", now)
		return nil, ErrInvalid
	}
	assignments, err := s.directory.Assignments(ctx).ListForUser(ctx, user.ID)
	if err != nil {
		return nil, ErrInvalid
	}
	_ = s.store.TouchLastActive(ctx, sess.ID, now)
	return &Resolved{
		UserID:      user.ID,
		PrimaryRole: authz.ResolvePrimaryRole(assignments),
		SessionID:   sess.ID,
	}, nil
}

// ResolveFromCookies validates the session referenced by the transport
// cookie.
func (s *Service) ResolveFromCookies(ctx context.Context, cookies Cookies) (*Resolved, error) {
	value, ok := cookies.Get(s.cookieName)
	if !ok {
		return nil, ErrInvalid
	}
	return s.Resolve(ctx, value)
}

// Revoke marks a session revoked, stamping the actor. Idempotent. Whether
// the caller may revoke this session (owner or admin) is enforced by the
// caller.
func (s *Service) Revoke(ctx context.Context, sessionID, revokedBy string) error {
	return s.store.Revoke(ctx, sessionID, revokedBy, s.now())
}

// Remove signs the client out: it revokes whatever session the cookie
// references and deletes the cookie unconditionally, so the client always
// ends up logged out from its own perspective.
func (s *Service) Remove(ctx context.Context, cookies Cookies) {
	if value, ok := cookies.Get(s.cookieName); ok {
		if id, _, err := token.Parse(value); err == nil {
			_ = s.store.Revoke(ctx, id, "", s.now())
		}
	}
	cookies.Delete(s.cookieName)
}

// Refresh rotates the current session's secret in place, keeping its
// identifier, and extends expiry. A dead session is left alone: refresh
// neither resurrects nor errors.
func (s *Service) Refresh(ctx context.Context, cookies Cookies) {
	resolved, err := s.ResolveFromCookies(ctx, cookies)
	if err != nil {
		return
	}
	_, _ = s.Issue(ctx, cookies, resolved.UserID, Metadata{}, resolved.SessionID)
}

// Authenticate checks email+password and returns the user. The failure is
// uniform whether the email is unknown, the password wrong or the user not
// active, resisting account enumeration.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*authz.User, error) {
	user, err := s.directory.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := identity.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != authz.StatusActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ListForUser returns the user's sessions, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	return s.store.ListForUser(ctx, userID)
}

// RevokeOthers revokes every session of the user except the current one,
// used after a password change.
func (s *Service) RevokeOthers(ctx context.Context, userID, keepSessionID, revokedBy string) error {
	return s.store.RevokeAllForUser(ctx, userID, keepSessionID, revokedBy, s.now())
}

// CookieName returns the configured transport cookie name.
func (s *Service) CookieName() string { return s.cookieName }

// Store exposes the underlying session store for ownership checks.
func (s *Service) Store() Store { return s.store }

func (s *Service) setCookie(cookies Cookies, value string, expires time.Time) {
	cookies.Set(s.cookieName, value, CookieOptions{
		Expires:  expires,
		Path:     "/",
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: "lax",
	})
}
