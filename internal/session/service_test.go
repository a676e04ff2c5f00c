package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"authd.dev/internal/authz"
	"authd.dev/internal/identity"
	"authd.dev/internal/session"
	"authd.dev/internal/store/memory"
	"authd.dev/internal/token"
)

const testKey = "0123456789abcdef0123456789abcdef"

type cookieJar struct {
	values  map[string]string
	options map[string]session.CookieOptions
	deleted int
}

func newJar() *cookieJar {
	return &cookieJar{values: map[string]string{}, options: map[string]session.CookieOptions{}}
}

func (j *cookieJar) Get(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

func (j *cookieJar) Set(name, value string, opts session.CookieOptions) {
	j.values[name] = value
	j.options[name] = opts
}

func (j *cookieJar) Delete(name string) {
	delete(j.values, name)
	j.deleted++
}

type fixture struct {
	store *memory.Store
	svc   *session.Service
	now   time.Time
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	codec, err := token.NewCodec(testKey)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	f := &fixture{store: memory.New(), now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append(opts, session.WithClock(func() time.Time { return f.now }))
	f.svc = session.NewService(f.store, f.store, codec, opts...)
	return f
}

func (f *fixture) addUser(t *testing.T, id, email, password, status string) {
	t.Helper()
	hash := ""
	if password != "" {
		var err error
		hash, err = identity.HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
	}
	err := f.store.Users(context.Background()).Create(context.Background(), &authz.User{
		ID: id, Email: email, Status: status, PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func TestIssueAndResolveRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "u1@example.com", "", authz.StatusActive)
	jar := newJar()

	sess, err := f.svc.Issue(ctx, jar, "u1", session.Metadata{Device: "Firefox"}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if sess.Status != session.StatusActive {
		t.Fatalf("unexpected status %q", sess.Status)
	}
	if want := f.now.Add(session.DefaultTTL); !sess.ExpiresAt.Equal(want) {
		t.Fatalf("expiry %v, want %v", sess.ExpiresAt, want)
	}

	opts := jar.options[f.svc.CookieName()]
	if !opts.HTTPOnly || opts.Path != "/" || opts.SameSite != "lax" {
		t.Fatalf("cookie options not hardened: %+v", opts)
	}

	resolved, err := f.svc.ResolveFromCookies(ctx, jar)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.UserID != "u1" || resolved.SessionID != sess.ID {
		t.Fatalf("unexpected resolution %+v", resolved)
	}
	if resolved.PrimaryRole != authz.FallbackRoleKey {
		t.Fatalf("expected fallback role, got %q", resolved.PrimaryRole)
	}

	// Only a digest is persisted; the stored hash never matches the secret.
	stored, err := f.store.Find(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	raw := jar.values[f.svc.CookieName()]
	if strings.Contains(raw, stored.SecretHash) {
		t.Fatalf("raw token must not embed the stored hash")
	}
}

func TestResolveReportsPrimaryRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "u1@example.com", "", authz.StatusActive)
	if err := f.store.Roles(ctx).Create(ctx, &authz.Role{ID: "r1", Key: "admin", Name: "Admin", Scope: authz.RoleScopeSystem}); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := f.store.Assignments(ctx).Grant(ctx, authz.Assignment{UserID: "u1", RoleID: "r1"}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	jar := newJar()
	if _, err := f.svc.Issue(ctx, jar, "u1", session.Metadata{}, ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	resolved, err := f.svc.ResolveFromCookies(ctx, jar)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.PrimaryRole != "admin" {
		t.Fatalf("expected admin, got %q", resolved.PrimaryRole)
	}
}

func TestResolveRejectsTamperedTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "u1@example.com", "", authz.StatusActive)
	jar := newJar()
	sess, err := f.svc.Issue(ctx, jar, "u1", session.Metadata{}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for _, presented := range []string{"", "garbage", "a.b.c", sess.ID, "." + sess.ID} {
		if _, err := f.svc.Resolve(ctx, presented); err != session.ErrInvalid {
			t.Fatalf("Resolve(%q) = %v, want ErrInvalid", presented, err)
		}
	}

	// A valid id with a wrong secret burns the session.
	if _, err := f.svc.Resolve(ctx, sess.ID+".deadbeef"); err != session.ErrInvalid {
		t.Fatalf("wrong secret: %v", err)
	}
	stored, err := f.store.Find(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.Status != session.StatusRevoked {
		t.Fatalf("session must be revoked after secret mismatch, got %q", stored.Status)
	}

	// Even the true token is dead now.
	if _, err := f.svc.ResolveFromCookies(ctx, jar); err != session.ErrInvalid {
		t.Fatalf("burned session resolved: %v", err)
	}
}

func TestResolveExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "u1@example.com", "", authz.StatusActive)
	jar := newJar()
	sess, err := f.svc.Issue(ctx, jar, "u1", session.Metadata{}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// One instant before expiry the session is alive.
	f.now = sess.ExpiresAt.Add(-time.Second)
	if _, err := f.svc.ResolveFromCookies(ctx, jar); err != nil {
		t.Fatalf("Resolve before expiry: %v", err)
	}

	// Exactly at expiry it is already dead and flipped to expired.
	f.now = sess.ExpiresAt
	if _, err := f.svc.ResolveFromCookies(ctx, jar); err != session.ErrInvalid {
		t.Fatalf("Resolve at expiry: %v", err)
	}
	stored, _ := f.store.Find(ctx, sess.ID)
	if stored.Status != session.StatusExpired {
		t.Fatalf("status %q, want expired", stored.Status)
	}
}

func TestRefreshRotatesInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "u1@example.com", "", authz.StatusActive)
	jar := newJar()
	sess, err := f.svc.Issue(ctx, jar, "u1", session.Metadata{}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	oldToken := jar.values[f.svc.CookieName()]
	oldHash := sess.SecretHash

	f.now = f.now.Add(24 * time.Hour)
	f.svc.Refresh(ctx, jar)

	newToken := jar.values[f.svc.CookieName()]
	if newToken == oldToken {
		t.Fatalf("refresh must rotate the secret")
	}
	stored, err := f.store.Find(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.SecretHash == oldHash {
		t.Fatalf("stored hash did not rotate")
	}
	if want := f.now.Add(session.DefaultTTL); !stored.ExpiresAt.Equal(want) {
		t.Fatalf("expiry %v, want %v", stored.ExpiresAt, want)
	}

	// The identifier is stable across refreshes.
	resolved, err := f.svc.ResolveFromCookies(ctx, jar)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.SessionID != sess.ID {
		t.Fatalf("session id changed on refresh")
	}

	// The pre-rotation token no longer works and burns the session.
	if _, err := f.svc.Resolve(ctx, oldToken); err != session.ErrInvalid {
		t.Fatalf("old token resolved: %v", err)
	}
}

func TestRefreshNeverResurrects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "u1@example.com", "", authz.StatusActive)
	jar := newJar()
	sess, err := f.svc.Issue(ctx, jar, "u1", session.Metadata{}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := f.svc.Revoke(ctx, sess.ID, "admin-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	f.svc.Refresh(ctx, jar)

	stored, err := f.store.Find(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if stored.Status != session.StatusRevoked {
		t.Fatalf("refresh resurrected a revoked session: %q", stored.Status)
	}
	if stored.RevokedBy != "admin-1" {
		t.Fatalf("revocation actor lost: %q", stored.RevokedBy)
	}
	if _, err := f.svc.ResolveFromCookies(ctx, jar); err != session.ErrInvalid {
		t.Fatalf("revoked session resolved: %v", err)
	}
}

func TestResolveRevokesSessionsOfInactiveUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "u1@example.com", "", authz.StatusActive)
	jar := newJar()
	sess, err := f.svc.Issue(ctx, jar, "u1", session.Metadata{}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := f.store.Users(ctx).UpdateStatus(ctx, "u1", authz.StatusSuspended, nil); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := f.svc.ResolveFromCookies(ctx, jar); err != session.ErrInvalid {
		t.Fatalf("suspended user resolved: %v", err)
	}
	stored, _ := f.store.Find(ctx, sess.ID)
	if stored.Status != session.StatusRevoked {
		t.Fatalf("session must be revoked for inactive owner, got %q", stored.Status)
	}
}

func TestRemoveAlwaysClearsCookie(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "u1@example.com", "", authz.StatusActive)
	jar := newJar()
	sess, err := f.svc.Issue(ctx, jar, "u1", session.Metadata{}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	f.svc.Remove(ctx, jar)
	if _, ok := jar.Get(f.svc.CookieName()); ok {
		t.Fatalf("cookie survived sign-out")
	}
	stored, _ := f.store.Find(ctx, sess.ID)
	if stored.Status != session.StatusRevoked {
		t.Fatalf("session not revoked on sign-out: %q", stored.Status)
	}

	// A garbage cookie still results in a deleted cookie.
	jar.values[f.svc.CookieName()] = "not-a-token"
	before := jar.deleted
	f.svc.Remove(ctx, jar)
	if jar.deleted != before+1 {
		t.Fatalf("cookie not deleted for malformed value")
	}
}

func TestAuthenticateUniformFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "known@example.com", "correct-horse", authz.StatusActive)
	f.addUser(t, "u2", "locked@example.com", "correct-horse", authz.StatusSuspended)

	cases := []struct{ email, password string }{
		{"unknown@example.com", "whatever"},
		{"known@example.com", "wrong"},
		{"locked@example.com", "correct-horse"},
	}
	for _, tc := range cases {
		if _, err := f.svc.Authenticate(ctx, tc.email, tc.password); err != session.ErrInvalidCredentials {
			t.Fatalf("Authenticate(%q) = %v, want ErrInvalidCredentials", tc.email, err)
		}
	}

	user, err := f.svc.Authenticate(ctx, "known@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user %q", user.ID)
	}
}

func TestRevokeOthersKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "u1@example.com", "", authz.StatusActive)

	current := newJar()
	kept, err := f.svc.Issue(ctx, current, "u1", session.Metadata{}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	other := newJar()
	if _, err := f.svc.Issue(ctx, other, "u1", session.Metadata{}, ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := f.svc.RevokeOthers(ctx, "u1", kept.ID, "u1"); err != nil {
		t.Fatalf("RevokeOthers: %v", err)
	}
	if _, err := f.svc.ResolveFromCookies(ctx, current); err != nil {
		t.Fatalf("current session must survive: %v", err)
	}
	if _, err := f.svc.ResolveFromCookies(ctx, other); err != session.ErrInvalid {
		t.Fatalf("other session must be revoked: %v", err)
	}
}

func TestIssueTruncatesMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addUser(t, "u1", "u1@example.com", "", authz.StatusActive)
	jar := newJar()

	long := strings.Repeat("x", 400)
	sess, err := f.svc.Issue(ctx, jar, "u1", session.Metadata{Device: long, City: "Oslo"}, "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(sess.Metadata.Device) != 255 {
		t.Fatalf("device length %d, want 255", len(sess.Metadata.Device))
	}
	if sess.Metadata.City != "Oslo" {
		t.Fatalf("short values must pass through")
	}
}
