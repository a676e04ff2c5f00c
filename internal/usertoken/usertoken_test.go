package usertoken_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"authd.dev/internal/store/memory"
	"authd.dev/internal/usertoken"
)

func newService(now *time.Time) (*usertoken.Service, *memory.Store) {
	store := memory.New()
	svc := usertoken.NewService(store.Tokens()).WithClock(func() time.Time { return *now })
	return svc, store
}

func TestIssueAndRedeem(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newService(&now)

	raw, tok, err := svc.Issue(ctx, "u1", usertoken.TypeEmailVerify, time.Hour, map[string]string{"email": "u1@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(raw, tok.ID+".") {
		t.Fatalf("raw token must be id.secret, got %q", raw)
	}
	if strings.Contains(raw, tok.SecretHash) {
		t.Fatalf("raw token must not contain the stored digest")
	}

	redeemed, err := svc.Redeem(ctx, raw, usertoken.TypeEmailVerify)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if redeemed.UserID != "u1" || redeemed.Metadata["email"] != "u1@example.com" {
		t.Fatalf("unexpected token %+v", redeemed)
	}
	if redeemed.ConsumedAt == nil {
		t.Fatalf("token not stamped consumed")
	}

	// Single use.
	if _, err := svc.Redeem(ctx, raw, usertoken.TypeEmailVerify); err != usertoken.ErrInvalid {
		t.Fatalf("second redemption: %v", err)
	}
}

func TestRedeemFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newService(&now)

	raw, tok, err := svc.Issue(ctx, "u1", usertoken.TypeEmailVerify, time.Hour, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Wrong type, malformed raw, unknown id, tampered secret: all identical.
	cases := []struct {
		name string
		raw  string
		typ  usertoken.Type
	}{
		{"wrong type", raw, usertoken.TypePasswordReset},
		{"malformed", "garbage", usertoken.TypeEmailVerify},
		{"missing secret", tok.ID + ".", usertoken.TypeEmailVerify},
		{"unknown id", "nope." + strings.Repeat("a", 64), usertoken.TypeEmailVerify},
		{"tampered secret", tok.ID + "." + strings.Repeat("a", 64), usertoken.TypeEmailVerify},
	}
	for _, tc := range cases {
		if _, err := svc.Redeem(ctx, tc.raw, tc.typ); err != usertoken.ErrInvalid {
			t.Fatalf("%s: got %v, want ErrInvalid", tc.name, err)
		}
	}

	// Expired: the boundary instant is already invalid.
	now = now.Add(time.Hour)
	if _, err := svc.Redeem(ctx, raw, usertoken.TypeEmailVerify); err != usertoken.ErrInvalid {
		t.Fatalf("expired: %v", err)
	}
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newService(&now)

	raw, tok, err := svc.Issue(ctx, "u1", usertoken.TypeEmailVerify, time.Hour, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Discard(ctx, tok.ID); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, err := svc.Redeem(ctx, raw, usertoken.TypeEmailVerify); err != usertoken.ErrInvalid {
		t.Fatalf("discarded token redeemed: %v", err)
	}
}
