package token

import (
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewCodecRejectsShortKey(t *testing.T) {
	if _, err := NewCodec("too-short"); err != ErrShortKey {
		t.Fatalf("expected ErrShortKey, got %v", err)
	}
	if _, err := NewCodec(strings.Repeat(" ", 40)); err != ErrShortKey {
		t.Fatalf("whitespace key accepted: %v", err)
	}
	if _, err := NewCodec(testKey); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
}

func TestBindDeterministic(t *testing.T) {
	c, err := NewCodec(testKey)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	id := c.NewSessionID("")
	secret, err := c.NewSecret()
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	if len(secret) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(secret))
	}
	if c.Bind(id, secret) != c.Bind(id, secret) {
		t.Fatalf("bind is not deterministic")
	}
	if c.Bind(id, secret) == c.Bind(id, secret+"x") {
		t.Fatalf("bind ignores secret")
	}

	other, err := NewCodec(testKey + "-different")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if c.Bind(id, secret) == other.Bind(id, secret) {
		t.Fatalf("bind ignores server key")
	}
}

func TestNewSessionIDReusesExisting(t *testing.T) {
	c, _ := NewCodec(testKey)
	if got := c.NewSessionID("sess-1"); got != "sess-1" {
		t.Fatalf("expected existing id back, got %s", got)
	}
	a, b := c.NewSessionID(""), c.NewSessionID("")
	if a == b {
		t.Fatalf("fresh ids collided: %s", a)
	}
}

func TestParse(t *testing.T) {
	id, secret, err := Parse(Token("sess-1", "deadbeef"))
	if err != nil || id != "sess-1" || secret != "deadbeef" {
		t.Fatalf("round trip failed: %s %s %v", id, secret, err)
	}
	for _, raw := range []string{"", "no-delimiter", ".secret", "id.", "a.b.c"} {
		if _, _, err := Parse(raw); err != ErrMalformed {
			t.Fatalf("expected ErrMalformed for %q, got %v", raw, err)
		}
	}
}

func TestHashEqual(t *testing.T) {
	if !HashEqual("abc", "abc") {
		t.Fatalf("equal hashes rejected")
	}
	if HashEqual("abc", "abd") || HashEqual("abc", "abcd") {
		t.Fatalf("unequal hashes accepted")
	}
}
