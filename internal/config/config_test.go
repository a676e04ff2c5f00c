package config

import (
	"strings"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestLoadRejectsShortSigningKey(t *testing.T) {
	t.Setenv("AUTHD_SIGNING_KEY", "too-short")
	if _, err := Load(); err == nil {
		t.Fatalf("short signing key accepted")
	}

	// Padding with whitespace must not help.
	t.Setenv("AUTHD_SIGNING_KEY", "short"+strings.Repeat(" ", 40))
	if _, err := Load(); err == nil {
		t.Fatalf("whitespace-padded signing key accepted")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTHD_SIGNING_KEY", testKey)
	t.Setenv("AUTHD_ADDR", "")
	t.Setenv("AUTHD_ENV", "")
	t.Setenv("AUTHD_SESSION_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.Production() {
		t.Fatalf("development config reports production")
	}
	if cfg.SessionTTL != 0 {
		t.Fatalf("SessionTTL = %v, want service default", cfg.SessionTTL)
	}
}

func TestLoadParsesSessionTTL(t *testing.T) {
	t.Setenv("AUTHD_SIGNING_KEY", testKey)
	t.Setenv("AUTHD_SESSION_TTL", "72h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionTTL != 72*time.Hour {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}

	t.Setenv("AUTHD_SESSION_TTL", "three days")
	if _, err := Load(); err == nil {
		t.Fatalf("invalid TTL accepted")
	}
}

func TestLoadScansProviders(t *testing.T) {
	t.Setenv("AUTHD_SIGNING_KEY", testKey)
	t.Setenv("AUTHD_ENV", "production")
	t.Setenv("AUTHD_BASE_URL", "https://auth.example.com/")
	t.Setenv("AUTHD_OAUTH_GOOGLE_CLIENT_ID", "gid")
	t.Setenv("AUTHD_OAUTH_GOOGLE_CLIENT_SECRET", "gsecret")
	// Incomplete credentials stay out.
	t.Setenv("AUTHD_OAUTH_GITHUB_CLIENT_ID", "hid")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Production() {
		t.Fatalf("production env not detected")
	}
	if cfg.BaseURL != "https://auth.example.com" {
		t.Fatalf("BaseURL = %q, trailing slash kept", cfg.BaseURL)
	}
	names := cfg.ProviderNames()
	if len(names) != 1 || names[0] != "google" {
		t.Fatalf("providers = %v, want [google]", names)
	}
}
