// Package config reads service configuration from the environment. The
// signing key is validated at load time so a weak deployment fails before
// it can mint a single session.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"authd.dev/internal/identity"
	"authd.dev/internal/token"
)

// Config is the fully resolved service configuration.
type Config struct {
	Addr        string
	Env         string
	SigningKey  string
	PostgresDSN string
	BaseURL     string
	SessionTTL  time.Duration
	CookieName  string

	// Providers lists the external identity providers with complete
	// credentials. Each one expands into a permission key at startup.
	Providers []identity.Provider
}

// Production reports whether secure-cookie and similar hardening applies.
func (c Config) Production() bool { return c.Env == "production" }

// ProviderNames returns the configured provider names in declaration order.
func (c Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		names = append(names, p.Name)
	}
	return names
}

// knownProviders bounds the AUTHD_OAUTH_* scan.
var knownProviders = []string{"google", "github", "microsoft", "apple"}

// Load reads the environment. It fails on a missing or short signing key.
func Load() (Config, error) {
	cfg := Config{
		Addr:        getenv("AUTHD_ADDR", ":8080"),
		Env:         getenv("AUTHD_ENV", "development"),
		SigningKey:  os.Getenv("AUTHD_SIGNING_KEY"),
		PostgresDSN: os.Getenv("AUTHD_PG_DSN"),
		BaseURL:     strings.TrimRight(os.Getenv("AUTHD_BASE_URL"), "/"),
		CookieName:  getenv("AUTHD_COOKIE_NAME", ""),
		SessionTTL:  0,
	}

	if len(strings.TrimSpace(cfg.SigningKey)) < token.MinKeyLength {
		return Config{}, fmt.Errorf("config: AUTHD_SIGNING_KEY must be at least %d characters", token.MinKeyLength)
	}

	if raw := os.Getenv("AUTHD_SESSION_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid AUTHD_SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = ttl
	}

	for _, name := range knownProviders {
		prefix := "AUTHD_OAUTH_" + strings.ToUpper(name)
		p := identity.Provider{
			Name:         name,
			ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
			ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		}
		if p.Configured() {
			cfg.Providers = append(cfg.Providers, p)
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
