// Package token mints session identifiers and secrets and computes the keyed
// binding hash that is stored in place of the raw secret.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// MinKeyLength is the minimum length of the server signing key. A shorter
// key is a deployment mistake, not a runtime condition, so construction
// fails instead of degrading.
const MinKeyLength = 32

const secretBytes = 32

var (
	ErrShortKey  = errors.New("token: signing key must be at least 32 characters")
	ErrMalformed = errors.New("token: malformed session token")
)

// Codec binds session identifiers and secrets to a server-held key. The key
// never leaves the process and is never stored next to session rows.
type Codec struct {
	key []byte
}

// NewCodec validates the signing key and returns a codec. Callers are
// expected to treat an error here as fatal at startup.
func NewCodec(key string) (*Codec, error) {
	if len(strings.TrimSpace(key)) < MinKeyLength {
		return nil, ErrShortKey
	}
	return &Codec{key: []byte(key)}, nil
}

// NewSecret returns a fresh session secret: 32 bytes of cryptographic
// entropy, hex-encoded.
func (c *Codec) NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewSessionID returns existing verbatim when rotating a session in place,
// otherwise a fresh random identifier. Keeping the identifier stable across
// rotations keeps the cookie's public half stable while the secret changes.
func (c *Codec) NewSessionID(existing string) string {
	if existing = strings.TrimSpace(existing); existing != "" {
		return existing
	}
	return uuid.NewString()
}

// Bind computes the one-way digest persisted for a session. Two
// computations over identical inputs are equal; the secret cannot be
// recovered from the output.
func (c *Codec) Bind(sessionID, secret string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(sessionID))
	mac.Write([]byte("."))
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// Token renders the externally visible session token. Only the Bind output
// is ever persisted.
func Token(sessionID, secret string) string {
	return sessionID + "." + secret
}

// Parse splits a presented token into identifier and secret. Malformed
// input fails closed.
func Parse(raw string) (sessionID, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrMalformed
	}
	return parts[0], parts[1], nil
}

// HashEqual compares two binding hashes. The hashes are high-entropy HMAC
// outputs, so equality itself leaks nothing useful, but the comparison is
// constant-time anyway.
func HashEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
