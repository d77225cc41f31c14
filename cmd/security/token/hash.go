package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MinKeyBytes is the minimum length for both the JWT secret and the hash key.
const MinKeyBytes = 32

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Hasher hashes refresh tokens for storage.
type Hasher struct {
	key []byte
}

// NewHasher builds a Hasher. A blank key selects plain SHA-256; a non-blank key shorter
// than MinKeyBytes is rejected.
func NewHasher(key string) (Hasher, error) {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return Hasher{}, nil
	}
	if len(raw) < MinKeyBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return Hasher{key: []byte(raw)}, nil
}

// HMACEnabled reports whether the hasher runs in keyed mode.
func (h Hasher) HMACEnabled() bool { return len(h.key) > 0 }

// HashRefreshTokenHex hashes a refresh token for server-side storage.
func (h Hasher) HashRefreshTokenHex(token string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(token)
	}
	return HashHMACSHA256Hex(token, h.key)
}
