package session

import (
	"crypto/rand"
	"encoding/base64"
)

const resetTokenBytes = 32

// newOpaqueToken returns a URL-safe random token and its storage hash.
func (s *Service) newOpaqueToken(nBytes int) (plain string, hashHex string, err error) {
	b := make([]byte, nBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}

	plain = base64.RawURLEncoding.EncodeToString(b)
	hashHex = s.cfg.Hasher.HashRefreshTokenHex(plain) // 64 hex chars

	return plain, hashHex, nil
}
