package token

import "errors"

// Public, stable errors for callers.
var (
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")
	ErrSecretTooShort  = errors.New("jwt secret too short")
	ErrInvalidToken    = errors.New("invalid token")
)
