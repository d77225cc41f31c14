package app

import (
	"errors"
	"slices"

	"userhub/cmd/internal/auth/session"
)

// ValidateSecurityConfig enforces the production security policy at startup.
// Outside production every check passes; session.Config validates its own invariants.
func ValidateSecurityConfig(cfg Config, sessCfg session.Config) error {
	if err := sessCfg.Validate(); err != nil {
		return err
	}
	if !cfg.IsProduction() {
		return nil
	}

	if cfg.RevealResetTokens {
		return errors.New("security policy: DEV_REVEAL_RESET_TOKENS must be false in production")
	}
	if cfg.CORSAllowCredentials && slices.Contains(cfg.CORSAllowedOrigins, "*") {
		return errors.New("security policy: CORS_ORIGINS=* cannot be combined with CORS_ALLOW_CREDENTIALS in production")
	}
	return nil
}
