package session

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"userhub/cmd/security/password"
	"userhub/cmd/security/token"
)

// Config defines runtime configuration for the auth flow.
type Config struct {
	// JWT signs access and refresh tokens.
	JWT token.IssuerConfig

	// Hasher hashes refresh and reset tokens for storage.
	Hasher token.Hasher

	// Passwords hashes and validates passwords.
	Passwords password.Config

	// ResetTTL is how long a password reset token stays valid.
	ResetTTL time.Duration
}

// DefaultConfig returns defaults for everything except the JWT secret.
func DefaultConfig() Config {
	return Config{
		JWT: token.IssuerConfig{
			Issuer:     token.DefaultIssuer,
			AccessTTL:  token.DefaultAccessTTL,
			RefreshTTL: token.DefaultRefreshTTL,
		},
		Passwords: password.DefaultConfig(),
		ResetTTL:  time.Hour,
	}
}

type envConfig struct {
	JWTSecret    string        `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer    string        `env:"JWT_ISSUER" envDefault:"userhub"`
	AccessTTL    time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL   time.Duration `env:"JWT_REFRESH_TTL" envDefault:"720h"`
	TokenHashKey string        `env:"TOKEN_HASH_KEY"`
	ResetTTL     time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
	RequireHMAC  bool          `env:"TOKEN_HASH_REQUIRE_HMAC" envDefault:"false"`
}

// LoadConfigFromEnv loads auth configuration from environment variables.
//
// Required:
//   - JWT_SECRET (at least 32 bytes)
//
// Optional:
//   - JWT_ISSUER, JWT_ACCESS_TTL, JWT_REFRESH_TTL
//   - TOKEN_HASH_KEY (enables HMAC-SHA256 token hashing; at least 32 bytes)
//   - TOKEN_HASH_REQUIRE_HMAC (refuse to start without TOKEN_HASH_KEY)
//   - PASSWORD_RESET_TTL
//   - PASSWORD_* and ARGON2_* (see password.FromEnv)
//
// Every failure wraps ErrConfig.
func LoadConfigFromEnv() (Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	cfg := DefaultConfig()
	cfg.JWT = token.IssuerConfig{
		Secret:     []byte(raw.JWTSecret),
		Issuer:     raw.JWTIssuer,
		AccessTTL:  raw.AccessTTL,
		RefreshTTL: raw.RefreshTTL,
	}
	cfg.ResetTTL = raw.ResetTTL

	hasher, err := token.NewHasher(raw.TokenHashKey)
	if err != nil {
		return Config{}, fmt.Errorf("%w: TOKEN_HASH_KEY: %v", ErrConfig, err)
	}
	if raw.RequireHMAC && !hasher.HMACEnabled() {
		return Config{}, fmt.Errorf("%w: TOKEN_HASH_KEY is required", ErrConfig)
	}
	cfg.Hasher = hasher

	pw, err := password.FromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.Passwords = pw

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants between fields.
func (c Config) Validate() error {
	if len(c.JWT.Secret) < token.MinKeyBytes {
		return fmt.Errorf("%w: JWT_SECRET must be at least %d bytes", ErrConfig, token.MinKeyBytes)
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("%w: token TTLs must be positive", ErrConfig)
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return fmt.Errorf("%w: JWT_REFRESH_TTL must not be shorter than JWT_ACCESS_TTL", ErrConfig)
	}
	if c.ResetTTL <= 0 || c.ResetTTL > 7*24*time.Hour {
		return fmt.Errorf("%w: PASSWORD_RESET_TTL out of range", ErrConfig)
	}
	return nil
}
