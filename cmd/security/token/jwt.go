package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Kind tells access and refresh tokens apart.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	DefaultIssuer     = "userhub"
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// Claims is the JWT body for both token kinds. Email and Role are only set on access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  Kind   `json:"typ"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string { return c.Subject }

// Subject is who a token pair is minted for.
type Subject struct {
	UserID string
	Email  string
	Role   string
}

// Pair is an access/refresh token pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// IssuerOption customizes an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// Issuer signs and verifies HS256 JWTs.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer validates cfg and fills defaults.
func NewIssuer(cfg IssuerConfig, opts ...IssuerOption) (*Issuer, error) {
	if len(cfg.Secret) < MinKeyBytes {
		return nil, ErrSecretTooShort
	}

	i := &Issuer{
		secret:     append([]byte(nil), cfg.Secret...),
		issuer:     strings.TrimSpace(cfg.Issuer),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	if i.issuer == "" {
		i.issuer = DefaultIssuer
	}
	if i.accessTTL <= 0 {
		i.accessTTL = DefaultAccessTTL
	}
	if i.refreshTTL <= 0 {
		i.refreshTTL = DefaultRefreshTTL
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssuePair mints a fresh access/refresh pair for sub.
func (i *Issuer) IssuePair(sub Subject) (Pair, error) {
	if strings.TrimSpace(sub.UserID) == "" {
		return Pair{}, errors.New("token: empty subject")
	}

	now := i.now().UTC()

	accessExp := now.Add(i.accessTTL)
	access, err := i.sign(Claims{
		RegisteredClaims: i.registered(sub.UserID, now, accessExp),
		Email:            sub.Email,
		Role:             sub.Role,
		Type:             KindAccess,
	})
	if err != nil {
		return Pair{}, err
	}

	refreshExp := now.Add(i.refreshTTL)
	refresh, err := i.sign(Claims{
		RegisteredClaims: i.registered(sub.UserID, now, refreshExp),
		Type:             KindRefresh,
	})
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks signature, expiry, issuer, and that tok is an access token.
func (i *Issuer) VerifyAccess(tok string) (*Claims, error) {
	return i.verify(tok, KindAccess)
}

// VerifyRefresh checks signature, expiry, issuer, and that tok is a refresh token.
func (i *Issuer) VerifyRefresh(tok string) (*Claims, error) {
	return i.verify(tok, KindRefresh)
}

func (i *Issuer) registered(sub string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        ulid.Make().String(),
	}
}

func (i *Issuer) sign(c Claims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", c.Type, err)
	}
	return s, nil
}

func (i *Issuer) verify(tok string, want Kind) (*Claims, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tok, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != want || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
