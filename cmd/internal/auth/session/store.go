package session

import (
	"context"
	"strings"
	"time"

	"userhub/cmd/identity"
	"userhub/cmd/identity/ids"
)

// RefreshToken mirrors a refresh_tokens row. The plain token is never stored.
type RefreshToken struct {
	ID        string
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// validate rejects rows no Service would mint: a non-ULID id, a hash that is not
// 64 hex chars, a missing owner or expiry.
func (t RefreshToken) validate(op string) error {
	switch {
	case !ids.IsULID(t.ID):
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "refresh token id must be a ULID"}
	case len(t.TokenHash) != 64 || strings.Trim(t.TokenHash, "0123456789abcdef") != "":
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "refresh token hash must be 64 hex chars"}
	case strings.TrimSpace(t.UserID) == "":
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "refresh token owner is required"}
	case t.ExpiresAt.IsZero():
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "refresh token expiry is required"}
	}
	return nil
}

// PasswordReset mirrors a password_resets row. A user has at most one.
type PasswordReset struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store persists refresh tokens.
type Store interface {
	// Create inserts a new refresh token row.
	Create(ctx context.Context, t RefreshToken) error

	// FindActive loads the row matching tokenHash and userID that expires after now.
	// Returns ErrTokenNotFound otherwise.
	FindActive(ctx context.Context, tokenHash, userID string, now time.Time) (RefreshToken, error)

	// Rotate deletes oldID and inserts next in one atomic step. If oldID is already gone
	// (a concurrent rotation or logout won), nothing is inserted and ErrTokenNotFound is returned.
	Rotate(ctx context.Context, oldID string, next RefreshToken) error

	// DeleteByHash removes rows matching tokenHash and reports how many went.
	DeleteByHash(ctx context.Context, tokenHash string) (int64, error)

	// DeleteAllForUser removes every row owned by userID.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes rows that expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// CountForUser reports how many rows userID owns.
	CountForUser(ctx context.Context, userID string) (int, error)
}

// ResetStore persists password reset tokens.
type ResetStore interface {
	// PutPasswordReset replaces any outstanding reset for r.UserID.
	PutPasswordReset(ctx context.Context, r PasswordReset) error

	// ConsumePasswordReset deletes the reset for userID if tokenHash matches and it has not
	// expired. Returns ErrTokenNotFound otherwise.
	ConsumePasswordReset(ctx context.Context, userID, tokenHash string, now time.Time) error
}
