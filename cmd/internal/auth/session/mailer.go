package session

import (
	"context"
	"log/slog"
	"time"
)

// PasswordResetMessage is the payload for reset delivery. Token is the plain secret.
type PasswordResetMessage struct {
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Mailer delivers password reset tokens.
type Mailer interface {
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}

// LogMailer is the default Mailer. It records that a reset was issued; the token itself
// is only logged when RevealToken is set (local development).
type LogMailer struct {
	Log         *slog.Logger
	RevealToken bool
}

func (m LogMailer) SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{
		"user_id", msg.UserID,
		"email", msg.Email,
		"expires_at", msg.ExpiresAt,
	}
	if m.RevealToken {
		attrs = append(attrs, "reset_token", msg.Token)
	}
	log.InfoContext(ctx, "auth.password_reset.issued", attrs...)
	return nil
}
