// Package sessiontest builds a session.Service on in-memory stores with cheap
// password hashing, for handler tests in other packages.
package sessiontest

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"userhub/cmd/identity"
	"userhub/cmd/internal/auth/session"
	"userhub/cmd/security/password"
)

// Mailer records password reset messages.
type Mailer struct {
	mu   sync.Mutex
	msgs []session.PasswordResetMessage
}

func (m *Mailer) SendPasswordReset(_ context.Context, msg session.PasswordResetMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

// Last returns the most recent message or fails the test.
func (m *Mailer) Last(t testing.TB) session.PasswordResetMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.msgs, "no password reset sent")
	return m.msgs[len(m.msgs)-1]
}

// Env is a ready service with its backing stores.
type Env struct {
	Service *session.Service
	Users   *identity.MemoryStore
	Tokens  *session.MemoryStore
	Mailer  *Mailer
	Log     *slog.Logger
}

// Config returns a valid config with a fixed secret and cheap argon2 parameters.
func Config() session.Config {
	cfg := session.DefaultConfig()
	cfg.JWT.Secret = []byte(strings.Repeat("s", 32))
	cfg.Passwords.Params = password.Argon2idParams{
		MemoryKiB:   8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	return cfg
}

// New builds an Env. opts are appended after the test mailer and a discarding logger.
func New(t testing.TB, opts ...session.Option) *Env {
	t.Helper()

	e := &Env{
		Users:  identity.NewMemoryStore(),
		Tokens: session.NewMemoryStore(),
		Mailer: &Mailer{},
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	base := []session.Option{session.WithMailer(e.Mailer), session.WithLogger(e.Log)}
	svc, err := session.NewService(Config(), e.Users, e.Tokens, e.Tokens, append(base, opts...)...)
	require.NoError(t, err)
	e.Service = svc
	return e
}

// CreateUser stores a user with the given role and password directly.
func (e *Env) CreateUser(t testing.TB, email, plain string, role identity.Role) identity.User {
	t.Helper()
	hash, err := e.Service.Passwords().Hash(plain)
	require.NoError(t, err)
	u, err := e.Users.CreateUser(context.Background(), identity.CreateUserInput{
		Email:        email,
		Name:         "Test " + string(role),
		PasswordHash: hash,
		Role:         role,
	})
	require.NoError(t, err)
	return u
}

// Login returns an access token for email/plain.
func (e *Env) Login(t testing.TB, email, plain string) session.Tokens {
	t.Helper()
	res, err := e.Service.Login(context.Background(), email, plain)
	require.NoError(t, err)
	return res.Tokens
}
