package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"userhub/cmd/identity"
	"userhub/cmd/identity/ids"
	"userhub/cmd/security/password"
	"userhub/cmd/security/token"
)

// Tokens is an access/refresh pair as handed to clients.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is the outcome of register and login.
type AuthResult struct {
	User   identity.User
	Tokens Tokens
}

// RegisterInput is a self-service signup.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Observer receives auth outcomes (metrics). event is e.g. "login", result "success"/"failure".
type Observer interface {
	AuthEvent(event, result string)
}

type noopObserver struct{}

func (noopObserver) AuthEvent(string, string) {}

// Service implements the auth flow over a user store and a refresh token store.
type Service struct {
	cfg    Config
	users  identity.Store
	store  Store
	resets ResetStore
	issuer *token.Issuer

	log      *slog.Logger
	mailer   Mailer
	observer Observer
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMailer overrides the default logging mailer.
func WithMailer(m Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithObserver wires auth outcome reporting.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service. resets may be nil, which disables password reset.
func NewService(cfg Config, users identity.Store, store Store, resets ResetStore, opts ...Option) (*Service, error) {
	if users == nil || store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		users:    users,
		store:    store,
		resets:   resets,
		log:      slog.Default(),
		observer: noopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.mailer == nil {
		s.mailer = LogMailer{Log: s.log}
	}

	issuer, err := token.NewIssuer(cfg.JWT, token.WithClock(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	s.issuer = issuer

	return s, nil
}

// Passwords exposes the password configuration for callers that hash outside the flow.
func (s *Service) Passwords() password.Config { return s.cfg.Passwords }

// Register creates a user with role "user" and signs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	hash, err := s.cfg.Passwords.Hash(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	u, err := s.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         identity.RoleUser,
		Now:          s.now().UTC(),
	})
	if err != nil {
		s.observer.AuthEvent("register", "failure")
		return AuthResult{}, err
	}

	tokens, err := s.issue(ctx, u)
	if err != nil {
		return AuthResult{}, err
	}

	s.observer.AuthEvent("register", "success")
	s.log.Info("auth.register.ok", "user_id", u.ID)
	return AuthResult{User: u, Tokens: tokens}, nil
}

// Login checks credentials and issues a fresh pair. Unknown email and wrong password
// are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, plain string) (AuthResult, error) {
	ua, err := s.users.GetUserAuthByEmail(ctx, email)
	if err != nil {
		if !identity.IsNotFound(err) {
			return AuthResult{}, err
		}
		// Spend the same work as a real check.
		_, _ = s.cfg.Passwords.Verify(s.dummy(), plain)
		s.loginFailed("unknown_email")
		return AuthResult{}, ErrInvalidCredentials
	}

	ok, err := s.cfg.Passwords.Verify(ua.PasswordHash, plain)
	if err != nil && !errors.Is(err, password.ErrInvalidHash) {
		return AuthResult{}, err
	}
	if !ok {
		s.loginFailed("bad_password")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !ua.IsActive {
		s.loginFailed("inactive")
		return AuthResult{}, ErrAccountInactive
	}

	if s.cfg.Passwords.NeedsRehash(ua.PasswordHash) {
		s.rehash(ctx, ua.ID, plain)
	}

	tokens, err := s.issue(ctx, ua.User)
	if err != nil {
		return AuthResult{}, err
	}

	s.observer.AuthEvent("login", "success")
	s.log.Info("auth.login.ok", "user_id", ua.ID)
	return AuthResult{User: ua.User, Tokens: tokens}, nil
}

// Refresh exchanges a valid refresh token for a new pair. The presented token is
// consumed; presenting it again fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > 4096 {
		return Tokens{}, s.refreshFailed("malformed")
	}

	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return Tokens{}, s.refreshFailed("invalid_jwt")
	}

	now := s.now().UTC()
	row, err := s.store.FindActive(ctx, s.cfg.Hasher.HashRefreshTokenHex(refreshToken), claims.UserID(), now)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return Tokens{}, s.refreshFailed("not_found")
		}
		return Tokens{}, err
	}

	u, err := s.users.GetUserByID(ctx, row.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Tokens{}, s.refreshFailed("user_gone")
		}
		return Tokens{}, err
	}
	if !u.IsActive {
		return Tokens{}, s.refreshFailed("inactive")
	}

	pair, next, err := s.mint(u)
	if err != nil {
		return Tokens{}, err
	}
	if err := s.store.Rotate(ctx, row.ID, next); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return Tokens{}, s.refreshFailed("lost_race")
		}
		return Tokens{}, err
	}

	s.observer.AuthEvent("refresh", "success")
	s.log.Debug("auth.refresh.ok", "user_id", u.ID)
	return pair, nil
}

// Logout deletes the row matching refreshToken. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	n, err := s.store.DeleteByHash(ctx, s.cfg.Hasher.HashRefreshTokenHex(refreshToken))
	if err != nil {
		return err
	}
	s.observer.AuthEvent("logout", "success")
	s.log.Debug("auth.logout.ok", "deleted", n)
	return nil
}

// LogoutAll deletes every refresh token of userID.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	n, err := s.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return err
	}
	s.observer.AuthEvent("logout_all", "success")
	s.log.Info("auth.logout_all.ok", "user_id", userID, "deleted", n)
	return nil
}

// Authenticate verifies an access token and loads its active owner.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (identity.User, error) {
	claims, err := s.issuer.VerifyAccess(accessToken)
	if err != nil {
		return identity.User{}, ErrInvalidAccessToken
	}
	u, err := s.users.GetUserByID(ctx, claims.UserID())
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, ErrInvalidAccessToken
		}
		return identity.User{}, err
	}
	if !u.IsActive {
		return identity.User{}, ErrAccountInactive
	}
	return u, nil
}

// VerifyEmail marks userID's email as verified.
func (s *Service) VerifyEmail(ctx context.Context, userID string) error {
	if err := s.users.SetEmailVerified(ctx, userID, s.now().UTC()); err != nil {
		return err
	}
	s.log.Info("auth.verify_email.ok", "user_id", userID)
	return nil
}

// ChangePassword replaces the password after checking the current one and signs the
// user out everywhere.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	ua, err := s.users.GetUserAuthByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.cfg.Passwords.Verify(ua.PasswordHash, current)
	if err != nil && !errors.Is(err, password.ErrInvalidHash) {
		return err
	}
	if !ok {
		s.observer.AuthEvent("change_password", "failure")
		return ErrIncorrectPassword
	}

	if err := s.setPassword(ctx, userID, next); err != nil {
		return err
	}
	s.observer.AuthEvent("change_password", "success")
	s.log.Info("auth.change_password.ok", "user_id", userID)
	return nil
}

// RequestPasswordReset stores a fresh reset token for email and hands it to the mailer.
// Unknown emails succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.resets == nil {
		return fmt.Errorf("%w: password reset disabled", ErrConfig)
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			s.log.Info("auth.password_reset.unknown_email")
			return nil
		}
		return err
	}
	if !u.IsActive {
		s.log.Info("auth.password_reset.inactive", "user_id", u.ID)
		return nil
	}

	plain, hash, err := s.newOpaqueToken(resetTokenBytes)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	expires := now.Add(s.cfg.ResetTTL)
	if err := s.resets.PutPasswordReset(ctx, PasswordReset{
		UserID:    u.ID,
		TokenHash: hash,
		ExpiresAt: expires,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, PasswordResetMessage{
		UserID:    u.ID,
		Email:     u.Email,
		Token:     plain,
		ExpiresAt: expires,
	}); err != nil {
		s.log.Error("auth.password_reset.send.fail", "err", err, "user_id", u.ID)
	}
	s.observer.AuthEvent("password_reset_request", "success")
	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes every
// refresh token of the user.
func (s *Service) ResetPassword(ctx context.Context, email, resetToken, next string) error {
	if s.resets == nil {
		return fmt.Errorf("%w: password reset disabled", ErrConfig)
	}
	if err := s.cfg.Passwords.Validate(next); err != nil {
		return err
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			s.observer.AuthEvent("password_reset", "failure")
			return ErrInvalidResetToken
		}
		return err
	}

	hash := s.cfg.Hasher.HashRefreshTokenHex(strings.TrimSpace(resetToken))
	if err := s.resets.ConsumePasswordReset(ctx, u.ID, hash, s.now().UTC()); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			s.observer.AuthEvent("password_reset", "failure")
			return ErrInvalidResetToken
		}
		return err
	}

	if err := s.setPassword(ctx, u.ID, next); err != nil {
		return err
	}
	s.observer.AuthEvent("password_reset", "success")
	s.log.Info("auth.password_reset.ok", "user_id", u.ID)
	return nil
}

// PruneExpired removes expired refresh tokens.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now().UTC())
}

// ---- helpers ----

func (s *Service) issue(ctx context.Context, u identity.User) (Tokens, error) {
	pair, row, err := s.mint(u)
	if err != nil {
		return Tokens{}, err
	}
	if err := s.store.Create(ctx, row); err != nil {
		return Tokens{}, err
	}
	return pair, nil
}

func (s *Service) mint(u identity.User) (Tokens, RefreshToken, error) {
	pair, err := s.issuer.IssuePair(token.Subject{
		UserID: u.ID,
		Email:  u.Email,
		Role:   string(u.Role),
	})
	if err != nil {
		return Tokens{}, RefreshToken{}, err
	}

	now := s.now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Tokens{}, RefreshToken{}, err
	}

	return Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		RefreshToken{
			ID:        id,
			TokenHash: s.cfg.Hasher.HashRefreshTokenHex(pair.RefreshToken),
			UserID:    u.ID,
			ExpiresAt: pair.RefreshExpiresAt,
			CreatedAt: now,
		}, nil
}

func (s *Service) setPassword(ctx context.Context, userID, plain string) error {
	hash, err := s.cfg.Passwords.Hash(plain)
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(ctx, userID, hash, s.now().UTC()); err != nil {
		return err
	}
	if _, err := s.store.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}
	return nil
}

// rehash upgrades a legacy or outdated hash after a successful login. Failure is logged only.
func (s *Service) rehash(ctx context.Context, userID, plain string) {
	hash, err := s.cfg.Passwords.Hash(plain)
	if err != nil {
		// Legacy passwords may predate the current policy.
		s.log.Debug("auth.rehash.skip", "user_id", userID, "err", err)
		return
	}
	if err := s.users.SetPassword(ctx, userID, hash, s.now().UTC()); err != nil {
		s.log.Warn("auth.rehash.fail", "user_id", userID, "err", err)
	}
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		if h, err := s.cfg.Passwords.Hash("dummy-password-for-timing-only"); err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func (s *Service) loginFailed(reason string) {
	s.observer.AuthEvent("login", "failure")
	s.log.Warn("auth.login.fail", "reason", reason)
}

func (s *Service) refreshFailed(reason string) error {
	s.observer.AuthEvent("refresh", "failure")
	s.log.Warn("auth.refresh.fail", "reason", reason)
	return ErrInvalidRefreshToken
}
