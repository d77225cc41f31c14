package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"userhub/cmd/identity"
	"userhub/cmd/internal/auth/session"
	"userhub/cmd/internal/httpx"
)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	auditLog *slog.Logger
	cfg      Config

	sessions *session.Service
	guard    httpx.Guard
	throttle *loginThrottle
	now      func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides the time source used for login throttling.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, sessions *session.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("authapi: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.Normalized()

	h := &Handler{
		log:      log,
		auditLog: log.With("component", "audit"),
		cfg:      cfg,
		sessions: sessions,
		guard:    httpx.Guard{Auth: sessions, Log: log},
		throttle: newLoginThrottle(cfg),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh-token", h.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("POST /api/auth/logout-all", h.guard.Authenticated(h.handleLogoutAll))
	mux.HandleFunc("GET /api/auth/me", h.guard.Authenticated(h.handleMe))
	mux.HandleFunc("POST /api/auth/verify-email", h.guard.Authenticated(h.handleVerifyEmail))
	mux.HandleFunc("POST /api/auth/request-password-reset", h.handleRequestPasswordReset)
	mux.HandleFunc("POST /api/auth/reset-password", h.handleResetPassword)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v httpx.Validator
	v.Email("email", req.Email)
	v.MinLen("name", req.Name, 2, "Name must be at least 2 characters")
	v.Password("password", req.Password, h.sessions.Passwords())
	if err := v.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.sessions.Register(r.Context(), session.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.auditRegister(r.Context(), res.User.ID, httpx.ClientIP(r, h.cfg.TrustProxy), r.UserAgent())
	httpx.Created(w, "User registered successfully", toAuthResponse(res))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v httpx.Validator
	v.Email("email", req.Email)
	v.Check(req.Password != "", "password", "Password is required")
	if err := v.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := httpx.ClientIP(r, h.cfg.TrustProxy)
	ua := r.UserAgent()
	identifier := identity.NormalizeEmail(req.Email)

	if blocked, retryAfter := h.throttle.check(ip, identifier, now); blocked {
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	res, err := h.sessions.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.throttle.recordFailure(ip, identifier, now)
			h.auditLoginFailed(ctx, ip, ua, identifier, "invalid_credentials")
		} else if errors.Is(err, session.ErrAccountInactive) {
			h.auditLoginFailed(ctx, ip, ua, identifier, "inactive")
		}
		h.fail(w, r, err)
		return
	}

	h.throttle.reset(identifier)
	h.auditLoginSuccess(ctx, res.User.ID, ip, ua)
	httpx.OK(w, "Login successful", toAuthResponse(res))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		h.fail(w, r, httpx.Invalid("refreshToken", "Refresh token is required"))
		return
	}

	tokens, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			h.auditRefreshFailed(r.Context(), httpx.ClientIP(r, h.cfg.TrustProxy), r.UserAgent())
		}
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, "Token refreshed successfully", tokens)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		h.fail(w, r, httpx.Invalid("refreshToken", "Refresh token is required"))
		return
	}

	if err := h.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, "Logout successful", nil)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	u, _ := httpx.UserFrom(r.Context())
	if err := h.sessions.LogoutAll(r.Context(), u.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.auditLogoutAll(r.Context(), u.ID, httpx.ClientIP(r, h.cfg.TrustProxy), r.UserAgent())
	httpx.OK(w, "Logged out from all devices", nil)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := httpx.UserFrom(r.Context())
	httpx.OK(w, "User retrieved successfully", u)
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	u, _ := httpx.UserFrom(r.Context())
	if err := h.sessions.VerifyEmail(r.Context(), u.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, "Email verified successfully", nil)
}

func (h *Handler) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if !httpx.IsEmail(req.Email) {
		h.fail(w, r, httpx.Invalid("email", "Invalid email format"))
		return
	}

	if err := h.sessions.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, "Password reset email sent if account exists", nil)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v httpx.Validator
	v.Email("email", req.Email)
	v.Check(strings.TrimSpace(req.ResetToken) != "", "resetToken", "Reset token is required")
	v.Password("newPassword", req.NewPassword, h.sessions.Passwords())
	if err := v.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.sessions.ResetPassword(r.Context(), req.Email, req.ResetToken, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	h.auditPasswordReset(r.Context(), httpx.ClientIP(r, h.cfg.TrustProxy), r.UserAgent())
	httpx.OK(w, "Password reset successfully", nil)
}

// ---- helpers ----

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, h.log, err)
}

func toAuthResponse(res session.AuthResult) authResponse {
	return authResponse{
		User:         res.User,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}
}
