package users

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"userhub/cmd/identity"
	"userhub/cmd/internal/auth/session"
	"userhub/cmd/internal/httpx"
)

// Config controls the users API.
type Config struct {
	MaxBodyBytes int64
}

// Handler serves user management and profile endpoints.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	store    identity.Store
	sessions *session.Service
	guard    httpx.Guard
	now      func() time.Time
}

// NewHandler constructs a users Handler. sessions authenticates callers, hashes new
// passwords and revokes tokens.
func NewHandler(log *slog.Logger, store identity.Store, sessions *session.Service, cfg Config) (*Handler, error) {
	if store == nil || sessions == nil {
		return nil, errors.New("users: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	return &Handler{
		log:      log,
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		guard:    httpx.Guard{Auth: sessions, Log: log},
		now:      time.Now,
	}, nil
}

// Register wires user routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	admin := func(fn http.HandlerFunc) http.HandlerFunc { return h.guard.Roles(fn, identity.RoleAdmin) }

	mux.HandleFunc("GET /api/users/profile", h.guard.Authenticated(h.handleGetProfile))
	mux.HandleFunc("PUT /api/users/profile", h.guard.Authenticated(h.handleUpdateProfile))
	mux.HandleFunc("PUT /api/users/profile/password", h.guard.Authenticated(h.handleChangePassword))

	mux.HandleFunc("GET /api/users", admin(h.handleList))
	mux.HandleFunc("POST /api/users", admin(h.handleCreate))
	mux.HandleFunc("GET /api/users/{id}", h.guard.Authenticated(h.handleGet))
	mux.HandleFunc("PUT /api/users/{id}", admin(h.handleUpdate))
	mux.HandleFunc("DELETE /api/users/{id}", admin(h.handleDelete))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.store.ListUsers(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Paginated(w, "Users retrieved successfully", listData(res.Users), res.Pagination)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, "User retrieved successfully", u)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	role := identity.RoleUser
	var v httpx.Validator
	v.Email("email", req.Email)
	v.MinLen("name", req.Name, 2, "Name must be at least 2 characters")
	v.Password("password", req.Password, h.sessions.Passwords())
	if req.Role != "" {
		var ok bool
		role, ok = identity.ParseRole(req.Role)
		v.Check(ok, "role", "Role must be one of admin, user, moderator")
	}
	if err := v.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	hash, err := h.sessions.Passwords().Hash(req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.store.CreateUser(r.Context(), identity.CreateUserInput{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         role,
		Now:          h.now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	caller, _ := httpx.UserFrom(r.Context())
	h.log.Info("users.create.ok", "user_id", u.ID, "role", u.Role, "by", caller.ID)
	httpx.Created(w, "User created successfully", u)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	in := identity.UpdateUserInput{Email: req.Email, Name: req.Name, IsActive: req.IsActive}
	var v httpx.Validator
	validateProfileFields(&v, req.Email, req.Name)
	if req.Role != nil {
		role, ok := identity.ParseRole(*req.Role)
		v.Check(ok, "role", "Role must be one of admin, user, moderator")
		in.Role = &role
	}
	if err := v.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.update(r, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.IsActive != nil && !*req.IsActive {
		// A deactivated account keeps no sessions.
		if err := h.sessions.LogoutAll(r.Context(), u.ID); err != nil {
			h.log.Error("users.update.revoke.fail", "err", err, "user_id", u.ID)
		}
	}
	httpx.OK(w, "User updated successfully", u)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sessions.LogoutAll(r.Context(), id); err != nil {
		h.log.Error("users.delete.revoke.fail", "err", err, "user_id", id)
	}

	caller, _ := httpx.UserFrom(r.Context())
	h.log.Info("users.delete.ok", "user_id", id, "by", caller.ID)
	httpx.OK(w, "User deleted successfully", nil)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	caller, _ := httpx.UserFrom(r.Context())
	u, err := h.store.GetUserByID(r.Context(), caller.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, "Profile retrieved successfully", u)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v httpx.Validator
	validateProfileFields(&v, req.Email, req.Name)
	if err := v.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	caller, _ := httpx.UserFrom(r.Context())
	u, err := h.update(r, caller.ID, identity.UpdateUserInput{Email: req.Email, Name: req.Name})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, "Profile updated successfully", u)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var v httpx.Validator
	v.Check(req.CurrentPassword != "", "currentPassword", "Current password is required")
	v.Password("newPassword", req.NewPassword, h.sessions.Passwords())
	if err := v.Err(); err != nil {
		h.fail(w, r, err)
		return
	}

	caller, _ := httpx.UserFrom(r.Context())
	if err := h.sessions.ChangePassword(r.Context(), caller.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.OK(w, "Password changed successfully", nil)
}

// ---- helpers ----

// update applies in, or returns the current record when in changes nothing.
func (h *Handler) update(r *http.Request, id string, in identity.UpdateUserInput) (identity.User, error) {
	if in.Empty() {
		return h.store.GetUserByID(r.Context(), id)
	}
	in.Now = h.now().UTC()
	return h.store.UpdateUser(r.Context(), id, in)
}

func validateProfileFields(v *httpx.Validator, email, name *string) {
	if email != nil {
		v.Email("email", *email)
	}
	if name != nil {
		v.MinLen("name", *name, 2, "Name must be at least 2 characters")
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, h.log, err)
}
