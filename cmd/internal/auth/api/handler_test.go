package authapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userhub/cmd/identity"
	"userhub/cmd/internal/auth/session/sessiontest"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testServer struct {
	env *sessiontest.Env
	mux *http.ServeMux
	now time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		env: sessiontest.New(t),
		mux: http.NewServeMux(),
		now: time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC),
	}
	h, err := NewHandler(ts.env.Log, ts.env.Service, DefaultConfig(), WithClock(func() time.Time { return ts.now }))
	require.NoError(t, err)
	h.Register(ts.mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:40000"
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (ts *testServer) register(t *testing.T, email string) authResponse {
	t.Helper()
	status, env := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":    email,
		"name":     "Jane Doe",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	return decodeData[authResponse](t, env)
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":    "Jane@Example.com",
		"name":     "Jane Doe",
		"password": "correct horse",
		"role":     "admin",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, env.Success)
	assert.Equal(t, "User registered successfully", env.Message)

	data := decodeData[authResponse](t, env)
	assert.Equal(t, "jane@example.com", data.User.Email)
	assert.Equal(t, identity.RoleUser, data.User.Role, "self-registration never grants a role")
	assert.NotEmpty(t, data.AccessToken)
	assert.NotEmpty(t, data.RefreshToken)
	assert.NotContains(t, string(env.Data), "password")

	status, env = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":    "jane@example.com",
		"name":     "Other",
		"password": "correct horse",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, env.Success)
	assert.Equal(t, "User with this email already exists", env.Message)
}

func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email":    "not-an-email",
		"name":     "J",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", env.Message)
	assert.Equal(t,
		"Invalid email format, Name must be at least 2 characters, Password must be at least 8 characters",
		env.Error)

	status, env = ts.do(t, http.MethodPost, "/api/auth/register", "", nil)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request body", env.Message)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "jane@example.com")

	status, env := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "jane@example.com", "password": "wrong password",
	})
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", env.Message)
	assert.Empty(t, env.Data)

	status, unknown := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "nobody@example.com", "password": "wrong password",
	})
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, env.Message, unknown.Message)

	status, env = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "jane@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Login successful", env.Message)
	data := decodeData[authResponse](t, env)
	assert.NotEmpty(t, data.AccessToken)
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "jane@example.com")

	for range DefaultConfig().LockoutShortThreshold {
		status, _ := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
			"email": "jane@example.com", "password": "wrong password",
		})
		require.Equal(t, http.StatusUnauthorized, status)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		bytes.NewBufferString(`{"email":"jane@example.com","password":"correct horse"}`))
	req.RemoteAddr = "192.0.2.10:40000"
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "300", rr.Header().Get("Retry-After"))

	ts.now = ts.now.Add(DefaultConfig().LockoutShortDuration)
	status, _ := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "jane@example.com", "password": "correct horse",
	})
	assert.Equal(t, http.StatusOK, status)
}

func TestLogin_Inactive(t *testing.T) {
	ts := newTestServer(t)
	reg := ts.register(t, "jane@example.com")

	inactive := false
	_, err := ts.env.Users.UpdateUser(t.Context(), reg.User.ID, identity.UpdateUserInput{IsActive: &inactive})
	require.NoError(t, err)

	status, env := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "jane@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Account is deactivated", env.Message)
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	ts := newTestServer(t)
	reg := ts.register(t, "jane@example.com")

	status, env := ts.do(t, http.MethodPost, "/api/auth/refresh-token", "", map[string]any{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Token refreshed successfully", env.Message)

	var tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	assert.NotEqual(t, reg.RefreshToken, tokens.RefreshToken)

	status, env = ts.do(t, http.MethodPost, "/api/auth/refresh-token", "", map[string]any{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid refresh token", env.Message)

	status, env = ts.do(t, http.MethodPost, "/api/auth/refresh-token", "", map[string]any{})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Refresh token is required", env.Error)
}

func TestLogoutAndLogoutAll(t *testing.T) {
	ts := newTestServer(t)
	reg := ts.register(t, "jane@example.com")
	second := ts.env.Login(t, "jane@example.com", "correct horse")

	status, env := ts.do(t, http.MethodPost, "/api/auth/logout", "", map[string]any{"refreshToken": reg.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Logout successful", env.Message)

	n, err := ts.env.Tokens.CountForUser(t.Context(), reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	status, _ = ts.do(t, http.MethodPost, "/api/auth/logout", "", map[string]any{"refreshToken": reg.RefreshToken})
	assert.Equal(t, http.StatusOK, status, "logout is idempotent")

	status, _ = ts.do(t, http.MethodPost, "/api/auth/logout-all", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, env = ts.do(t, http.MethodPost, "/api/auth/logout-all", second.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Logged out from all devices", env.Message)

	n, err = ts.env.Tokens.CountForUser(t.Context(), reg.User.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMeAndVerifyEmail(t *testing.T) {
	ts := newTestServer(t)
	reg := ts.register(t, "jane@example.com")

	status, env := ts.do(t, http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Access token required", env.Message)

	status, env = ts.do(t, http.MethodGet, "/api/auth/me", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid or expired access token", env.Message)

	status, env = ts.do(t, http.MethodPost, "/api/auth/verify-email", reg.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Email verified successfully", env.Message)

	status, env = ts.do(t, http.MethodGet, "/api/auth/me", reg.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	me := decodeData[identity.User](t, env)
	assert.Equal(t, reg.User.ID, me.ID)
	assert.True(t, me.EmailVerified)
}

func TestPasswordResetFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "jane@example.com")

	status, env := ts.do(t, http.MethodPost, "/api/auth/request-password-reset", "", map[string]any{"email": "ghost@example.com"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Password reset email sent if account exists", env.Message)

	status, _ = ts.do(t, http.MethodPost, "/api/auth/request-password-reset", "", map[string]any{"email": "jane@example.com"})
	require.Equal(t, http.StatusOK, status)
	msg := ts.env.Mailer.Last(t)

	status, env = ts.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]any{
		"email": "jane@example.com", "resetToken": "wrong", "newPassword": "brand new secret",
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid or expired reset token", env.Message)

	status, env = ts.do(t, http.MethodPost, "/api/auth/reset-password", "", map[string]any{
		"email": "jane@example.com", "resetToken": msg.Token, "newPassword": "brand new secret",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Password reset successfully", env.Message)

	status, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "jane@example.com", "password": "brand new secret",
	})
	assert.Equal(t, http.StatusOK, status)
}

func TestUnknownMethodIsNotRouted(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/login", nil)
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
