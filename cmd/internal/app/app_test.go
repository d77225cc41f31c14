package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authapi "userhub/cmd/internal/auth/api"
	"userhub/cmd/internal/auth/session/sessiontest"
)

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Pagination json.RawMessage `json:"pagination"`
}

func testConfig() Config {
	return Config{
		Env:                "test",
		Version:            "1.2.3",
		HTTPAddr:           "127.0.0.1:0",
		LogLevel:           "error",
		LogFormat:          "json",
		DBMaxConns:         1,
		DBSchema:           "public",
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RateLimitWindow:    15 * time.Minute,
		RateLimitMax:       1000,
		Auth:               authapi.DefaultConfig(),
	}
}

func newTestApp(t *testing.T, cfg Config) http.Handler {
	t.Helper()

	a, err := New(context.Background(), cfg, sessiontest.Config(), discardLogger())
	require.NoError(t, err)
	return a.Handler()
}

func call(t *testing.T, h http.Handler, method, path, bearer string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.10:40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env envelope
	if rr.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func TestApp_Health(t *testing.T) {
	t.Parallel()
	h := newTestApp(t, testConfig())

	rr, env := call(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Health check successful", env.Message)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	var data healthData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "OK", data.Status)
	assert.Equal(t, "test", data.Environment)
	assert.Equal(t, "1.2.3", data.Version)
	_, err := time.Parse(time.RFC3339Nano, data.Timestamp)
	assert.NoError(t, err)

	rr, env = call(t, h, http.MethodGet, "/health/detailed", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Detailed health check completed", env.Message)
	var detailed detailedHealthData
	require.NoError(t, json.Unmarshal(env.Data, &detailed))
	assert.Equal(t, "OK", detailed.Status)
	assert.Equal(t, "OK", detailed.Services["database"].Status)
	assert.Equal(t, "memory", detailed.Services["database"].Driver)
}

func TestApp_HealthDegradedWhenDBRequired(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.ReadinessRequireDB = true
	h := newTestApp(t, cfg)

	rr, env := call(t, h, http.MethodGet, "/health/detailed", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.True(t, env.Success)

	var detailed detailedHealthData
	require.NoError(t, json.Unmarshal(env.Data, &detailed))
	assert.Equal(t, "DEGRADED", detailed.Status)
	assert.Equal(t, "ERROR", detailed.Services["database"].Status)
}

func TestApp_UnknownRoute(t *testing.T) {
	t.Parallel()
	h := newTestApp(t, testConfig())

	rr, env := call(t, h, http.MethodGet, "/api/nope?x=1", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Route /api/nope?x=1 not found", env.Message)
}

func TestApp_AuthAndUsersThroughMiddleware(t *testing.T) {
	t.Parallel()
	h := newTestApp(t, testConfig())

	rr, env := call(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "Jane@Example.com",
		"name":     "Jane Doe",
		"password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "User registered successfully", env.Message)

	var reg struct {
		User struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.Equal(t, "jane@example.com", reg.User.Email)
	assert.Equal(t, "user", reg.User.Role)
	require.NotEmpty(t, reg.AccessToken)

	rr, env = call(t, h, http.MethodGet, "/api/auth/me", reg.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "User retrieved successfully", env.Message)

	rr, env = call(t, h, http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Access token required", env.Message)

	rr, env = call(t, h, http.MethodGet, "/api/users", reg.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Insufficient permissions", env.Message)

	rr, env = call(t, h, http.MethodGet, "/api/users/profile", reg.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Profile retrieved successfully", env.Message)

	rr, _ = call(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `userhub_http_requests_total{method="POST",route="/api/auth/register",status="201"} 1`)
	assert.Contains(t, body, `userhub_http_requests_total{method="GET",route="/api/users",status="403"} 1`)
	assert.Contains(t, body, `userhub_auth_events_total{event="register",result="success"} 1`)
	assert.Contains(t, body, "userhub_http_request_duration_seconds_bucket")
}

func TestApp_RateLimitAppliesToAPI(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RateLimitMax = 2
	h := newTestApp(t, cfg)

	for range 2 {
		rr, _ := call(t, h, http.MethodGet, "/api/auth/me", "", nil)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr, env := call(t, h, http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr, _ = call(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNew_RejectsInsecureProductionConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Env = "production"
	cfg.RevealResetTokens = true
	_, err := New(context.Background(), cfg, sessiontest.Config(), discardLogger())
	require.ErrorContains(t, err, "DEV_REVEAL_RESET_TOKENS")

	cfg = testConfig()
	cfg.Env = "production"
	cfg.CORSAllowedOrigins = []string{"*"}
	cfg.CORSAllowCredentials = true
	_, err = New(context.Background(), cfg, sessiontest.Config(), discardLogger())
	require.ErrorContains(t, err, "CORS_ORIGINS")
}

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:3001", want: "http://127.0.0.1:3001"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "empty host", in: ":3001", want: "http://127.0.0.1:3001"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, runtimeBaseURL(tc.in))
		})
	}
}

func TestApp_MalformedBodyIsClientError(t *testing.T) {
	t.Parallel()
	h := newTestApp(t, testConfig())

	for _, body := range []string{`{"email":`, `{"email":"a@b.co","password":"x"} trailing`} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(body))
		req.RemoteAddr = "192.0.2.11:40000"
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		require.Equal(t, http.StatusBadRequest, rr.Code, body)
		var env envelope
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
		assert.False(t, env.Success)
		assert.Equal(t, "Invalid request body", env.Message)
	}
}
