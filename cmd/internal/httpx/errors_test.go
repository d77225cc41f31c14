package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userhub/cmd/identity"
	"userhub/cmd/internal/auth/session"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", Invalid("email", "Invalid email format"), http.StatusBadRequest, "Validation failed"},
		{"empty body", ErrEmptyBody, http.StatusBadRequest, "Invalid request body"},
		{"truncated body", io.ErrUnexpectedEOF, http.StatusBadRequest, "Invalid request body"},
		{"trailing data", fmt.Errorf("%w: %w", ErrTrailingData, errors.New("invalid character 'x'")), http.StatusBadRequest, "Invalid request body"},
		{"body too large", &http.MaxBytesError{Limit: 16}, http.StatusRequestEntityTooLarge, "Request body too large"},
		{"bad credentials", session.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
		{"wrapped unauthorized", fmt.Errorf("x: %w", session.ErrInvalidRefreshToken), http.StatusUnauthorized, "Invalid refresh token"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "Insufficient permissions"},
		{"conflict", identity.ConflictError{Op: "identity.CreateUser", Field: "email"}, http.StatusConflict, "User with this email already exists"},
		{"not found", identity.NotFoundError{Op: "identity.GetUserByID", Resource: "user"}, http.StatusNotFound, "User not found"},
		{"incorrect password", session.ErrIncorrectPassword, http.StatusBadRequest, "Current password is incorrect"},
		{"reset token", session.ErrInvalidResetToken, http.StatusBadRequest, "Invalid or expired reset token"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Classify(tc.err)
			assert.Equal(t, tc.status, p.Status)
			assert.Equal(t, tc.message, p.Message)
			assert.Equal(t, tc.status != http.StatusInternalServerError, p.Operational)
		})
	}
}

func TestWriteErrorValidationEnvelope(t *testing.T) {
	var v Validator
	v.Email("email", "x")
	v.MinLen("name", "", 2, "Name must be at least 2 characters")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/users", nil)
	WriteError(rr, req, slog.New(slog.NewTextHandler(io.Discard, nil)), v.Err())

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body struct {
		Success bool         `json:"success"`
		Message string       `json:"message"`
		Error   string       `json:"error"`
		Data    []FieldError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Validation failed", body.Message)
	assert.Equal(t, "Invalid email format, Name must be at least 2 characters", body.Error)
	assert.Len(t, body.Data, 2)
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	WriteError(rr, req, slog.New(slog.NewTextHandler(io.Discard, nil)), errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestNotFoundEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	NotFound(rr, httptest.NewRequest(http.MethodGet, "/nope?x=1", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"success":false,"message":"Route /nope?x=1 not found"}`, rr.Body.String())
}
