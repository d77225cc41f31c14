package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"userhub/cmd/identity"
	"userhub/cmd/internal/auth/session"
	"userhub/cmd/security/password"
)

var (
	// ErrForbidden is returned when the caller's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrMissingToken is returned when a protected route has no bearer token.
	ErrMissingToken = session.UnauthorizedError{Reason: "Access token required"}
)

// Problem is the HTTP rendering of an error.
type Problem struct {
	Status  int
	Message string
	Detail  string
	Fields  []FieldError

	// Operational problems are expected outcomes (bad input, bad credentials).
	Operational bool
}

// Classify maps err to a Problem. Unknown errors become a generic 500.
func Classify(err error) Problem {
	var (
		ve       *ValidationError
		ue       session.UnauthorizedError
		syntax   *json.SyntaxError
		typeErr  *json.UnmarshalTypeError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.As(err, &ve):
		return Problem{Status: http.StatusBadRequest, Message: "Validation failed", Detail: ve.Error(), Fields: ve.Fields, Operational: true}
	case errors.As(err, &tooLarge):
		return Problem{Status: http.StatusRequestEntityTooLarge, Message: "Request body too large", Operational: true}
	case errors.Is(err, ErrEmptyBody),
		errors.Is(err, ErrTrailingData),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &syntax),
		errors.As(err, &typeErr):
		return Problem{Status: http.StatusBadRequest, Message: "Invalid request body", Operational: true}
	case errors.As(err, &ue):
		return Problem{Status: http.StatusUnauthorized, Message: ue.Reason, Operational: true}
	case errors.Is(err, session.ErrUnauthorized):
		return Problem{Status: http.StatusUnauthorized, Message: "Unauthorized", Operational: true}
	case errors.Is(err, ErrForbidden):
		return Problem{Status: http.StatusForbidden, Message: "Insufficient permissions", Operational: true}
	case identity.IsConflict(err):
		return Problem{Status: http.StatusConflict, Message: "User with this email already exists", Operational: true}
	case identity.IsNotFound(err):
		return Problem{Status: http.StatusNotFound, Message: "User not found", Operational: true}
	case identity.IsInvalidInput(err):
		return Problem{Status: http.StatusBadRequest, Message: "Invalid input", Operational: true}
	case errors.Is(err, session.ErrIncorrectPassword):
		return Problem{Status: http.StatusBadRequest, Message: "Current password is incorrect", Operational: true}
	case errors.Is(err, session.ErrInvalidResetToken):
		return Problem{Status: http.StatusBadRequest, Message: "Invalid or expired reset token", Operational: true}
	case errors.Is(err, password.ErrPasswordTooShort),
		errors.Is(err, password.ErrPasswordTooLong),
		errors.Is(err, password.ErrWeakPassword):
		return Problem{Status: http.StatusBadRequest, Message: "Validation failed", Detail: "Password does not meet policy", Operational: true}
	case errors.Is(err, context.Canceled):
		return Problem{Status: http.StatusServiceUnavailable, Message: "Request cancelled", Operational: true}
	default:
		return Problem{Status: http.StatusInternalServerError, Message: "Internal Server Error"}
	}
}

// WriteError logs err and writes its envelope. Operational errors log at Warn,
// everything else at Error.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if log == nil {
		log = slog.Default()
	}
	p := Classify(err)

	attrs := []any{
		"err", err,
		"status", p.Status,
		"method", r.Method,
		"path", r.URL.Path,
	}
	if id := RequestIDFrom(r.Context()); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if p.Operational {
		log.WarnContext(r.Context(), "http.error.operational", attrs...)
	} else {
		log.ErrorContext(r.Context(), "http.error.unexpected", attrs...)
	}

	env := Envelope{Success: false, Message: p.Message, Error: p.Detail}
	if len(p.Fields) > 0 {
		env.Data = p.Fields
	}
	WriteJSON(w, p.Status, env)
}

// NotFound writes the envelope for an unknown route.
func NotFound(w http.ResponseWriter, r *http.Request) {
	Fail(w, http.StatusNotFound, "Route "+r.URL.RequestURI()+" not found", "")
}
