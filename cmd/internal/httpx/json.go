package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"userhub/cmd/identity"
)

// DefaultMaxBodyBytes caps request bodies when the caller does not configure a limit.
const DefaultMaxBodyBytes int64 = 1 << 20

// Envelope is the body of every JSON response.
type Envelope struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message"`
	Data       any                  `json:"data,omitempty"`
	Error      string               `json:"error,omitempty"`
	Pagination *identity.Pagination `json:"pagination,omitempty"`
}

// WriteJSON writes v with status. Responses are never cached.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Created writes a 201 success envelope.
func Created(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// Paginated writes a 200 success envelope with pagination metadata.
func Paginated(w http.ResponseWriter, message string, data any, p identity.Pagination) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data, Pagination: &p})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, status int, message, detail string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message, Error: detail})
}

var (
	// ErrEmptyBody is returned by DecodeJSON when the request has no body.
	ErrEmptyBody = errors.New("request body is empty")

	// ErrTrailingData is returned by DecodeJSON when anything follows the first JSON value.
	ErrTrailingData = errors.New("extra data after JSON object")
)

// DecodeJSON reads a single JSON object into dst. Unknown fields are ignored so that
// clients may send extra properties; trailing data after the object is rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	switch err := dec.Decode(&struct{}{}); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return ErrTrailingData
	default:
		return fmt.Errorf("%w: %w", ErrTrailingData, err)
	}
}
