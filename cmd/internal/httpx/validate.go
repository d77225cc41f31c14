package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"userhub/cmd/security/password"
)

// FieldError is one failed check on a request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every failed check of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, ", ")
}

// Validator accumulates field errors. The zero value is ready to use.
type Validator struct {
	fields []FieldError
}

// Check records msg for field unless ok holds.
func (v *Validator) Check(ok bool, field, msg string) {
	if !ok {
		v.fields = append(v.fields, FieldError{Field: field, Message: msg})
	}
}

// Email requires a bare address (no display name).
func (v *Validator) Email(field, value string) {
	v.Check(IsEmail(value), field, "Invalid email format")
}

// MinLen requires at least n runes after trimming.
func (v *Validator) MinLen(field, value string, n int, msg string) {
	v.Check(utf8.RuneCountInString(strings.TrimSpace(value)) >= n, field, msg)
}

// Err returns a *ValidationError when any check failed.
func (v *Validator) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// Invalid returns a single-field validation error.
func Invalid(field, msg string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

// IsEmail reports whether s is a single address without a display name.
func IsEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// PathID reads the {id} path value and requires a UUID.
func PathID(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", Invalid("id", "Invalid ID format")
	}
	return id.String(), nil
}

// Password applies the password policy to value.
func (v *Validator) Password(field, value string, cfg password.Config) {
	if err := cfg.Validate(value); err != nil {
		v.Check(false, field, passwordMessage(err, cfg))
	}
}

func passwordMessage(err error, cfg password.Config) string {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return fmt.Sprintf("Password must be at least %d characters", cfg.Policy.MinLength)
	case errors.Is(err, password.ErrPasswordTooLong):
		return fmt.Sprintf("Password must be at most %d characters", cfg.Policy.MaxLength)
	case errors.Is(err, password.ErrWeakPassword):
		return "Password is too common"
	default:
		return "Invalid password"
	}
}
