package session

import "errors"

// ErrUnauthorized is the kind behind every authentication failure.
var ErrUnauthorized = errors.New("unauthorized")

// UnauthorizedError carries a client-safe reason and unwraps to ErrUnauthorized.
type UnauthorizedError struct {
	Reason string
}

func (e UnauthorizedError) Error() string { return e.Reason }

func (e UnauthorizedError) Unwrap() error { return ErrUnauthorized }

var (
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = UnauthorizedError{Reason: "Invalid email or password"}

	// ErrAccountInactive is returned on login for deactivated accounts.
	ErrAccountInactive = UnauthorizedError{Reason: "Account is deactivated"}

	// ErrInvalidRefreshToken covers bad signature, expiry, unknown or already-rotated
	// tokens, and tokens whose owner is gone or inactive.
	ErrInvalidRefreshToken = UnauthorizedError{Reason: "Invalid refresh token"}

	// ErrInvalidAccessToken is returned by Authenticate.
	ErrInvalidAccessToken = UnauthorizedError{Reason: "Invalid or expired access token"}
)

var (
	// ErrIncorrectPassword is returned by ChangePassword when the current password does not match.
	ErrIncorrectPassword = errors.New("current password is incorrect")

	// ErrInvalidResetToken is returned when a password reset token is unknown, expired or used.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")

	// ErrTokenNotFound is returned by stores when no matching row exists.
	ErrTokenNotFound = errors.New("token not found")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
