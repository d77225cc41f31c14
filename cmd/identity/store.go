package identity

import (
	"context"
	"strings"
	"time"
)

// Role is a user's authorization level.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleModerator:
		return true
	default:
		return false
	}
}

// ParseRole parses s case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// User is the public view of an account. It never carries the password hash.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	IsActive      bool      `json:"isActive"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// UserAuth is a User plus its stored password hash, for credential checks only.
type UserAuth struct {
	User
	PasswordHash string `json:"-"`
}

// CreateUserInput describes a new account. PasswordHash must already be hashed.
type CreateUserInput struct {
	Email         string
	Name          string
	PasswordHash  string
	Role          Role  // defaults to RoleUser
	IsActive      *bool // defaults to true
	EmailVerified bool
	Now           time.Time
}

// UpdateUserInput is a partial update; nil fields are left unchanged.
type UpdateUserInput struct {
	Email    *string
	Name     *string
	Role     *Role
	IsActive *bool
	Now      time.Time
}

// Empty reports whether the update changes nothing.
func (in UpdateUserInput) Empty() bool {
	return in.Email == nil && in.Name == nil && in.Role == nil && in.IsActive == nil
}

// Store is the user persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)
	GetUserAuthByID(ctx context.Context, id string) (UserAuth, error)
	ListUsers(ctx context.Context, q ListQuery) (ListResult, error)
	UpdateUser(ctx context.Context, id string, in UpdateUserInput) (User, error)
	SetPassword(ctx context.Context, id, passwordHash string, now time.Time) error
	SetEmailVerified(ctx context.Context, id string, now time.Time) error
	DeleteUser(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

func prepareCreate(op string, in CreateUserInput) (CreateUserInput, bool, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Name = NormalizeName(in.Name)
	if in.Email == "" {
		return in, false, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email is required"}
	}
	if in.Name == "" {
		return in, false, OpError{Op: op, Kind: ErrInvalidInput, Msg: "name is required"}
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return in, false, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}
	if in.Role == "" {
		in.Role = RoleUser
	}
	if !in.Role.Valid() {
		return in, false, OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown role"}
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return in, active, nil
}

func prepareUpdate(op string, in UpdateUserInput) (UpdateUserInput, error) {
	if in.Email != nil {
		e := NormalizeEmail(*in.Email)
		if e == "" {
			return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email is empty"}
		}
		in.Email = &e
	}
	if in.Name != nil {
		n := NormalizeName(*in.Name)
		if n == "" {
			return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "name is empty"}
		}
		in.Name = &n
	}
	if in.Role != nil && !in.Role.Valid() {
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown role"}
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}
