package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCreate(t *testing.T, s Store, email, name string, role Role, at time.Time) User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), CreateUserInput{
		Email:        email,
		Name:         name,
		PasswordHash: "hash",
		Role:         role,
		Now:          at,
	})
	require.NoError(t, err)
	return u
}

func TestMemoryStore_CreateUser_Defaults(t *testing.T) {
	s := NewMemoryStore()
	u := mustCreate(t, s, "  Alice@Example.COM ", " Alice   Smith ", "", time.Time{})

	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Alice Smith", u.Name)
	assert.Equal(t, RoleUser, u.Role)
	assert.True(t, u.IsActive)
	assert.False(t, u.EmailVerified)
	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())
	assert.Equal(t, u.CreatedAt, u.UpdatedAt)
}

func TestMemoryStore_CreateUser_ConflictEmail_CaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	mustCreate(t, s, "User@Example.com", "First", RoleUser, time.Time{})

	_, err := s.CreateUser(context.Background(), CreateUserInput{
		Email: "user@example.COM", Name: "Second", PasswordHash: "hash",
	})
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var ce ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "email", ce.Field)
}

func TestMemoryStore_CreateUser_InvalidInput(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cases := []CreateUserInput{
		{Name: "n", PasswordHash: "h"},
		{Email: "a@b.co", PasswordHash: "h"},
		{Email: "a@b.co", Name: "n"},
		{Email: "a@b.co", Name: "n", PasswordHash: "h", Role: "root"},
	}
	for _, in := range cases {
		_, err := s.CreateUser(ctx, in)
		assert.True(t, IsInvalidInput(err), "%+v -> %v", in, err)
	}
}

func TestMemoryStore_CreateUser_Inactive(t *testing.T) {
	s := NewMemoryStore()
	inactive := false
	u, err := s.CreateUser(context.Background(), CreateUserInput{
		Email: "x@example.com", Name: "X", PasswordHash: "h", IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.False(t, u.IsActive)
}

func TestMemoryStore_GetUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := mustCreate(t, s, "bob@example.com", "Bob", RoleModerator, time.Time{})

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	got, err = s.GetUserByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	ua, err := s.GetUserAuthByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", ua.PasswordHash)

	_, err = s.GetUserByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, IsNotFound(err))
	_, err = s.GetUserByID(ctx, "not-a-uuid")
	assert.True(t, IsNotFound(err))
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_ListUsers_Pagination(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 15 {
		mustCreate(t, s, fmt.Sprintf("user%02d@example.com", i), fmt.Sprintf("User %02d", i), RoleUser, base.Add(time.Duration(i)*time.Minute))
	}

	res, err := s.ListUsers(ctx, ListQuery{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, res.Users, 5)
	assert.Equal(t, Pagination{Page: 2, Limit: 10, Total: 15, TotalPages: 2, HasNext: false, HasPrev: true}, res.Pagination)

	first, err := s.ListUsers(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, first.Users, 10)
	assert.True(t, first.Pagination.HasNext)
	assert.False(t, first.Pagination.HasPrev)
	// default createdAt desc
	assert.Equal(t, "user14@example.com", first.Users[0].Email)

	beyond, err := s.ListUsers(ctx, ListQuery{Page: 5, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond.Users)
	assert.Equal(t, 15, beyond.Pagination.Total)
}

func TestMemoryStore_ListUsers_FilterAndSort(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mustCreate(t, s, "carol@example.com", "Carol", RoleAdmin, base)
	mustCreate(t, s, "dave@example.com", "Dave", RoleUser, base.Add(time.Minute))
	mustCreate(t, s, "erin@corp.test", "Erin Carolsdottir", RoleUser, base.Add(2*time.Minute))
	u := mustCreate(t, s, "frank@example.com", "Frank", RoleUser, base.Add(3*time.Minute))

	inactive := false
	_, err := s.UpdateUser(ctx, u.ID, UpdateUserInput{IsActive: &inactive})
	require.NoError(t, err)

	res, err := s.ListUsers(ctx, ListQuery{Search: "CAROL", SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, res.Users, 2)
	assert.Equal(t, "Carol", res.Users[0].Name)
	assert.Equal(t, "Erin Carolsdottir", res.Users[1].Name)

	res, err = s.ListUsers(ctx, ListQuery{Search: "corp.test"})
	require.NoError(t, err)
	require.Len(t, res.Users, 1)

	res, err = s.ListUsers(ctx, ListQuery{Role: RoleUser})
	require.NoError(t, err)
	assert.Len(t, res.Users, 3)

	active := true
	res, err = s.ListUsers(ctx, ListQuery{Role: RoleUser, IsActive: &active, SortBy: "email", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, res.Users, 2)
	assert.Equal(t, "dave@example.com", res.Users[0].Email)
	assert.Equal(t, "erin@corp.test", res.Users[1].Email)

	res, err = s.ListUsers(ctx, ListQuery{IsActive: &inactive})
	require.NoError(t, err)
	require.Len(t, res.Users, 1)
	assert.Equal(t, "frank@example.com", res.Users[0].Email)
}

func TestMemoryStore_UpdateUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := mustCreate(t, s, "a@example.com", "A", RoleUser, time.Time{})
	mustCreate(t, s, "b@example.com", "B", RoleUser, time.Time{})

	email := "B@example.com"
	_, err := s.UpdateUser(ctx, a.ID, UpdateUserInput{Email: &email})
	assert.True(t, IsConflict(err))

	same := "A@EXAMPLE.com"
	name := "Alpha"
	role := RoleModerator
	later := a.UpdatedAt.Add(time.Hour)
	got, err := s.UpdateUser(ctx, a.ID, UpdateUserInput{Email: &same, Name: &name, Role: &role, Now: later})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)
	assert.Equal(t, "Alpha", got.Name)
	assert.Equal(t, RoleModerator, got.Role)
	assert.Equal(t, later, got.UpdatedAt)
	assert.Equal(t, a.CreatedAt, got.CreatedAt)

	bad := Role("root")
	_, err = s.UpdateUser(ctx, a.ID, UpdateUserInput{Role: &bad})
	assert.True(t, IsInvalidInput(err))

	_, err = s.UpdateUser(ctx, "00000000-0000-0000-0000-000000000000", UpdateUserInput{Name: &name})
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_PasswordVerifiedDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := mustCreate(t, s, "p@example.com", "P", RoleUser, time.Time{})

	require.NoError(t, s.SetPassword(ctx, u.ID, "new-hash", time.Time{}))
	ua, err := s.GetUserAuthByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", ua.PasswordHash)

	require.NoError(t, s.SetEmailVerified(ctx, u.ID, time.Time{}))
	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	assert.True(t, IsNotFound(s.DeleteUser(ctx, u.ID)))
	_, err = s.GetUserByID(ctx, u.ID)
	assert.True(t, IsNotFound(err))

	require.NoError(t, s.Ping(ctx))
}
