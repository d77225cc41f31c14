package identity

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"userhub/cmd/identity/ids"
)

// MemoryStore is an in-process Store for tests and database-less development runs.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*UserAuth
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*UserAuth)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, active, err := prepareCreate(op, in)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByEmailLocked(in.Email) != nil {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	now := in.Now.UTC()
	u := &UserAuth{
		User: User{
			ID:            ids.NewUserID(),
			Email:         in.Email,
			Name:          in.Name,
			Role:          in.Role,
			IsActive:      active,
			EmailVerified: in.EmailVerified,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		PasswordHash: in.PasswordHash,
	}
	s.users[u.ID] = u
	return u.User, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	ua, err := s.GetUserAuthByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	return ua.User, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	ua, err := s.GetUserAuthByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	return ua.User, nil
}

func (s *MemoryStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.findByEmailLocked(NormalizeEmail(email))
	if u == nil {
		return UserAuth{}, NotFoundError{Op: "identity.GetUserByEmail", Resource: "user"}
	}
	return *u, nil
}

func (s *MemoryStore) GetUserAuthByID(ctx context.Context, id string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[canonicalID(id)]
	if !ok {
		return UserAuth{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return *u, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, q ListQuery) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}
	q = q.Normalized()
	search := strings.ToLower(q.Search)

	s.mu.RLock()
	matched := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(u.Email, search) {
			continue
		}
		if q.Role != "" && u.Role != q.Role {
			continue
		}
		if q.IsActive != nil && u.IsActive != *q.IsActive {
			continue
		}
		matched = append(matched, u.User)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b User) int {
		c := compareBy(q.SortBy, a, b)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if q.SortOrder == "desc" {
			return -c
		}
		return c
	})

	total := len(matched)
	start := min(q.Offset(), total)
	end := min(start+q.Limit, total)

	return ListResult{
		Users:      matched[start:end],
		Pagination: NewPagination(q.Page, q.Limit, total),
	}, nil
}

func compareBy(field string, a, b User) int {
	switch field {
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "name":
		return cmp.Compare(a.Name, b.Name)
	case "email":
		return cmp.Compare(a.Email, b.Email)
	case "role":
		return cmp.Compare(a.Role, b.Role)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (User, error) {
	const op = "identity.UpdateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := prepareUpdate(op, in)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[canonicalID(id)]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if in.Email != nil && *in.Email != u.Email {
		if other := s.findByEmailLocked(*in.Email); other != nil && other.ID != u.ID {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		u.Email = *in.Email
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	u.UpdatedAt = in.Now.UTC()
	return u.User, nil
}

func (s *MemoryStore) SetPassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	const op = "identity.SetPassword"

	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[canonicalID(id)]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = nowOr(now)
	return nil
}

func (s *MemoryStore) SetEmailVerified(ctx context.Context, id string, now time.Time) error {
	const op = "identity.SetEmailVerified"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[canonicalID(id)]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	u.EmailVerified = true
	u.UpdatedAt = nowOr(now)
	return nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := canonicalID(id)
	if _, ok := s.users[key]; !ok {
		return NotFoundError{Op: "identity.DeleteUser", Resource: "user"}
	}
	delete(s.users, key)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) findByEmailLocked(email string) *UserAuth {
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func canonicalID(id string) string {
	if c, ok := ids.ParseUserID(id); ok {
		return c
	}
	return id
}

func nowOr(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now().UTC()
	}
	return now.UTC()
}
