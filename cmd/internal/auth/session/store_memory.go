package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store and ResetStore in process.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]RefreshToken // by id
	resets map[string]PasswordReset
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]RefreshToken),
		resets: make(map[string]PasswordReset),
	}
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ ResetStore = (*MemoryStore)(nil)
)

func (s *MemoryStore) Create(ctx context.Context, t RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.validate("session.CreateRefreshToken"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.ID] = t
	return nil
}

func (s *MemoryStore) FindActive(ctx context.Context, tokenHash, userID string, now time.Time) (RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return RefreshToken{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash && t.UserID == userID && t.ExpiresAt.After(now) {
			return t, nil
		}
	}
	return RefreshToken{}, ErrTokenNotFound
}

func (s *MemoryStore) Rotate(ctx context.Context, oldID string, next RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := next.validate("session.RotateRefreshToken"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[oldID]; !ok {
		return ErrTokenNotFound
	}
	delete(s.tokens, oldID)
	s.tokens[next.ID] = next
	return nil
}

func (s *MemoryStore) DeleteByHash(ctx context.Context, tokenHash string) (int64, error) {
	return s.deleteWhere(ctx, func(t RefreshToken) bool { return t.TokenHash == tokenHash })
}

func (s *MemoryStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	return s.deleteWhere(ctx, func(t RefreshToken) bool { return t.UserID == userID })
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteWhere(ctx, func(t RefreshToken) bool { return !t.ExpiresAt.After(now) })
}

func (s *MemoryStore) CountForUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) deleteWhere(ctx context.Context, match func(RefreshToken) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tokens {
		if match(t) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) PutPasswordReset(ctx context.Context, r PasswordReset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[r.UserID] = r
	return nil
}

func (s *MemoryStore) ConsumePasswordReset(ctx context.Context, userID, tokenHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resets[userID]
	if !ok || !ctEqHex64(r.TokenHash, tokenHash) {
		return ErrTokenNotFound
	}
	delete(s.resets, userID)
	if !r.ExpiresAt.After(now) {
		return ErrTokenNotFound
	}
	return nil
}
