package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"userhub/cmd/identity"
)

// PostgresStore implements Store and ResetStore over PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStore creates a Postgres-backed token store. schema "" means "public".
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	if schema == "" {
		schema = "public"
	}
	if !identity.PGIdentIsValid(schema) {
		return nil, fmt.Errorf("session: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

var (
	_ Store      = (*PostgresStore)(nil)
	_ ResetStore = (*PostgresStore)(nil)
)

func (s *PostgresStore) tokens() string { return identity.PGIdent(s.schema, "refresh_tokens") }
func (s *PostgresStore) resets() string { return identity.PGIdent(s.schema, "password_resets") }

// Create inserts a new refresh token row.
func (s *PostgresStore) Create(ctx context.Context, t RefreshToken) error {
	return insertToken(ctx, s.pool, s.tokens(), t)
}

// FindActive loads an unexpired row by hash and owner.
func (s *PostgresStore) FindActive(ctx context.Context, tokenHash, userID string, now time.Time) (RefreshToken, error) {
	var t RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT id, token_hash, user_id::text, expires_at, created_at
		FROM `+s.tokens()+`
		WHERE token_hash = $1
		  AND user_id::text = $2
		  AND expires_at > $3
	`, tokenHash, userID, now).Scan(&t.ID, &t.TokenHash, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshToken{}, ErrTokenNotFound
	}
	if err != nil {
		return RefreshToken{}, err
	}
	return t, nil
}

// Rotate deletes oldID and inserts next inside one transaction.
func (s *PostgresStore) Rotate(ctx context.Context, oldID string, next RefreshToken) error {
	if err := next.validate("session.RotateRefreshToken"); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM `+s.tokens()+` WHERE id = $1`, oldID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrTokenNotFound
	}

	if err := insertToken(ctx, tx, s.tokens(), next); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteByHash(ctx context.Context, tokenHash string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.tokens()+` WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.tokens()+` WHERE user_id = $1::uuid`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.tokens()+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CountForUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+s.tokens()+` WHERE user_id = $1::uuid`, userID).Scan(&n)
	return n, err
}

// PutPasswordReset upserts the user's single outstanding reset.
func (s *PostgresStore) PutPasswordReset(ctx context.Context, r PasswordReset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.resets()+` (user_id, token_hash, expires_at, created_at)
		VALUES ($1::uuid, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		   SET token_hash = EXCLUDED.token_hash,
		       expires_at = EXCLUDED.expires_at,
		       created_at = EXCLUDED.created_at
	`, r.UserID, r.TokenHash, r.ExpiresAt, r.CreatedAt)
	if identity.PGIsForeignKeyViolation(err) {
		return identity.NotFoundError{Op: "session.PutPasswordReset", Resource: "user"}
	}
	return err
}

// ConsumePasswordReset deletes the matching reset. A wrong token leaves the row in place.
func (s *PostgresStore) ConsumePasswordReset(ctx context.Context, userID, tokenHash string, now time.Time) error {
	var expires time.Time
	err := s.pool.QueryRow(ctx, `
		DELETE FROM `+s.resets()+`
		WHERE user_id = $1::uuid AND token_hash = $2
		RETURNING expires_at
	`, userID, tokenHash).Scan(&expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenNotFound
	}
	if err != nil {
		return err
	}
	if !expires.After(now) {
		return ErrTokenNotFound
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertToken(ctx context.Context, db execer, table string, t RefreshToken) error {
	if err := t.validate("session.CreateRefreshToken"); err != nil {
		return err
	}
	_, err := db.Exec(ctx, `
		INSERT INTO `+table+` (id, token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3::uuid, $4, $5)
	`, t.ID, t.TokenHash, t.UserID, t.ExpiresAt, t.CreatedAt)
	if identity.PGIsForeignKeyViolation(err) {
		return identity.NotFoundError{Op: "session.CreateRefreshToken", Resource: "user"}
	}
	return err
}

// ctEqHex64 compares two 64-char hex strings in constant time.
func ctEqHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
