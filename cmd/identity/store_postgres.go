package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"userhub/cmd/identity/ids"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; the store never closes it. Table identifiers are
// schema-qualified and quoted.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding the users table (default "public").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !PGIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "public",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

var _ Store = (*PostgresStore)(nil)

const userColumns = `id::text, email, name, role, is_active, email_verified, created_at, updated_at`

func (s *PostgresStore) users() string { return PGIdent(s.schema, "users") }

// CreateUser inserts a user. The email is checked first; the unique constraint backs it up.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, active, err := prepareCreate(op, in)
	if err != nil {
		return User{}, err
	}

	if _, err := s.GetUserByEmail(ctx, in.Email); err == nil {
		return User{}, ConflictError{Op: op, Field: "email"}
	} else if !IsNotFound(err) {
		return User{}, err
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+s.users()+` (
		     id, email, name, password_hash, role, is_active, email_verified, created_at, updated_at
		   ) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $8)
		   RETURNING `+userColumns,
		ids.NewUserID(),
		in.Email,
		in.Name,
		in.PasswordHash,
		string(in.Role),
		active,
		in.EmailVerified,
		in.Now.UTC(),
	)

	u, err := scanUser(row)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	ua, err := s.GetUserAuthByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	return ua.User, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	ua, err := s.GetUserAuthByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	return ua.User, nil
}

func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserByEmail"

	email = NormalizeEmail(email)
	if email == "" {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash FROM `+s.users()+` WHERE email = $1`,
		email,
	)
	ua, err := scanUserAuth(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
		}
		return UserAuth{}, err
	}
	return ua, nil
}

func (s *PostgresStore) GetUserAuthByID(ctx context.Context, id string) (UserAuth, error) {
	const op = "identity.GetUserByID"

	uid, ok := ids.ParseUserID(id)
	if !ok {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash FROM `+s.users()+` WHERE id = $1::uuid`,
		uid,
	)
	ua, err := scanUserAuth(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
		}
		return UserAuth{}, err
	}
	return ua, nil
}

// ListUsers runs a count and a page query over the same filter.
func (s *PostgresStore) ListUsers(ctx context.Context, q ListQuery) (ListResult, error) {
	q = q.Normalized()

	where, args := buildListFilter(q)

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+s.users()+where,
		args...,
	).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("identity.ListUsers: count: %w", err)
	}

	dir := "DESC"
	if q.SortOrder == "asc" {
		dir = "ASC"
	}
	order := fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumns[q.SortBy], dir, dir)

	pageArgs := append(args, q.Limit, q.Offset())
	limit := fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM `+s.users()+where+order+limit,
		pageArgs...,
	)
	if err != nil {
		return ListResult{}, fmt.Errorf("identity.ListUsers: query: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (User, error) {
		return scanUser(r)
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("identity.ListUsers: scan: %w", err)
	}

	return ListResult{
		Users:      users,
		Pagination: NewPagination(q.Page, q.Limit, total),
	}, nil
}

// buildListFilter returns a WHERE clause (or "") and its positional args.
func buildListFilter(q ListQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", n, n))
	}
	if q.Role != "" {
		args = append(args, string(q.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if q.IsActive != nil {
		args = append(args, *q.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// UpdateUser applies a partial update. Changing the email re-checks uniqueness.
func (s *PostgresStore) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (User, error) {
	const op = "identity.UpdateUser"

	in, err := prepareUpdate(op, in)
	if err != nil {
		return User{}, err
	}
	uid, ok := ids.ParseUserID(id)
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}

	if in.Email != nil {
		existing, err := s.GetUserByEmail(ctx, *in.Email)
		switch {
		case err == nil && existing.ID != uid:
			return User{}, ConflictError{Op: op, Field: "email"}
		case err != nil && !IsNotFound(err):
			return User{}, err
		}
	}

	var role *string
	if in.Role != nil {
		r := string(*in.Role)
		role = &r
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.users()+`
		    SET email      = COALESCE($2, email),
		        name       = COALESCE($3, name),
		        role       = COALESCE($4, role),
		        is_active  = COALESCE($5, is_active),
		        updated_at = $6
		  WHERE id = $1::uuid
		  RETURNING `+userColumns,
		uid, in.Email, in.Name, role, in.IsActive, in.Now.UTC(),
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) SetPassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	const op = "identity.SetPassword"

	if strings.TrimSpace(passwordHash) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}
	return s.execOne(ctx, op,
		`UPDATE `+s.users()+` SET password_hash = $2, updated_at = $3 WHERE id = $1::uuid`,
		id, passwordHash, nowOr(now),
	)
}

func (s *PostgresStore) SetEmailVerified(ctx context.Context, id string, now time.Time) error {
	return s.execOne(ctx, "identity.SetEmailVerified",
		`UPDATE `+s.users()+` SET email_verified = TRUE, updated_at = $2 WHERE id = $1::uuid`,
		id, nowOr(now),
	)
}

// DeleteUser removes the user; refresh tokens and resets cascade.
func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	return s.execOne(ctx, "identity.DeleteUser",
		`DELETE FROM `+s.users()+` WHERE id = $1::uuid`,
		id,
	)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// execOne runs a single-row statement keyed by user id ($1) and maps zero rows to NotFound.
func (s *PostgresStore) execOne(ctx context.Context, op, sql, id string, args ...any) error {
	uid, ok := ids.ParseUserID(id)
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	tag, err := s.pool.Exec(ctx, sql, append([]any{uid}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(
		&u.ID, &u.Email, &u.Name, &role, &u.IsActive, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func scanUserAuth(row pgx.Row) (UserAuth, error) {
	var (
		ua   UserAuth
		role string
	)
	if err := row.Scan(
		&ua.ID, &ua.Email, &ua.Name, &role, &ua.IsActive, &ua.EmailVerified, &ua.CreatedAt, &ua.UpdatedAt,
		&ua.PasswordHash,
	); err != nil {
		return UserAuth{}, err
	}
	ua.Role = Role(role)
	ua.CreatedAt = ua.CreatedAt.UTC()
	ua.UpdatedAt = ua.UpdatedAt.UTC()
	return ua, nil
}

// ---- helpers ----

// PGIdentIsValid checks if a string is a safe Postgres identifier.
func PGIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// PGIdent safely quotes a schema-qualified identifier: "schema"."name".
func PGIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// PGIsForeignKeyViolation reports a 23503 error.
func PGIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email", strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "token"):
		return "token", true
	default:
		return "unique", true
	}
}
