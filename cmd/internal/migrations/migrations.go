// Package migrations embeds userhub's goose migrations and applies them.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var Migrations embed.FS

// Result is one applied migration.
type Result struct {
	Version  int64
	Source   string
	Duration string
}

// Up applies every pending migration through the pool. It returns the migrations that ran.
//
// A goose Provider is used instead of the package-level API so concurrent callers
// (parallel integration tests) do not share global state.
func Up(ctx context.Context, pool *pgxpool.Pool) ([]Result, error) {
	if pool == nil {
		return nil, fmt.Errorf("migrations: nil pool")
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, Migrations)
	if err != nil {
		return nil, fmt.Errorf("migrations: provider: %w", err)
	}

	applied, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrations: up: %w", err)
	}

	out := make([]Result, 0, len(applied))
	for _, r := range applied {
		out = append(out, Result{
			Version:  r.Source.Version,
			Source:   r.Source.Path,
			Duration: r.Duration.String(),
		})
	}
	return out, nil
}
