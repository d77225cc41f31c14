package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"userhub/cmd/identity"
	"userhub/cmd/internal/migrations"
	"userhub/cmd/security/password"
)

// SeedAccount is one user created by the seeder when missing.
type SeedAccount struct {
	Email    string
	Name     string
	Password string
	Role     identity.Role
}

type seedEnv struct {
	AdminPassword     string `env:"SEED_ADMIN_PASSWORD" envDefault:"admin123"`
	UserPassword      string `env:"SEED_USER_PASSWORD" envDefault:"user1234"`
	ModeratorPassword string `env:"SEED_MODERATOR_PASSWORD" envDefault:"moderator123"`
}

// DefaultSeedAccounts returns the development accounts, one per role.
// Passwords come from SEED_*_PASSWORD when set.
func DefaultSeedAccounts() ([]SeedAccount, error) {
	var e seedEnv
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return []SeedAccount{
		{Email: "admin@example.com", Name: "Admin User", Password: e.AdminPassword, Role: identity.RoleAdmin},
		{Email: "user@example.com", Name: "Regular User", Password: e.UserPassword, Role: identity.RoleUser},
		{Email: "moderator@example.com", Name: "Moderator User", Password: e.ModeratorPassword, Role: identity.RoleModerator},
	}, nil
}

// Seed creates every account that does not exist yet. Existing accounts are left
// untouched, so running it twice is safe. It returns how many users were created.
func Seed(ctx context.Context, store identity.Store, pw password.Config, accounts []SeedAccount, log *slog.Logger) (int, error) {
	created := 0
	for _, acc := range accounts {
		_, err := store.GetUserByEmail(ctx, acc.Email)
		if err == nil {
			log.InfoContext(ctx, "seed.user.exists", "email", identity.NormalizeEmail(acc.Email))
			continue
		}
		if !identity.IsNotFound(err) {
			return created, fmt.Errorf("seed: lookup %s: %w", acc.Email, err)
		}

		if err := pw.Validate(acc.Password); err != nil {
			return created, fmt.Errorf("seed: password for %s: %w", acc.Email, err)
		}
		hash, err := pw.Hash(acc.Password)
		if err != nil {
			return created, fmt.Errorf("seed: hash: %w", err)
		}

		u, err := store.CreateUser(ctx, identity.CreateUserInput{
			Email:         acc.Email,
			Name:          acc.Name,
			PasswordHash:  hash,
			Role:          acc.Role,
			EmailVerified: true,
			Now:           time.Now(),
		})
		switch {
		case identity.IsConflict(err):
			log.InfoContext(ctx, "seed.user.exists", "email", identity.NormalizeEmail(acc.Email))
			continue
		case err != nil:
			return created, fmt.Errorf("seed: create %s: %w", acc.Email, err)
		}
		created++
		log.InfoContext(ctx, "seed.user.created", "email", u.Email, "role", u.Role, "user_id", u.ID)
	}
	return created, nil
}

// RunSeed is the entrypoint used by cmd/userhub-seed. It needs DATABASE_URL and
// always applies pending migrations first.
func RunSeed() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if cfg.DatabaseURL == "" {
		return errors.New("seed: DATABASE_URL is required")
	}

	pw, err := password.FromEnv()
	if err != nil {
		return err
	}
	accounts, err := DefaultSeedAccounts()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	if _, err := migrations.Up(ctx, pool); err != nil {
		return err
	}
	store, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return err
	}

	n, err := Seed(ctx, store, pw, accounts, log)
	if err != nil {
		log.Error("seed.fail", "err", err, "created", n)
		return err
	}
	log.Info("seed.done", "created", n, "total", len(accounts))
	return nil
}
