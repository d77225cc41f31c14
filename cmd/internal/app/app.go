// Package app wires the userhub server runtime: config, logging, storage, HTTP routes and background jobs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"userhub/cmd/identity"
	authapi "userhub/cmd/internal/auth/api"
	"userhub/cmd/internal/auth/session"
	"userhub/cmd/internal/migrations"
	"userhub/cmd/internal/users"
)

// App is the userhub server runtime. It owns the database pool and the HTTP server.
type App struct {
	cfg Config
	log Logger

	pool     *pgxpool.Pool
	sessions *session.Service
	metrics  *Metrics
	handler  http.Handler
}

type stores struct {
	users  identity.Store
	tokens session.Store
	resets session.ResetStore
	driver string
}

// New constructs a fully wired App. With DATABASE_URL set it connects to Postgres
// (applying migrations when MIGRATE_ON_START is true); otherwise it runs on in-memory stores.
func New(ctx context.Context, cfg Config, sessCfg session.Config, log Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := ValidateSecurityConfig(cfg, sessCfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: NewMetrics()}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewService(sessCfg, st.users, st.tokens, st.resets,
		session.WithLogger(log),
		session.WithMailer(session.LogMailer{Log: log, RevealToken: cfg.RevealResetTokens}),
		session.WithObserver(a.metrics),
	)
	if err != nil {
		a.closePool()
		return nil, err
	}
	a.sessions = sessions

	authH, err := authapi.NewHandler(log, sessions, cfg.Auth)
	if err != nil {
		a.closePool()
		return nil, err
	}
	usersH, err := users.NewHandler(log, st.users, sessions, users.Config{MaxBodyBytes: cfg.Auth.MaxBodyBytes})
	if err != nil {
		a.closePool()
		return nil, err
	}

	health := &healthHandler{
		log:       log,
		db:        st.users,
		driver:    st.driver,
		env:       cfg.Env,
		version:   cfg.Version,
		started:   time.Now(),
		requireDB: cfg.ReadinessRequireDB,
		now:       time.Now,
	}

	mux := http.NewServeMux()
	registerHTTP(mux, health, a.metrics, authH, usersH)
	a.handler = buildHandler(mux, cfg, log, a.metrics)

	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		tokens := session.NewMemoryStore()
		return stores{
			users:  identity.NewMemoryStore(),
			tokens: tokens,
			resets: tokens,
			driver: "memory",
		}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return stores{}, fmt.Errorf("db: %w", err)
	}
	a.pool = pool

	if a.cfg.MigrateOnStart {
		applied, err := migrations.Up(ctx, pool)
		if err != nil {
			a.closePool()
			return stores{}, err
		}
		for _, m := range applied {
			a.log.Info("db.migration.applied", "version", m.Version, "source", m.Source, "duration", m.Duration)
		}
	}

	usersStore, err := identity.NewPostgresStore(pool, identity.WithSchema(a.cfg.DBSchema))
	if err != nil {
		a.closePool()
		return stores{}, err
	}
	tokens, err := session.NewPostgresStore(pool, a.cfg.DBSchema)
	if err != nil {
		a.closePool()
		return stores{}, err
	}

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)
	return stores{users: usersStore, tokens: tokens, resets: tokens, driver: "postgres"}, nil
}

func (a *App) closePool() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and the token janitor, blocking until ctx is cancelled
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.closePool()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", runtimeBaseURL(a.cfg.HTTPAddr),
		"env", a.cfg.Env,
		"version", a.cfg.Version,
		"db_enabled", a.pool != nil,
	)

	jobCtx, stopJobs := context.WithCancel(ctx)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		a.runTokenJanitor(jobCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	stopJobs()
	<-janitorDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	a.log.Info("server.stopped")
	return runErr
}

// runTokenJanitor deletes expired refresh tokens every TokenPruneInterval.
func (a *App) runTokenJanitor(ctx context.Context) {
	if a.cfg.TokenPruneInterval <= 0 {
		return
	}
	t := time.NewTicker(a.cfg.TokenPruneInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.pruneTokens(ctx)
		}
	}
}

func (a *App) pruneTokens(ctx context.Context) {
	n, err := a.sessions.PruneExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.log.Warn("auth.tokens.prune.fail", "err", err)
		}
		return
	}
	if n > 0 {
		a.log.Info("auth.tokens.pruned", "count", n)
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
