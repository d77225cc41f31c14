package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"userhub/cmd/internal/auth/session"
)

// Run is the CLI entrypoint used by cmd/userhub.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, sessCfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
