package app

import (
	"log/slog"
	"net/http"

	authapi "userhub/cmd/internal/auth/api"
	"userhub/cmd/internal/httpx"
	"userhub/cmd/internal/users"
)

func registerHTTP(
	mux *http.ServeMux,
	health *healthHandler,
	metrics *Metrics,
	auth *authapi.Handler,
	usersH *users.Handler,
) {
	health.Register(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	auth.Register(mux)
	usersH.Register(mux)

	mux.HandleFunc("/", httpx.NotFound)
}

// buildHandler assembles the middleware chain around mux. Order matters: metrics
// must receive the same *http.Request that reaches the mux (see Metrics.Middleware).
func buildHandler(mux http.Handler, cfg Config, log *slog.Logger, metrics *Metrics) http.Handler {
	return Chain(mux,
		WithRecover(log),
		WithRequestID(),
		WithRequestLogging(log),
		metrics.Middleware,
		WithSecurityHeaders(cfg.IsProduction()),
		corsMiddleware(cfg, log),
		WithRateLimit(cfg, log, nil),
	)
}
