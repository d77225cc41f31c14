package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"userhub/cmd/internal/httpx"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-Request-ID"
	corsExposeHeader = "X-Request-ID, Retry-After"
)

// WithCORS enforces the origin allowlist from cfg.
//
// Entries are exact origins, "*", or "scheme://host:*" to accept any port on a host.
// Requests without an Origin header are not cross-origin and pass through untouched.
func WithCORS(next http.Handler, cfg Config, log *slog.Logger) http.Handler {
	allowAny := false
	exact := make(map[string]struct{}, len(cfg.CORSAllowedOrigins))
	var portWildcards []string
	for _, o := range cfg.CORSAllowedOrigins {
		switch {
		case o == "*":
			allowAny = true
		case strings.HasSuffix(o, ":*"):
			portWildcards = append(portWildcards, strings.ToLower(strings.TrimSuffix(o, "*")))
		default:
			exact[strings.ToLower(o)] = struct{}{}
		}
	}

	allowed := func(origin string) bool {
		if allowAny {
			return true
		}
		o := strings.ToLower(origin)
		if _, ok := exact[o]; ok {
			return true
		}
		for _, prefix := range portWildcards {
			if port, ok := strings.CutPrefix(o, prefix); ok && isPort(port) {
				return true
			}
		}
		return false
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")

		if !allowed(origin) {
			log.WarnContext(r.Context(), "http.cors.rejected",
				"origin", origin,
				"path", r.URL.Path,
				"request_id", httpx.RequestIDFrom(r.Context()),
			)
			httpx.Fail(w, http.StatusForbidden, "Origin not allowed", "")
			return
		}

		if allowAny && !cfg.CORSAllowCredentials {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
		}
		if cfg.CORSAllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		h.Set("Access-Control-Expose-Headers", corsExposeHeader)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			} else {
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			}
			if cfg.CORSMaxAgeSeconds > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.CORSMaxAgeSeconds))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isPort(s string) bool {
	if s == "" || len(s) > 5 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n > 0 && n <= 65535
}

func corsMiddleware(cfg Config, log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler { return WithCORS(next, cfg, log) }
}
