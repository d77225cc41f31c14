package app

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"userhub/cmd/internal/httpx"
)

const healthPingTimeout = 2 * time.Second

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthHandler struct {
	log     *slog.Logger
	db      Pinger
	driver  string
	env     string
	version string
	started time.Time

	requireDB bool
	now       func() time.Time
}

type healthData struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Uptime      float64 `json:"uptime"`
	Environment string  `json:"environment"`
	Version     string  `json:"version"`
}

type serviceStatus struct {
	Status       string `json:"status"`
	Driver       string `json:"driver"`
	ResponseTime string `json:"responseTime"`
}

type memoryStats struct {
	Used     uint64 `json:"used"`
	Total    uint64 `json:"total"`
	External uint64 `json:"external"`
}

type detailedHealthData struct {
	healthData
	Services     map[string]serviceStatus `json:"services"`
	ResponseTime string                   `json:"responseTime"`
	Memory       memoryStats              `json:"memory"`
	Goroutines   int                      `json:"goroutines"`
}

func (h *healthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.basic)
	mux.HandleFunc("GET /health/detailed", h.detailed)
}

func (h *healthHandler) base(status string) healthData {
	now := h.now()
	return healthData{
		Status:      status,
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		Uptime:      now.Sub(h.started).Seconds(),
		Environment: h.env,
		Version:     h.version,
	}
}

func (h *healthHandler) basic(w http.ResponseWriter, _ *http.Request) {
	httpx.OK(w, "Health check successful", h.base("OK"))
}

func (h *healthHandler) detailed(w http.ResponseWriter, r *http.Request) {
	start := h.now()

	dbStatus := "OK"
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	pingStart := h.now()
	err := h.db.Ping(ctx)
	cancel()
	dbElapsed := h.now().Sub(pingStart)
	switch {
	case err != nil:
		dbStatus = "ERROR"
		h.log.WarnContext(r.Context(), "health.db.unreachable", "err", err,
			"request_id", httpx.RequestIDFrom(r.Context()))
	case h.requireDB && h.driver != "postgres":
		dbStatus = "ERROR"
	}

	status, code := "OK", http.StatusOK
	if dbStatus != "OK" {
		status, code = "DEGRADED", http.StatusServiceUnavailable
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	data := detailedHealthData{
		healthData: h.base(status),
		Services: map[string]serviceStatus{
			"database": {Status: dbStatus, Driver: h.driver, ResponseTime: millis(dbElapsed)},
		},
		ResponseTime: millis(h.now().Sub(start)),
		Memory: memoryStats{
			Used:     ms.HeapAlloc >> 20,
			Total:    ms.HeapSys >> 20,
			External: (ms.Sys - ms.HeapSys) >> 20,
		},
		Goroutines: runtime.NumGoroutine(),
	}

	httpx.WriteJSON(w, code, httpx.Envelope{
		Success: true,
		Message: "Detailed health check completed",
		Data:    data,
	})
}

func millis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}
