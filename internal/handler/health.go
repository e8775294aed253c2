package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker is anything that can be pinged: the pgx pool, the Redis
// client, the RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

const readyTimeout = 5 * time.Second

type HealthHandler struct {
	deps map[string]HealthChecker
}

// NewHealthHandler takes the optional Postgres and Redis checkers, reported
// as "not configured" when nil, and the RPC checker.
func NewHealthHandler(db, cache, rpc HealthChecker) *HealthHandler {
	return &HealthHandler{deps: map[string]HealthChecker{
		"postgres": db,
		"redis":    cache,
		"rpc":      rpc,
	}}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness probe. It touches no dependency.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every configured dependency in parallel and answers 503 if
// any of them fails.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		checks  = make(map[string]string, len(h.deps))
		healthy = true
	)
	report := func(name, result string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		checks[name] = result
		healthy = healthy && ok
	}

	// Plain Group: one failing dependency must not cancel the others.
	var g errgroup.Group
	for name, dep := range h.deps {
		if dep == nil {
			report(name, "not configured", true)
			continue
		}
		name, dep := name, dep
		g.Go(func() error {
			if err := dep.Ping(ctx); err != nil {
				report(name, "error: "+err.Error(), false)
				return nil
			}
			report(name, "ok", true)
			return nil
		})
	}
	_ = g.Wait()

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}
