package http

import (
	"context"
	"net/http"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// ComponentHealth describes the state of one dependency.
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthChecker reports the state of the server's dependencies.
type HealthChecker interface {
	Check(ctx context.Context) []ComponentHealth
}

// HealthCheckFunc adapts a function to the HealthChecker interface.
type HealthCheckFunc func(ctx context.Context) []ComponentHealth

// Check implements HealthChecker.
func (f HealthCheckFunc) Check(ctx context.Context) []ComponentHealth {
	return f(ctx)
}

type healthResponse struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	Components []ComponentHealth `json:"components,omitempty"`
}

// handleHealth handles GET /health. Always 200: it reports state, readiness
// gating is /ready's job.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: s.Uptime().Round(time.Second).String(),
	}

	if s.deps.HealthChecker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp.Components = s.deps.HealthChecker.Check(ctx)
		for _, c := range resp.Components {
			if !c.Healthy {
				resp.Status = "degraded"
				break
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleReady handles GET /ready. 503 while any dependency is down so the
// orchestrator keeps traffic away.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := s.deps.HealthChecker.Check(ctx)
	for _, c := range components {
		if !c.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status:     "not_ready",
				Uptime:     s.Uptime().Round(time.Second).String(),
				Components: components,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles GET /live. The process is alive if it can answer.
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
