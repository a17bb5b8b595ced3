package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// DependencyCheck is one readiness probe.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// RedisCheck probes the attempt store / outcome stream. A nil client yields
// no check.
func RedisCheck(client *redis.Client) []DependencyCheck {
	if client == nil {
		return nil
	}
	return []DependencyCheck{{Name: "redis", Ping: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}}
}

// JournalCheck probes the outcome journal database. A nil pool yields no check.
func JournalCheck(pool *pgxpool.Pool) []DependencyCheck {
	if pool == nil {
		return nil
	}
	return []DependencyCheck{{Name: "journal", Ping: pool.Ping}}
}

type HealthController struct {
	checks []DependencyCheck
}

func NewHealthController(checks ...[]DependencyCheck) *HealthController {
	h := &HealthController{}
	for _, c := range checks {
		h.checks = append(h.checks, c...)
	}
	return h
}

// Mount registers /health, /health/live and /health/ready on r.
func (h *HealthController) Mount(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/health/live", h.Liveness)
	r.Get("/health/ready", h.Readiness)
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness pings every dependency and reports each one, failing with 503
// when any is down.
func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			results[c.Name] = "unavailable"
			status, code = "not ready", http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}

	writeJSON(w, code, map[string]any{"status": status, "checks": results})
}
