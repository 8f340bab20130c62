package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is anything that can confirm a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the liveness of the service and its dependencies.
type HealthHandler struct {
	db    Pinger
	cache Pinger
}

// NewHealthHandler builds a health endpoint over the given dependencies.
// Either may be nil and is then skipped.
func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Handle is GET /health. Any failing dependency degrades the response to
// 503 while still naming the healthy ones.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := map[string]string{}
	healthy := true
	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(ctx); err != nil {
			components[name] = "down"
			healthy = false
			return
		}
		components[name] = "ok"
	}
	check("database", h.db)
	check("redis", h.cache)

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     status,
		"components": components,
	})
}
