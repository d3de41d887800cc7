package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/polymind/polymind/internal/indexer"
)

// Pinger checks one dependency's liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler reports process and dependency health plus ingestion
// progress.
type HealthHandler struct {
	deps    map[string]Pinger
	ingest  func() indexer.Status
	started time.Time
}

// NewHealthHandler creates a HealthHandler. deps maps component names to
// their liveness checks; ingest supplies the indexer status snapshot.
func NewHealthHandler(deps map[string]Pinger, ingest func() indexer.Status) *HealthHandler {
	return &HealthHandler{
		deps:    deps,
		ingest:  ingest,
		started: time.Now().UTC(),
	}
}

// HealthCheck reports liveness of every dependency and the indexer lag.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	healthy := true
	components := make(map[string]string, len(h.deps))
	for name, p := range h.deps {
		if err := p.Ping(ctx); err != nil {
			components[name] = err.Error()
			healthy = false
		} else {
			components[name] = "ok"
		}
	}

	body := map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"components":     components,
	}
	if h.ingest != nil {
		body["indexer"] = h.ingest()
	}

	status := http.StatusOK
	if !healthy {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}
