package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common"
	"github.com/LexiconIndonesia/tesauro-crawler/common/utils"
	"github.com/go-chi/chi/v5"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	deps   map[string]Pinger
	router *chi.Mux
}

// NewHealthHandler serves liveness on / and dependency checks on /ready.
// Only configured dependencies should be passed in deps.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	h := &HealthHandler{deps: deps}

	r := chi.NewRouter()
	r.Get("/", h.handleHealthCheck)
	r.Get("/ready", h.handleReadiness)

	h.router = r
	return h
}

func (h *HealthHandler) Router() *chi.Mux {
	return h.router
}

func (h *HealthHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   common.AppName,
	}

	utils.WriteJSON(w, http.StatusOK, response)
}

func (h *HealthHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	}
	if status != http.StatusOK {
		response["status"] = "unhealthy"
	}

	utils.WriteJSON(w, status, response)
}
