package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// response is the JSON body served by the health endpoint.
type response struct {
	OverallStatus Status    `json:"overall_status"`
	Timestamp     string    `json:"timestamp"`
	Components    []payload `json:"components"`
}

type payload struct {
	Component  string  `json:"component"`
	Status     Status  `json:"status"`
	Message    string  `json:"message,omitempty"`
	CheckedAt  string  `json:"checked_at"`
	DurationMS float64 `json:"duration_ms"`
	Critical   bool    `json:"critical"`
}

// Handler serves the aggregate health snapshot as JSON. It runs the full
// probe batch per request under a request-scoped timeout and returns 200
// for healthy or degraded, 503 for unhealthy.
type Handler struct {
	Registry *Registry
	Logger   *slog.Logger

	// Timeout bounds the whole batch for one request. Zero means 10s.
	Timeout time.Duration
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	results, err := h.Registry.CheckAll(ctx)
	if err != nil {
		http.Error(w, "health check failed", http.StatusInternalServerError)
		return
	}

	overall := Overall(results)
	body := response{
		OverallStatus: overall,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Components:    make([]payload, len(results)),
	}
	for i, res := range results {
		body.Components[i] = payload{
			Component:  res.Component,
			Status:     res.Status,
			Message:    res.Message,
			CheckedAt:  res.CheckedAt.Format(time.RFC3339),
			DurationMS: res.DurationMS(),
			Critical:   res.Critical,
		}
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil && h.Logger != nil {
		h.Logger.Error("failed to encode health response", slog.Any("error", err))
	}
}

// LiveHandler answers liveness probes. It always returns 200 when the
// process can still serve requests at all.
type LiveHandler struct{}

// ServeHTTP implements http.Handler.
func (LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
