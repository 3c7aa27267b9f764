package rest

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// handleHealth reports the registered checkers and probes every dependency.
// Any failed probe turns the response into a 503.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "pass",
		Version:   h.version,
		Checkers:  h.engine.Checkers(),
		Timestamp: time.Now().UTC(),
	}

	names := make([]string, 0, len(h.health))
	for name := range h.health {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.health[name](ctx); err != nil {
			resp.Status = "fail"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "pass"
	}

	status := http.StatusOK
	if resp.Status != "pass" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/health+json")
	writeJSON(w, status, resp)
}
