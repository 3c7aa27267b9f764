package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/metrics"
)

const (
	maxBodyBytes     = 1 << 20
	maxBulkBodyBytes = 10 << 20
)

// NewRouter mounts the API on a chi router. gatherer backs /metrics and
// may be nil to leave the endpoint out.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, logger *zap.Logger, m *metrics.Registry) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger, m))
	r.Use(recoveryMiddleware(logger))

	r.Get("/health", h.handleHealth)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limitBody(maxBodyBytes))
			r.Post("/compliance/check", h.handleCheck)
			r.Post("/compliance/batch", h.handleBatchCheck)
			r.Post("/dnc", h.handleAddDNC)
		})
		r.With(limitBody(maxBulkBodyBytes)).Post("/dnc/bulk", h.handleBulkAddDNC)
		r.Get("/dnc/{phone}", h.handleGetDNC)
		r.Delete("/dnc/{phone}", h.handleDeleteDNC)
	})

	return r
}
