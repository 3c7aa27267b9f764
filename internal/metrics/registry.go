package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "compliance"

// Registry holds the gateway's prometheus collectors. All methods are safe
// on a nil receiver so components can run without metrics.
type Registry struct {
	CheckDuration  *prometheus.HistogramVec
	CheckVerdicts  *prometheus.CounterVec
	CheckErrors    *prometheus.CounterVec
	CheckPanics    *prometheus.CounterVec
	ReportVerdicts *prometheus.CounterVec
	DegradedReport prometheus.Counter

	ProviderAttempts *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec

	StoreWrites *prometheus.CounterVec
	Webhooks    *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewRegistry registers every collector on reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	return &Registry{
		CheckDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "duration_seconds",
			Help:      "Duration of a single checker call",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"source"}),

		CheckVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "verdicts_total",
			Help:      "Checker verdicts by source and outcome",
		}, []string{"source", "verdict"}),

		CheckErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "errors_total",
			Help:      "Checker calls that failed and were settled by failure policy",
		}, []string{"source", "policy"}),

		CheckPanics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "panics_total",
			Help:      "Checker calls that panicked",
		}, []string{"source"}),

		ReportVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reports_total",
			Help:      "Aggregated compliance reports by verdict",
		}, []string{"verdict"}),

		DegradedReport: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "degraded_reports_total",
			Help:      "Reports in which two or more checkers failed",
		}),

		ProviderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "attempts_total",
			Help:      "Outbound provider HTTP attempts by outcome",
		}, []string{"provider", "outcome"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by outcome",
		}, []string{"source", "outcome"}),

		StoreWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suppression",
			Name:      "writes_total",
			Help:      "Suppression list writes by outcome",
		}, []string{"outcome"}),

		Webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Webhook deliveries by outcome",
		}, []string{"event", "outcome"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		}, []string{"method", "route"}),
	}
}

func verdict(compliant bool) string {
	if compliant {
		return "compliant"
	}
	return "non_compliant"
}

// ObserveCheck records one settled checker call.
func (r *Registry) ObserveCheck(source string, d time.Duration, compliant bool) {
	if r == nil {
		return
	}
	r.CheckDuration.WithLabelValues(source).Observe(d.Seconds())
	r.CheckVerdicts.WithLabelValues(source, verdict(compliant)).Inc()
}

func (r *Registry) IncCheckError(source, policy string) {
	if r != nil {
		r.CheckErrors.WithLabelValues(source, policy).Inc()
	}
}

func (r *Registry) IncCheckPanic(source string) {
	if r != nil {
		r.CheckPanics.WithLabelValues(source).Inc()
	}
}

// ObserveReport records an aggregated report and whether it was degraded.
func (r *Registry) ObserveReport(compliant, degraded bool) {
	if r == nil {
		return
	}
	r.ReportVerdicts.WithLabelValues(verdict(compliant)).Inc()
	if degraded {
		r.DegradedReport.Inc()
	}
}

func (r *Registry) IncProviderAttempt(provider, outcome string) {
	if r != nil {
		r.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
	}
}

func (r *Registry) IncCacheLookup(source string, hit bool) {
	if r == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.CacheLookups.WithLabelValues(source, outcome).Inc()
}

func (r *Registry) IncStoreWrite(outcome string) {
	if r != nil {
		r.StoreWrites.WithLabelValues(outcome).Inc()
	}
}

func (r *Registry) IncWebhook(event, outcome string) {
	if r != nil {
		r.Webhooks.WithLabelValues(event, outcome).Inc()
	}
}

// ObserveHTTP records a served API request.
func (r *Registry) ObserveHTTP(method, route, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
