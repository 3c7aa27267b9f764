package rest

import (
	"time"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// BatchCheckResponse wraps the reports of a batch check in input order.
type BatchCheckResponse struct {
	Reports []*compliance.Report `json:"reports"`
	Total   int                  `json:"total"`
	Blocked int                  `json:"blocked"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Checkers  []string          `json:"checkers"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
