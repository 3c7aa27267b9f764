package rest

import (
	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/dnc"
)

// CheckRequest is the body of POST /v1/compliance/check.
type CheckRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
	State       string `json:"state,omitempty" validate:"omitempty,len=2,alpha"`
	// AllowedStates distinguishes absent (no filter) from an empty list (nothing allowed).
	AllowedStates []string `json:"allowed_states,omitempty" validate:"omitempty,dive,len=2,alpha"`
}

// Lead returns the lead context for the request, or nil when none was sent.
func (r CheckRequest) Lead() *compliance.LeadContext {
	if r.State == "" && r.AllowedStates == nil {
		return nil
	}
	return &compliance.LeadContext{State: r.State, AllowedStates: r.AllowedStates}
}

// BatchCheckRequest is the body of POST /v1/compliance/batch.
type BatchCheckRequest struct {
	PhoneNumbers []string `json:"phone_numbers" validate:"required,min=1,max=500,dive,required"`
}

// BulkAddRequest is the body of POST /v1/dnc/bulk. Rows are validated one
// by one by the store so that a malformed row fails alone.
type BulkAddRequest struct {
	Entries []dnc.AddRequest `json:"entries" validate:"required,min=1,max=10000"`
}
