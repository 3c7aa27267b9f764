package compliance

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Result is one source's verdict on one phone number. IsCompliant is always
// decided, including when Error is set.
type Result struct {
	IsCompliant bool            `json:"isCompliant"`
	Reasons     []string        `json:"reasons"`
	Source      string          `json:"source"`
	Details     map[string]any  `json:"details"`
	PhoneNumber string          `json:"phoneNumber"`
	RawResponse json.RawMessage `json:"rawResponse,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// NewResult returns a result with empty, non-nil reasons and details.
func NewResult(source, phone string, compliant bool) *Result {
	return &Result{
		IsCompliant: compliant,
		Reasons:     []string{},
		Source:      source,
		Details:     map[string]any{},
		PhoneNumber: phone,
	}
}

// Block marks the result non-compliant and appends reasons.
func (r *Result) Block(reasons ...string) *Result {
	r.IsCompliant = false
	r.Reasons = append(r.Reasons, reasons...)
	return r
}

// Report aggregates the results of every registered checker for one number.
type Report struct {
	PhoneNumber string    `json:"phoneNumber"`
	IsCompliant bool      `json:"isCompliant"`
	Results     []Result  `json:"results"`
	Timestamp   time.Time `json:"timestamp"`
}

// Aggregate is the logical AND of the results' verdicts. An empty slice is compliant.
func Aggregate(results []Result) bool {
	for _, r := range results {
		if !r.IsCompliant {
			return false
		}
	}
	return true
}

// Errored counts results that carry an error.
func (r *Report) Errored() int {
	n := 0
	for _, res := range r.Results {
		if res.Error != "" {
			n++
		}
	}
	return n
}

// LeadContext carries optional lead attributes used by state-aware checkers.
// A nil AllowedStates means the list was not provided; a non-nil empty slice
// means no state is allowed.
type LeadContext struct {
	State         string   `json:"state,omitempty"`
	AllowedStates []string `json:"allowed_states,omitempty"`
}

// StateAllowed reports whether state passes the lead's allowed-states filter.
func (l *LeadContext) StateAllowed(state string) bool {
	if l == nil || l.AllowedStates == nil {
		return true
	}
	return slices.ContainsFunc(l.AllowedStates, func(s string) bool {
		return strings.EqualFold(s, state)
	})
}

// LeadState returns the normalized two-letter state, or "" when absent.
func (l *LeadContext) LeadState() string {
	if l == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(l.State))
}
