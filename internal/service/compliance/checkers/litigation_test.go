package checkers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
)

type scrubRequest struct {
	Phone string
	Type  string
	State string
}

// litigationServer answers primary scrubs with primary and state scrubs with
// secondary. A response starting with a digit is sent as that status code.
type litigationServer struct {
	mu        sync.Mutex
	requests  []scrubRequest
	primary   string
	secondary string
}

func (s *litigationServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scrub/phone", r.URL.Path)
		assert.NoError(t, r.ParseForm())

		req := scrubRequest{
			Phone: r.PostForm.Get("phone_number"),
			Type:  r.PostForm.Get("type"),
			State: r.PostForm.Get("state"),
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		body := s.primary
		if strings.Contains(req.Type, "dnc_state") {
			body = s.secondary
		}
		if body == "500" {
			writeJSON(w, http.StatusInternalServerError, `{"error":"boom"}`)
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (s *litigationServer) calls() []scrubRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scrubRequest(nil), s.requests...)
}

func newLitigationChecker(t *testing.T, srv *litigationServer) *LitigationChecker {
	ts := newTestServer(t, srv.handler(t))
	return NewLitigationChecker(LitigationConfig{
		HTTP:     HTTPOptions{BaseURL: ts.URL},
		Username: "user",
		Password: "secret",
	}, zaptest.NewLogger(t), nil)
}

const cleanScrub = `{"results":{"clean":1,"is_bad_number":false}}`

func TestLitigationChecker_Primary(t *testing.T) {
	tests := []struct {
		name          string
		primary       string
		wantCompliant bool
		wantReasons   []string
	}{
		{name: "clean", primary: cleanScrub, wantCompliant: true, wantReasons: []string{}},
		{name: "clean as boolean", primary: `{"results":{"clean":true}}`, wantCompliant: true, wantReasons: []string{}},
		{
			name:          "hit with status array",
			primary:       `{"results":{"clean":0,"status_array":["tcpa_litigator","dnc_federal"]}}`,
			wantReasons:   []string{"tcpa_litigator", "dnc_federal"},
			wantCompliant: false,
		},
		{
			name:        "hit with status only",
			primary:     `{"results":{"clean":0,"status":"tcpa_trolls"}}`,
			wantReasons: []string{"tcpa_trolls"},
		},
		{
			name:        "hit without reasons",
			primary:     `{"results":{"clean":"0"}}`,
			wantReasons: []string{"listed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &litigationServer{primary: tt.primary}
			c := newLitigationChecker(t, srv)

			res, err := c.CheckNumber(context.Background(), "+1 (555) 123-4567", nil)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCompliant, res.IsCompliant)
			assert.Equal(t, tt.wantReasons, res.Reasons)
			assert.Equal(t, LitigationSource, res.Source)
			assert.Equal(t, "+15551234567", res.PhoneNumber)
			assert.Equal(t, StateCheckSkipped, res.Details["state_check"])
			assert.NotEmpty(t, res.RawResponse)

			calls := srv.calls()
			require.Len(t, calls, 1)
			assert.Equal(t, scrubRequest{Phone: "5551234567", Type: primaryScrubTypes}, calls[0])
		})
	}
}

func TestLitigationChecker_StateCheck(t *testing.T) {
	tests := []struct {
		name          string
		lead          *compliance.LeadContext
		secondary     string
		wantCalls     int
		wantState     string
		wantCompliant bool
		wantReasons   []string
	}{
		{
			name:          "state without own list",
			lead:          &compliance.LeadContext{State: "CA"},
			wantCalls:     1,
			wantState:     StateCheckNotRequired,
			wantCompliant: true,
			wantReasons:   []string{},
		},
		{
			name:          "state excluded by allowed states",
			lead:          &compliance.LeadContext{State: "FL", AllowedStates: []string{"TX"}},
			wantCalls:     1,
			wantState:     StateCheckNotAllowed,
			wantCompliant: true,
			wantReasons:   []string{},
		},
		{
			name:          "state check passes",
			lead:          &compliance.LeadContext{State: "fl"},
			secondary:     cleanScrub,
			wantCalls:     2,
			wantState:     StateCheckPassed,
			wantCompliant: true,
			wantReasons:   []string{},
		},
		{
			name:          "state check allowed explicitly",
			lead:          &compliance.LeadContext{State: "FL", AllowedStates: []string{"fl", "TX"}},
			secondary:     cleanScrub,
			wantCalls:     2,
			wantState:     StateCheckPassed,
			wantCompliant: true,
			wantReasons:   []string{},
		},
		{
			name:          "state check hit",
			lead:          &compliance.LeadContext{State: "FL"},
			secondary:     `{"results":{"clean":0,"status_array":["dnc_state"]}}`,
			wantCalls:     2,
			wantState:     StateCheckFailed,
			wantCompliant: false,
			wantReasons:   []string{"dnc_state"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &litigationServer{primary: cleanScrub, secondary: tt.secondary}
			c := newLitigationChecker(t, srv)

			res, err := c.CheckNumber(context.Background(), "5551234567", tt.lead)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCompliant, res.IsCompliant)
			assert.Equal(t, tt.wantReasons, res.Reasons)
			assert.Equal(t, tt.wantState, res.Details["state_check"])

			calls := srv.calls()
			require.Len(t, calls, tt.wantCalls)
			if tt.wantCalls == 2 {
				assert.Equal(t, secondaryScrubTypes, calls[1].Type)
				assert.Equal(t, "FL", calls[1].State)
				assert.Equal(t, "5551234567", calls[1].Phone)
			}
		})
	}
}

func TestLitigationChecker_SecondaryFailure(t *testing.T) {
	t.Run("primary hit stands", func(t *testing.T) {
		srv := &litigationServer{
			primary:   `{"results":{"clean":0,"status":"tcpa_litigator"}}`,
			secondary: "500",
		}
		c := newLitigationChecker(t, srv)

		res, err := c.CheckNumber(context.Background(), "5551234567", &compliance.LeadContext{State: "TX"})
		require.NoError(t, err)

		assert.False(t, res.IsCompliant)
		assert.Equal(t, []string{"tcpa_litigator"}, res.Reasons)
		assert.Equal(t, StateCheckError, res.Details["state_check"])
		assert.NotEmpty(t, res.Error)
	})

	t.Run("clean primary reports the error", func(t *testing.T) {
		srv := &litigationServer{primary: cleanScrub, secondary: "500"}
		c := newLitigationChecker(t, srv)

		res, err := c.CheckNumber(context.Background(), "5551234567", &compliance.LeadContext{State: "TX"})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))

		settled := compliance.Settle(c.Name(), c.FailurePolicy(), "+15551234567", res, err)
		assert.True(t, settled.IsCompliant)
		assert.Equal(t, StateCheckError, settled.Details["state_check"])
		assert.NotEmpty(t, settled.Error)
		assert.Equal(t, []string{settled.Error}, settled.Reasons)
	})
}

func TestLitigationChecker_Errors(t *testing.T) {
	tests := []struct {
		name     string
		primary  string
		wantType errors.ErrorType
	}{
		{name: "server error", primary: "500", wantType: errors.ErrorTypeTransport},
		{name: "not json", primary: `not json`, wantType: errors.ErrorTypeSchema},
		{name: "missing results", primary: `{"status":"ok"}`, wantType: errors.ErrorTypeSchema},
		{name: "missing clean", primary: `{"results":{"status":"ok"}}`, wantType: errors.ErrorTypeSchema},
		{name: "clean of unexpected type", primary: `{"results":{"clean":{"x":1}}}`, wantType: errors.ErrorTypeSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newLitigationChecker(t, &litigationServer{primary: tt.primary})

			_, err := c.CheckNumber(context.Background(), "5551234567", nil)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, tt.wantType), "got %v", err)
		})
	}
}

func TestRequiresStateCheck(t *testing.T) {
	for _, s := range []string{"CO", "FL", "IN", "LA", "MA", "MS", "MO", "OK", "PA", "TN", "TX", "WY", "tx"} {
		assert.True(t, RequiresStateCheck(s), s)
	}
	for _, s := range []string{"CA", "NY", "", "XX"} {
		assert.False(t, RequiresStateCheck(s), s)
	}
}
