package checkers

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
)

// newPartnerChecker wires a checker to a test server and records the delays
// it would have slept.
func newPartnerChecker(t *testing.T, h http.HandlerFunc) (*PartnerChecker, *[]time.Duration) {
	t.Helper()
	srv := newTestServer(t, h)
	c := NewPartnerChecker(PartnerConfig{HTTP: HTTPOptions{BaseURL: srv.URL}}, zaptest.NewLogger(t), nil)

	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return c, &sleeps
}

func TestPartnerChecker_Defaults(t *testing.T) {
	c := NewPartnerChecker(PartnerConfig{}, nil, nil)

	assert.Equal(t, PartnerSource, c.Name())
	assert.Equal(t, compliance.FailClosed, c.FailurePolicy())
	assert.Equal(t, 3, c.cfg.MaxAttempts)
	assert.Equal(t, time.Second, c.cfg.RetryDelay)
	assert.Equal(t, 10*time.Second, c.cfg.AttemptTimeout)
	assert.Equal(t, 10*time.Second, c.client.timeout)
}

func TestPartnerChecker_ReasonCodes(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantCompliant bool
		wantReasons   []string
		wantUnknown   bool
	}{
		{name: "no rejection", body: `{}`, wantCompliant: true, wantReasons: []string{}},
		{name: "null rejection", body: `{"rejection_reason":null}`, wantCompliant: true, wantReasons: []string{}},
		{name: "empty rejection", body: `{"rejection_reason":""}`, wantCompliant: true, wantReasons: []string{}},
		{
			name:        "internal dnc",
			body:        `{"rejection_reason":"internal_dnc"}`,
			wantReasons: []string{"Number found on Synergy DNC list (rejection_reason: internal_dnc)"},
		},
		{
			name:        "federal dnc",
			body:        `{"rejection_reason":"federal_dnc"}`,
			wantReasons: []string{"Number is on the federal do-not-call registry"},
		},
		{
			name:        "litigator",
			body:        `{"rejection_reason":"litigator"}`,
			wantReasons: []string{"Number belongs to a known litigator"},
		},
		{name: "duplicate", body: `{"rejection_reason":"duplicate"}`, wantCompliant: true, wantReasons: []string{}},
		{name: "capacity", body: `{"rejection_reason":"capacity"}`, wantCompliant: true, wantReasons: []string{}},
		{name: "outside hours", body: `{"rejection_reason":"outside_hours"}`, wantCompliant: true, wantReasons: []string{}},
		{
			name:        "unknown code",
			body:        `{"rejection_reason":"mystery"}`,
			wantReasons: []string{"Partner rejected number (rejection_reason: mystery)"},
			wantUnknown: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sleeps := newPartnerChecker(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/blacklist/check", r.URL.Path)
				assert.Equal(t, "5551234567", r.URL.Query().Get("phone_number"))
				writeJSON(w, http.StatusOK, tt.body)
			})

			res, err := c.CheckNumber(context.Background(), "5551234567", nil)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCompliant, res.IsCompliant)
			assert.Equal(t, tt.wantReasons, res.Reasons)
			assert.Equal(t, 1, res.Details["attempts"])
			if tt.wantUnknown {
				assert.Equal(t, true, res.Details["unknown_code"])
			} else {
				assert.NotContains(t, res.Details, "unknown_code")
			}
			assert.Empty(t, *sleeps)
		})
	}
}

func TestPartnerChecker_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newPartnerChecker(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	})

	res, err := c.CheckNumber(context.Background(), "5551234567", nil)
	require.Error(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *sleeps)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	settled := compliance.Settle(c.Name(), c.FailurePolicy(), "+15551234567", res, err)
	assert.False(t, settled.IsCompliant)
	require.Len(t, settled.Reasons, 1)
	assert.Contains(t, settled.Reasons[0], "partner DNC check failed after 3 attempts: ")
	assert.Contains(t, settled.Reasons[0], "HTTP 503")
	assert.Equal(t, settled.Reasons[0], settled.Error)
	assert.Equal(t, 3, settled.Details["attempts"])
}

func TestPartnerChecker_RecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newPartnerChecker(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusInternalServerError, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"rejection_reason":null}`)
	})

	res, err := c.CheckNumber(context.Background(), "5551234567", nil)
	require.NoError(t, err)

	assert.True(t, res.IsCompliant)
	assert.Equal(t, 3, res.Details["attempts"])
	assert.Len(t, *sleeps, 2)
}

func TestPartnerChecker_SchemaErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newPartnerChecker(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `not json`)
	})

	res, err := c.CheckNumber(context.Background(), "5551234567", nil)
	require.Error(t, err)

	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))
	assert.False(t, stderrors.Is(err, ErrRetriesExhausted))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *sleeps)

	settled := compliance.Settle(c.Name(), c.FailurePolicy(), "+15551234567", res, err)
	assert.False(t, settled.IsCompliant)
}

func TestPartnerChecker_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	c, _ := newPartnerChecker(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		writeJSON(w, http.StatusServiceUnavailable, `{}`)
	})

	_, err := c.CheckNumber(ctx, "5551234567", nil)
	require.Error(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPartnerChecker_RetryDelayIsReal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}

	var (
		mu     sync.Mutex
		stamps []time.Time
	)
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		writeJSON(w, http.StatusBadGateway, `{}`)
	})
	c := NewPartnerChecker(PartnerConfig{
		HTTP:       HTTPOptions{BaseURL: srv.URL},
		RetryDelay: 200 * time.Millisecond,
	}, zaptest.NewLogger(t), nil)

	_, err := c.CheckNumber(context.Background(), "5551234567", nil)
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 200*time.Millisecond)
	}
}
