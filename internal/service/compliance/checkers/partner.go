package checkers

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
	"github.com/davidleathers/compliance-gateway/internal/domain/values"
	"github.com/davidleathers/compliance-gateway/internal/metrics"
)

const PartnerSource = "Synergy DNC"

// ErrRetriesExhausted is matched by errors.Is on a RetriesExhaustedError.
var ErrRetriesExhausted = stderrors.New("retries exhausted")

// RetriesExhaustedError reports that every attempt failed with a transport error.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("partner DNC check failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Last}
}

type partnerReason struct {
	block   bool
	message string
}

// partnerReasonCodes maps rejection_reason values to a verdict. Codes outside
// the table block.
var partnerReasonCodes = map[string]partnerReason{
	"internal_dnc":   {true, "Number found on Synergy DNC list (rejection_reason: internal_dnc)"},
	"federal_dnc":    {true, "Number is on the federal do-not-call registry"},
	"state_dnc":      {true, "Number is on a state do-not-call list"},
	"litigator":      {true, "Number belongs to a known litigator"},
	"disconnected":   {true, "Number is disconnected"},
	"robocall":       {true, "Number is flagged for robocalls"},
	"invalid_number": {true, "Number is invalid"},
	"duplicate":      {false, ""},
	"capacity":       {false, ""},
	"outside_hours":  {false, ""},
}

type PartnerConfig struct {
	HTTP           HTTPOptions
	MaxAttempts    int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
}

// PartnerChecker queries the partner DNC list. It retries transport failures
// with a fixed delay and is the only checker that fails closed.
type PartnerChecker struct {
	cfg    PartnerConfig
	client *providerClient
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewPartnerChecker(cfg PartnerConfig, logger *zap.Logger, m *metrics.Registry) *PartnerChecker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	httpOpts := cfg.HTTP
	httpOpts.Timeout = cfg.AttemptTimeout

	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartnerChecker{
		cfg:    cfg,
		client: newProviderClient(PartnerSource, httpOpts, logger, m),
		logger: logger.With(zap.String("checker", PartnerSource)),
		sleep:  sleepContext,
	}
}

func (c *PartnerChecker) Name() string { return PartnerSource }

func (c *PartnerChecker) FailurePolicy() compliance.FailurePolicy { return compliance.FailClosed }

func (c *PartnerChecker) CheckNumber(ctx context.Context, phone string, _ *compliance.LeadContext) (*compliance.Result, error) {
	res := compliance.NewResult(PartnerSource, values.NormalizePhone(phone), true)

	q := url.Values{}
	q.Set("phone_number", values.PhoneDigits(phone))
	endpoint := c.cfg.HTTP.BaseURL + "/blacklist/check?" + q.Encode()
	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	var lastErr error
	attempts := 0
	for attempts < c.cfg.MaxAttempts {
		attempts++
		res.Details["attempts"] = attempts

		body, err := c.client.do(ctx, build)
		if err == nil {
			return c.evaluate(res, body)
		}
		if !errors.IsType(err, errors.ErrorTypeTransport) {
			return res, err
		}

		lastErr = err
		c.logger.Warn("Partner DNC attempt failed",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.cfg.MaxAttempts),
			zap.Error(err),
		)

		if attempts < c.cfg.MaxAttempts {
			if err := c.sleep(ctx, c.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	return res, &RetriesExhaustedError{Attempts: attempts, Last: lastErr}
}

func (c *PartnerChecker) evaluate(res *compliance.Result, body []byte) (*compliance.Result, error) {
	var resp struct {
		RejectionReason *string `json:"rejection_reason"`
	}
	if err := c.client.decode(body, &resp); err != nil {
		return res, err
	}
	res.RawResponse = rawJSON(body)

	if resp.RejectionReason == nil || *resp.RejectionReason == "" {
		res.Details["rejection_reason"] = nil
		return res, nil
	}

	code := *resp.RejectionReason
	res.Details["rejection_reason"] = code

	reason, known := partnerReasonCodes[code]
	if !known {
		res.Details["unknown_code"] = true
		return res.Block(fmt.Sprintf("Partner rejected number (rejection_reason: %s)", code)), nil
	}
	if reason.block {
		res.Block(reason.message)
	}
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
