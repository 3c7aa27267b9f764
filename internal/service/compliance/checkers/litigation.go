package checkers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
	"github.com/davidleathers/compliance-gateway/internal/domain/values"
	"github.com/davidleathers/compliance-gateway/internal/metrics"
)

const LitigationSource = "TCPA Litigator List"

// Outcomes of the secondary state-level scrub, recorded in details["state_check"].
const (
	StateCheckSkipped     = "skipped"
	StateCheckNotRequired = "not_required"
	StateCheckNotAllowed  = "not_allowed"
	StateCheckPassed      = "passed"
	StateCheckFailed      = "failed"
	StateCheckError       = "error"
)

var (
	primaryScrubTypes   = `["tcpa","dnc"]`
	secondaryScrubTypes = `["tcpa","dnc_state","dnc_complainers"]`

	// States whose own do-not-call and complainer lists require a second scrub.
	stateCheckStates = map[string]struct{}{
		"CO": {}, "FL": {}, "IN": {}, "LA": {}, "MA": {}, "MS": {},
		"MO": {}, "OK": {}, "PA": {}, "TN": {}, "TX": {}, "WY": {},
	}
)

// RequiresStateCheck reports whether state triggers the secondary scrub.
func RequiresStateCheck(state string) bool {
	_, ok := stateCheckStates[strings.ToUpper(state)]
	return ok
}

type LitigationConfig struct {
	HTTP     HTTPOptions
	Username string
	Password string
}

// LitigationChecker scrubs numbers against the TCPA litigator list, with a
// second state-level scrub for leads in states that keep their own lists.
type LitigationChecker struct {
	cfg    LitigationConfig
	client *providerClient
}

func NewLitigationChecker(cfg LitigationConfig, logger *zap.Logger, m *metrics.Registry) *LitigationChecker {
	return &LitigationChecker{
		cfg:    cfg,
		client: newProviderClient(LitigationSource, cfg.HTTP, logger, m),
	}
}

func (c *LitigationChecker) Name() string { return LitigationSource }

func (c *LitigationChecker) FailurePolicy() compliance.FailurePolicy { return compliance.FailOpen }

func (c *LitigationChecker) CheckNumber(ctx context.Context, phone string, lead *compliance.LeadContext) (*compliance.Result, error) {
	res := compliance.NewResult(LitigationSource, values.NormalizePhone(phone), true)
	national := values.NationalNumber(phone)

	primary, err := c.scrub(ctx, national, primaryScrubTypes, "")
	if err != nil {
		return res, err
	}
	res.RawResponse = primary.raw
	for k, v := range primary.details {
		res.Details[k] = v
	}
	if !primary.clean {
		res.Block(primary.reasons...)
	}

	state := lead.LeadState()
	switch {
	case state == "":
		res.Details["state_check"] = StateCheckSkipped
		return res, nil
	case !RequiresStateCheck(state):
		res.Details["state_check"] = StateCheckNotRequired
		return res, nil
	case !lead.StateAllowed(state):
		res.Details["state_check"] = StateCheckNotAllowed
		return res, nil
	}

	res.Details["state"] = state
	secondary, err := c.scrub(ctx, national, secondaryScrubTypes, state)
	if err != nil {
		res.Details["state_check"] = StateCheckError
		if !res.IsCompliant {
			// The primary hit stands on its own.
			res.Error = err.Error()
			return res, nil
		}
		return res, err
	}

	res.Details["state_result"] = secondary.details
	if secondary.clean {
		res.Details["state_check"] = StateCheckPassed
	} else {
		res.Details["state_check"] = StateCheckFailed
		res.Block(secondary.reasons...)
	}
	return res, nil
}

type scrubOutcome struct {
	clean   bool
	reasons []string
	details map[string]any
	raw     []byte
}

func (c *LitigationChecker) scrub(ctx context.Context, phone, types, state string) (*scrubOutcome, error) {
	form := url.Values{}
	form.Set("phone_number", phone)
	form.Set("type", types)
	if state != "" {
		form.Set("state", state)
	}

	body, err := c.client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.HTTP.BaseURL+"/scrub/phone", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results map[string]any `json:"results"`
	}
	if err := c.client.decode(body, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return nil, errors.NewSchemaError(LitigationSource, "response has no results object")
	}

	cleanVal, ok := resp.Results["clean"]
	if !ok {
		return nil, errors.NewSchemaError(LitigationSource, "results.clean is missing")
	}
	clean, err := parseClean(cleanVal)
	if err != nil {
		return nil, err
	}

	out := &scrubOutcome{clean: clean, details: resp.Results, raw: rawJSON(body)}
	if !clean {
		out.reasons = litigationReasons(resp.Results)
	}
	return out, nil
}

// parseClean accepts the numeric flag the API documents plus the boolean and
// string forms seen in practice.
func parseClean(v any) (bool, error) {
	switch t := v.(type) {
	case float64:
		return t == 1, nil
	case bool:
		return t, nil
	case string:
		return t == "1" || strings.EqualFold(t, "true"), nil
	default:
		return false, errors.NewSchemaError(LitigationSource, fmt.Sprintf("results.clean has unexpected type %T", v))
	}
}

func litigationReasons(results map[string]any) []string {
	if arr, ok := results["status_array"].([]any); ok {
		reasons := make([]string, 0, len(arr))
		for _, s := range arr {
			if str, ok := s.(string); ok && str != "" {
				reasons = append(reasons, str)
			}
		}
		if len(reasons) > 0 {
			return reasons
		}
	}
	if status, ok := results["status"].(string); ok && status != "" {
		return []string{status}
	}
	return []string{"listed"}
}
