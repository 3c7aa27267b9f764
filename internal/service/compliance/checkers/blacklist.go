package checkers

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/values"
	"github.com/davidleathers/compliance-gateway/internal/metrics"
)

const BlacklistSource = "Blacklist Alliance"

type BlacklistConfig struct {
	HTTP   HTTPOptions
	APIKey string
}

// BlacklistChecker looks numbers up in the Blacklist Alliance database.
type BlacklistChecker struct {
	cfg    BlacklistConfig
	client *providerClient
}

func NewBlacklistChecker(cfg BlacklistConfig, logger *zap.Logger, m *metrics.Registry) *BlacklistChecker {
	return &BlacklistChecker{
		cfg:    cfg,
		client: newProviderClient(BlacklistSource, cfg.HTTP, logger, m),
	}
}

func (c *BlacklistChecker) Name() string { return BlacklistSource }

func (c *BlacklistChecker) FailurePolicy() compliance.FailurePolicy { return compliance.FailOpen }

type blacklistResponse struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Scrubs  bool           `json:"scrubs"`
	Carrier map[string]any `json:"carrier"`
}

func (c *BlacklistChecker) CheckNumber(ctx context.Context, phone string, _ *compliance.LeadContext) (*compliance.Result, error) {
	res := compliance.NewResult(BlacklistSource, values.NormalizePhone(phone), true)

	q := url.Values{}
	q.Set("phone", values.PhoneDigits(phone))
	q.Set("key", c.cfg.APIKey)

	body, err := c.client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.HTTP.BaseURL+"/lookup?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return res, err
	}

	var resp blacklistResponse
	if err := c.client.decode(body, &resp); err != nil {
		return res, err
	}

	res.RawResponse = rawJSON(body)
	res.Details["carrier"] = resp.Carrier
	res.Details["code"] = resp.Code
	res.Details["message"] = resp.Message

	if resp.Scrubs || resp.Message == "Blacklisted" {
		reason := resp.Message
		if resp.Code != "" {
			reason = resp.Message + " (" + resp.Code + ")"
		}
		if reason == "" {
			reason = "Blacklisted"
		}
		res.Block(reason)
	}
	return res, nil
}
