package checkers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
	"github.com/davidleathers/compliance-gateway/internal/domain/values"
	"github.com/davidleathers/compliance-gateway/internal/metrics"
)

const WebReputationSource = "Webrecon"

const webReputationHitReason = "Phone number found in Webrecon database"

type WebReputationConfig struct {
	HTTP   HTTPOptions
	APIKey string
}

// WebReputationChecker scrubs numbers against the Webrecon litigant database.
type WebReputationChecker struct {
	cfg    WebReputationConfig
	client *providerClient
}

func NewWebReputationChecker(cfg WebReputationConfig, logger *zap.Logger, m *metrics.Registry) *WebReputationChecker {
	return &WebReputationChecker{
		cfg:    cfg,
		client: newProviderClient(WebReputationSource, cfg.HTTP, logger, m),
	}
}

func (c *WebReputationChecker) Name() string { return WebReputationSource }

func (c *WebReputationChecker) FailurePolicy() compliance.FailurePolicy { return compliance.FailOpen }

type webReputationResponse struct {
	Rows []struct {
		Phones string `json:"Phones"`
		Scores string `json:"Scores"`
	} `json:"Rows"`
	TotalHits *int `json:"TotalHits"`
}

func (c *WebReputationChecker) CheckNumber(ctx context.Context, phone string, _ *compliance.LeadContext) (*compliance.Result, error) {
	res := compliance.NewResult(WebReputationSource, values.NormalizePhone(phone), true)

	payload, err := json.Marshal([]map[string]string{{"Phones": values.PhoneDigits(phone)}})
	if err != nil {
		return res, errors.NewInternalError("failed to marshal Webrecon request").WithCause(err)
	}

	endpoint := c.cfg.HTTP.BaseURL + "/phone_scrub/" + url.PathEscape(c.cfg.APIKey)
	body, err := c.client.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return res, err
	}

	var resp webReputationResponse
	if err := c.client.decode(body, &resp); err != nil {
		return res, err
	}
	res.RawResponse = rawJSON(body)

	if len(resp.Rows) > 0 {
		score := resp.Rows[0].Scores
		res.Details["score"] = score
		switch score {
		case "0":
			return res, nil
		case "1":
			return res.Block(webReputationHitReason), nil
		case "E":
			return res, errors.NewSchemaError(WebReputationSource, "provider reported an error score")
		default:
			return res, errors.NewSchemaError(WebReputationSource, fmt.Sprintf("unknown score %q", score))
		}
	}

	if resp.TotalHits != nil {
		res.Details["total_hits"] = *resp.TotalHits
		if *resp.TotalHits > 0 {
			res.Block(webReputationHitReason)
		}
		return res, nil
	}

	return res, errors.NewSchemaError(WebReputationSource, "response has neither Rows nor TotalHits")
}
