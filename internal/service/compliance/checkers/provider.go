// Package checkers contains the compliance sources queried by the engine.
package checkers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
	"github.com/davidleathers/compliance-gateway/internal/metrics"
)

const maxResponseBytes = 1 << 20

// HTTPOptions configures the transport used to reach one provider.
type HTTPOptions struct {
	BaseURL string
	// Timeout bounds one request. Zero leaves it bounded only by ctx.
	Timeout time.Duration
	// RateLimit is requests per second. Zero disables throttling.
	RateLimit float64
	Burst     int
	// Client overrides the default http.Client, mainly for tests.
	Client *http.Client
}

// providerClient is the HTTP plumbing shared by the external checkers.
type providerClient struct {
	name    string
	baseURL string
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Registry
}

func newProviderClient(name string, opts HTTPOptions, logger *zap.Logger, m *metrics.Registry) *providerClient {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RateLimit * 2)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &providerClient{
		name:    name,
		baseURL: opts.BaseURL,
		client:  client,
		timeout: opts.Timeout,
		limiter: limiter,
		logger:  logger.With(zap.String("provider", name)),
		metrics: m,
	}
}

// do executes req and returns the body of a 2xx response. Every other outcome
// is a transport error.
func (p *providerClient) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			p.metrics.IncProviderAttempt(p.name, "rate_limited")
			return nil, errors.NewTransportError(p.name, "rate limit wait aborted").WithCause(err)
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := build(ctx)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("failed to create %s request", p.name)).WithCause(err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.metrics.IncProviderAttempt(p.name, "transport_error")
		p.logger.Debug("Provider request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, errors.NewTransportError(p.name, "network error").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		p.metrics.IncProviderAttempt(p.name, "transport_error")
		return nil, errors.NewTransportError(p.name, "failed to read response body").WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.metrics.IncProviderAttempt(p.name, "http_error")
		return nil, p.handleHTTPError(resp.StatusCode)
	}

	p.metrics.IncProviderAttempt(p.name, "ok")
	p.logger.Debug("Provider request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return body, nil
}

// handleHTTPError converts a non-2xx status into a transport error
func (p *providerClient) handleHTTPError(status int) error {
	msg := fmt.Sprintf("HTTP %d", status)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		msg = fmt.Sprintf("HTTP %d: authentication failed", status)
	case http.StatusTooManyRequests:
		msg = fmt.Sprintf("HTTP %d: rate limit exceeded", status)
	case http.StatusServiceUnavailable:
		msg = fmt.Sprintf("HTTP %d: service unavailable", status)
	}

	appErr := errors.NewTransportError(p.name, msg)
	appErr.Details["status_code"] = status
	appErr.Retryable = status == http.StatusTooManyRequests || status >= 500
	return appErr
}

// decode unmarshals body into v, reporting failures as schema errors.
func (p *providerClient) decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return errors.NewSchemaError(p.name, "invalid JSON").WithCause(err)
	}
	return nil
}

// rawJSON returns body as a raw message when it is valid JSON.
func rawJSON(body []byte) json.RawMessage {
	if !json.Valid(body) {
		return nil
	}
	return json.RawMessage(body)
}
