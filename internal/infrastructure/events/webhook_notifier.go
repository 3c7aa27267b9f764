package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/domain/dnc"
	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
	"github.com/davidleathers/compliance-gateway/internal/metrics"
)

// EventDNCAdded is sent for every committed suppression list write.
const EventDNCAdded = "dnc_added"

const userAgent = "Compliance-Gateway-Webhook/1.0"

// WebhookPayload is the JSON body posted to the configured endpoint.
type WebhookPayload struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookConfig configures the outbound endpoint. An empty URL disables delivery.
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// WebhookNotifier posts suppression list writes to a single endpoint. Delivery
// is best effort: failures are logged and counted, never returned to the writer.
type WebhookNotifier struct {
	cfg     WebhookConfig
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Registry
	wg      sync.WaitGroup
}

// NewWebhookNotifier creates a notifier. A zero timeout defaults to 5s.
func NewWebhookNotifier(cfg WebhookConfig, logger *zap.Logger, m *metrics.Registry) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		metrics: m,
	}
}

// Enabled reports whether an endpoint is configured.
func (n *WebhookNotifier) Enabled() bool {
	return n != nil && n.cfg.URL != ""
}

// Notify delivers a dnc_added event in the background and returns immediately.
func (n *WebhookNotifier) Notify(entry *dnc.Entry) {
	if !n.Enabled() || entry == nil {
		return
	}

	body, err := json.Marshal(WebhookPayload{
		Event:     EventDNCAdded,
		Data:      entry,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		n.logger.Error("Failed to marshal webhook payload",
			zap.String("phone_number", entry.PhoneNumber),
			zap.Error(err),
		)
		n.metrics.IncWebhook(EventDNCAdded, "failed")
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
		defer cancel()

		if err := n.send(ctx, EventDNCAdded, body); err != nil {
			n.logger.Warn("Webhook delivery failed",
				zap.String("url", n.cfg.URL),
				zap.String("phone_number", entry.PhoneNumber),
				zap.Error(err),
			)
			n.metrics.IncWebhook(EventDNCAdded, "failed")
			return
		}

		n.logger.Debug("Webhook delivered", zap.String("phone_number", entry.PhoneNumber))
		n.metrics.IncWebhook(EventDNCAdded, "delivered")
	}()
}

// Wait blocks until every in-flight delivery has finished.
func (n *WebhookNotifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

func (n *WebhookNotifier) send(ctx context.Context, event string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.NewInternalError("failed to create webhook request").WithCause(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Event-Type", event)
	req.Header.Set("X-Event-ID", uuid.NewString())
	if n.cfg.Secret != "" {
		req.Header.Set("X-Signature-SHA256", Sign(body, n.cfg.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.NewTransportError("webhook", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewTransportError("webhook", fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	return nil
}

// Sign returns the X-Signature-SHA256 header value for body.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
