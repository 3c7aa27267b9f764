package checkers

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/dnc"
	"github.com/davidleathers/compliance-gateway/internal/domain/values"
)

const InternalDNCSource = "Internal DNC List"

const noReasonProvided = "No reason provided"

// SeedRequest is the permanently blocked test number written by Initialize.
var SeedRequest = dnc.AddRequest{
	PhoneNumber: "9999999999",
	Reason:      "Test number - automatically blocked",
	Source:      "system_seed",
	AddedBy:     "system",
	Status:      dnc.StatusActive,
	Metadata: map[string]any{
		"customData": map[string]any{"isTestNumber": true},
	},
}

// SuppressionStore is the subset of the suppression store the checker needs.
type SuppressionStore interface {
	Check(ctx context.Context, phone string) (bool, *dnc.Entry, error)
	Add(ctx context.Context, req dnc.AddRequest) (*dnc.Entry, error)
	BulkAdd(ctx context.Context, reqs []dnc.AddRequest) dnc.BulkResult
}

// InternalDNCChecker answers from the internal suppression list and exposes
// its administrative write surface.
type InternalDNCChecker struct {
	store  SuppressionStore
	logger *zap.Logger

	mu          sync.Mutex
	initialized bool
	seedPending bool
}

func NewInternalDNCChecker(store SuppressionStore, logger *zap.Logger) *InternalDNCChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InternalDNCChecker{store: store, logger: logger}
}

func (c *InternalDNCChecker) Name() string { return InternalDNCSource }

func (c *InternalDNCChecker) FailurePolicy() compliance.FailurePolicy { return compliance.FailOpen }

// Initialize writes the seed entry once. After a failed attempt the seed is
// retried by the next Initialize, CheckNumber or AddToDNC call; after a
// success further calls do nothing.
func (c *InternalDNCChecker) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if _, err := c.store.Add(ctx, SeedRequest); err != nil {
		c.seedPending = true
		c.logger.Warn("Failed to seed internal DNC list", zap.Error(err))
		return err
	}
	c.initialized = true
	c.seedPending = false
	c.logger.Info("Seeded internal DNC list", zap.String("phone_number", values.NormalizePhone(SeedRequest.PhoneNumber)))
	return nil
}

// retrySeed reattempts a seed that failed earlier. Initialize logs the error.
func (c *InternalDNCChecker) retrySeed(ctx context.Context) {
	c.mu.Lock()
	pending := c.seedPending
	c.mu.Unlock()
	if pending {
		_ = c.Initialize(ctx)
	}
}

func (c *InternalDNCChecker) CheckNumber(ctx context.Context, phone string, _ *compliance.LeadContext) (*compliance.Result, error) {
	c.retrySeed(ctx)
	res := compliance.NewResult(InternalDNCSource, values.NormalizePhone(phone), true)

	found, entry, err := c.store.Check(ctx, phone)
	if err != nil {
		return res, err
	}
	if !found {
		return res, nil
	}

	reason := entry.Reason
	if reason == "" {
		reason = noReasonProvided
	}
	res.Block(reason)
	for k, v := range entry.Metadata {
		res.Details[k] = v
	}
	if raw, err := json.Marshal(entry); err == nil {
		res.RawResponse = raw
	}
	return res, nil
}

// AddToDNC adds or updates one suppression entry.
func (c *InternalDNCChecker) AddToDNC(ctx context.Context, req dnc.AddRequest) (*dnc.Entry, error) {
	c.retrySeed(ctx)
	return c.store.Add(ctx, req)
}

// BulkAddToDNC adds entries sequentially and reports per-row failures.
func (c *InternalDNCChecker) BulkAddToDNC(ctx context.Context, reqs []dnc.AddRequest) dnc.BulkResult {
	return c.store.BulkAdd(ctx, reqs)
}
