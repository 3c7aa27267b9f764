package suppression

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/domain/dnc"
	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
	"github.com/davidleathers/compliance-gateway/internal/domain/values"
	"github.com/davidleathers/compliance-gateway/internal/metrics"
)

// Store is the internal suppression list. Writes are upserts keyed by the
// normalized phone number; concurrent writers are serialized by the repository.
type Store struct {
	repo     dnc.EntryRepository
	notifier dnc.Notifier
	logger   *zap.Logger
	metrics  *metrics.Registry
	now      func() time.Time
}

// NewStore creates a store. notifier and m may be nil.
func NewStore(repo dnc.EntryRepository, notifier dnc.Notifier, logger *zap.Logger, m *metrics.Registry) (*Store, error) {
	if repo == nil {
		return nil, errors.NewValidationError("MISSING_DEPENDENCY", "entry repository cannot be nil")
	}
	if logger == nil {
		return nil, errors.NewValidationError("MISSING_DEPENDENCY", "logger cannot be nil")
	}
	return &Store{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}, nil
}

// Check reports whether phone is currently suppressed. Inactive and expired
// entries are never returned.
func (s *Store) Check(ctx context.Context, phone string) (bool, *dnc.Entry, error) {
	normalized := values.NormalizePhone(phone)
	now := s.now()

	entry, err := s.repo.FindActive(ctx, normalized, now)
	if err != nil {
		return false, nil, errors.Wrap(err, "suppression lookup failed")
	}
	if entry == nil || !entry.IsBlocking(now) {
		return false, nil, nil
	}
	return true, entry, nil
}

// Add validates and upserts one entry, then notifies in the background.
func (s *Store) Add(ctx context.Context, req dnc.AddRequest) (*dnc.Entry, error) {
	entry, err := dnc.NewEntry(req, s.now())
	if err != nil {
		s.metrics.IncStoreWrite("rejected")
		return nil, err
	}

	stored, err := s.repo.Upsert(ctx, entry)
	if err != nil {
		s.metrics.IncStoreWrite("failed")
		s.logger.Error("Failed to upsert suppression entry",
			zap.String("phone_number", entry.PhoneNumber),
			zap.Error(err),
		)
		return nil, errors.NewInternalError("failed to save suppression entry").WithCause(err)
	}

	s.metrics.IncStoreWrite("success")
	s.logger.Info("Added number to suppression list",
		zap.String("phone_number", stored.PhoneNumber),
		zap.String("reason", stored.Reason),
		zap.String("source", stored.Source),
	)

	if s.notifier != nil {
		s.notifier.Notify(stored)
	}
	return stored, nil
}

// BulkAdd adds entries one at a time in input order. A failed row never
// affects the others and nothing is rolled back.
func (s *Store) BulkAdd(ctx context.Context, reqs []dnc.AddRequest) dnc.BulkResult {
	result := dnc.BulkResult{Errors: []dnc.BulkError{}}

	for _, req := range reqs {
		result.TotalProcessed++
		if _, err := s.Add(ctx, req); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, dnc.BulkError{
				PhoneNumber: req.PhoneNumber,
				Error:       err.Error(),
			})
			continue
		}
		result.Successful++
	}

	s.logger.Info("Bulk suppression add completed",
		zap.Int("total", result.TotalProcessed),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
	)
	return result
}

// Delete hard-deletes the entry for phone. It exists for administration and
// tests; normal opt-outs are expressed with status or expiration.
func (s *Store) Delete(ctx context.Context, phone string) error {
	normalized := values.NormalizePhone(phone)
	if err := s.repo.Delete(ctx, normalized); err != nil {
		return err
	}
	s.logger.Info("Deleted suppression entry", zap.String("phone_number", normalized))
	return nil
}
