package checkers

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/values"
	"github.com/davidleathers/compliance-gateway/internal/infrastructure/cache"
	"github.com/davidleathers/compliance-gateway/internal/metrics"
)

const cacheKeyPrefix = "compliance:"

// CachedChecker serves repeat lookups from the result cache. Only decided
// results are stored, so a failed lookup is always retried upstream. Wrap only
// checkers whose verdict depends on the phone number alone.
type CachedChecker struct {
	inner   compliance.Checker
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Registry
}

func NewCachedChecker(inner compliance.Checker, c cache.Cache, ttl time.Duration, logger *zap.Logger, m *metrics.Registry) *CachedChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedChecker{
		inner:   inner,
		cache:   c,
		ttl:     ttl,
		logger:  logger.With(zap.String("checker", inner.Name())),
		metrics: m,
	}
}

// CacheKey returns the key a result for phone is stored under.
func CacheKey(source, phone string) string {
	return cacheKeyPrefix + source + ":" + values.NormalizePhone(phone)
}

func (c *CachedChecker) Name() string { return c.inner.Name() }

func (c *CachedChecker) FailurePolicy() compliance.FailurePolicy { return c.inner.FailurePolicy() }

func (c *CachedChecker) CheckNumber(ctx context.Context, phone string, lead *compliance.LeadContext) (*compliance.Result, error) {
	key := CacheKey(c.inner.Name(), phone)

	var cached compliance.Result
	err := c.cache.GetJSON(ctx, key, &cached)
	switch {
	case err == nil:
		c.metrics.IncCacheLookup(c.inner.Name(), true)
		return &cached, nil
	case !stderrors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn("Result cache read failed", zap.Error(err))
	}
	c.metrics.IncCacheLookup(c.inner.Name(), false)

	res, err := c.inner.CheckNumber(ctx, phone, lead)
	if err != nil || res == nil {
		return res, err
	}

	if err := c.cache.SetJSON(ctx, key, res, c.ttl); err != nil {
		c.logger.Warn("Result cache write failed", zap.Error(err))
	}
	return res, nil
}
