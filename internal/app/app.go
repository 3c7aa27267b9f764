// Package app wires configuration into a running compliance gateway.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/api/rest"
	domain "github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/dnc"
	"github.com/davidleathers/compliance-gateway/internal/infrastructure/cache"
	"github.com/davidleathers/compliance-gateway/internal/infrastructure/config"
	"github.com/davidleathers/compliance-gateway/internal/infrastructure/database"
	"github.com/davidleathers/compliance-gateway/internal/infrastructure/events"
	"github.com/davidleathers/compliance-gateway/internal/metrics"
	"github.com/davidleathers/compliance-gateway/internal/service/compliance"
	"github.com/davidleathers/compliance-gateway/internal/service/compliance/checkers"
	"github.com/davidleathers/compliance-gateway/internal/service/suppression"
)

// App holds the wired components of one gateway process.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Registry

	pool     *pgxpool.Pool
	cache    cache.Cache
	notifier *events.WebhookNotifier

	Engine      *compliance.Engine
	Store       *suppression.Store
	InternalDNC *checkers.InternalDNCChecker
	Handler     http.Handler
}

// New builds every component described by cfg. Close releases what New opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: newPrometheusRegistry(cfg.Version),
	}
	a.metrics = metrics.NewRegistry(a.registry)

	repo, err := a.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	a.notifier = events.NewWebhookNotifier(events.WebhookConfig{
		URL:     cfg.Webhook.URL,
		Secret:  cfg.Webhook.Secret,
		Timeout: cfg.Webhook.Timeout,
	}, logger.Named("webhook"), a.metrics)

	var notifier dnc.Notifier
	if a.notifier.Enabled() {
		notifier = a.notifier
	}

	a.Store, err = suppression.NewStore(repo, notifier, logger.Named("suppression"), a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.InternalDNC = checkers.NewInternalDNCChecker(a.Store, logger.Named("internal_dnc"))

	if cfg.Cache.Enabled {
		a.cache, err = cache.NewRedisCache(ctx, cfg.Redis, logger.Named("cache"))
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Engine = compliance.NewEngine(a.buildCheckers(), compliance.EngineConfig{
		MaxConcurrentNumbers: cfg.Engine.MaxConcurrentNumbers,
	}, logger.Named("engine"), a.metrics)

	if cfg.Providers.InternalDNC.Seed {
		if err := a.Engine.InitializeAll(ctx); err != nil {
			logger.Warn("Checker initialization failed", zap.Error(err))
		}
		// Seed the internal list even when the engine does not query it.
		if err := a.InternalDNC.Initialize(ctx); err != nil {
			logger.Warn("Internal DNC seed failed; it will be retried on the next check or write", zap.Error(err))
		}
	}

	handler := rest.NewHandler(a.Engine, a.InternalDNC, a.Store, logger.Named("api")).WithVersion(cfg.Version)
	if a.pool != nil {
		handler.AddHealthCheck("database", a.pool.Ping)
	}
	a.Handler = rest.NewRouter(handler, a.registry, logger.Named("http"), a.metrics)

	return a, nil
}

func (a *App) newRepository(ctx context.Context) (dnc.EntryRepository, error) {
	switch a.cfg.Storage.Driver {
	case config.StorageDriverMemory:
		a.logger.Warn("Using in-memory suppression storage; entries are lost on restart")
		return database.NewMemoryEntryRepository(), nil
	case config.StorageDriverPostgres:
		pool, err := database.NewPool(ctx, a.cfg.Database, a.logger.Named("database"))
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.registry.MustRegister(database.NewPoolCollector(pool))
		return database.NewDNCEntryRepository(pool), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", a.cfg.Storage.Driver)
	}
}

// buildCheckers returns the enabled checkers in registration order:
// litigation, blacklist, web reputation, internal DNC, partner.
func (a *App) buildCheckers() []domain.Checker {
	p := a.cfg.Providers
	var list []domain.Checker

	if p.Litigation.HTTP.Enabled {
		list = append(list, checkers.NewLitigationChecker(checkers.LitigationConfig{
			HTTP:     httpOptions(p.Litigation.HTTP),
			Username: p.Litigation.Username,
			Password: p.Litigation.Password,
		}, a.logger.Named("litigation"), a.metrics))
	}
	if p.Blacklist.HTTP.Enabled {
		list = append(list, a.cached(checkers.NewBlacklistChecker(checkers.BlacklistConfig{
			HTTP:   httpOptions(p.Blacklist.HTTP),
			APIKey: p.Blacklist.APIKey,
		}, a.logger.Named("blacklist"), a.metrics)))
	}
	if p.WebReputation.HTTP.Enabled {
		list = append(list, a.cached(checkers.NewWebReputationChecker(checkers.WebReputationConfig{
			HTTP:   httpOptions(p.WebReputation.HTTP),
			APIKey: p.WebReputation.APIKey,
		}, a.logger.Named("web_reputation"), a.metrics)))
	}
	if p.InternalDNC.Enabled {
		list = append(list, a.InternalDNC)
	}
	if p.Partner.HTTP.Enabled {
		list = append(list, checkers.NewPartnerChecker(checkers.PartnerConfig{
			HTTP:           httpOptions(p.Partner.HTTP),
			MaxAttempts:    p.Partner.MaxAttempts,
			RetryDelay:     p.Partner.RetryDelay,
			AttemptTimeout: p.Partner.AttemptTimeout,
		}, a.logger.Named("partner"), a.metrics))
	}

	names := make([]string, len(list))
	for i, c := range list {
		names[i] = c.Name()
	}
	a.logger.Info("Compliance checkers registered", zap.Strings("checkers", names))
	return list
}

// cached wraps c in the result cache when one is configured.
func (a *App) cached(c domain.Checker) domain.Checker {
	if a.cache == nil {
		return c
	}
	return checkers.NewCachedChecker(c, a.cache, a.cfg.Cache.TTL, a.logger.Named("cache"), a.metrics)
}

func httpOptions(h config.HTTPConfig) checkers.HTTPOptions {
	return checkers.HTTPOptions{
		BaseURL:   h.BaseURL,
		Timeout:   h.Timeout,
		RateLimit: h.RateLimit,
		Burst:     h.Burst,
	}
}

// Run serves the API until ctx is done, then releases every resource.
func (a *App) Run(ctx context.Context, ln net.Listener) error {
	defer a.Close()
	return rest.NewServer(a.cfg.Server, a.Handler, a.logger.Named("server")).Run(ctx, ln)
}

// Close waits for in-flight webhooks and closes the cache and database.
func (a *App) Close() {
	if a.notifier != nil {
		a.notifier.Wait()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("Failed to close cache", zap.Error(err))
		}
		a.cache = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
