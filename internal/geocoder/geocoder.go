// Package geocoder assembles the providers, cache tiers, resolver, and batch
// controller described by a config.Config. Both binaries build on it.
package geocoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/adapter/mapbox"
	"github.com/couchcryptid/reseller-geocoder/internal/adapter/nominatim"
	"github.com/couchcryptid/reseller-geocoder/internal/adapter/opencage"
	"github.com/couchcryptid/reseller-geocoder/internal/adapter/rediscache"
	"github.com/couchcryptid/reseller-geocoder/internal/adapter/sqlcache"
	"github.com/couchcryptid/reseller-geocoder/internal/batch"
	"github.com/couchcryptid/reseller-geocoder/internal/cache"
	"github.com/couchcryptid/reseller-geocoder/internal/config"
	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/couchcryptid/reseller-geocoder/internal/observability"
	"github.com/couchcryptid/reseller-geocoder/internal/provider"
	"github.com/couchcryptid/reseller-geocoder/internal/resolver"
	"github.com/jonboulle/clockwork"
)

// Service is a fully wired resolver plus the resources it owns.
type Service struct {
	Resolver *resolver.Resolver

	cfg     *config.Config
	cache   *cache.Chain
	tiers   []string
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	// Set by WithProviders; replaces the providers built from cfg.
	providers *providerPair

	background sync.WaitGroup
}

type providerPair struct {
	primary, secondary domain.Provider
}

// Option configures New.
type Option func(*Service)

// WithClock sets the clock used for cache timestamps and batch delays.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithProviders uses the given providers as is instead of building them from
// cfg. secondary may be nil.
func WithProviders(primary, secondary domain.Provider) Option {
	return func(s *Service) { s.providers = &providerPair{primary: primary, secondary: secondary} }
}

// New builds a Service from cfg. Missing credentials fail; an unreachable
// durable cache does not, the service continues with the memory tier only.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(s)
	}

	primary, err := s.primary()
	if err != nil {
		return nil, err
	}
	secondary, err := s.secondary()
	if err != nil {
		return nil, err
	}

	s.cache, err = s.openCache(ctx)
	if err != nil {
		return nil, err
	}

	resolverOpts := []resolver.Option{
		resolver.WithPlan(resolver.DefaultPlan(cfg.FallbackCountries, cfg.USHeuristic)),
		resolver.WithLogger(logger),
		resolver.WithMetrics(metrics),
	}
	metrics.ProvidersAvailable.WithLabelValues("primary").Set(1)
	metrics.ProvidersAvailable.WithLabelValues("secondary").Set(0)
	if secondary != nil {
		resolverOpts = append(resolverOpts, resolver.WithSecondary(secondary))
		metrics.ProvidersAvailable.WithLabelValues("secondary").Set(1)
	}

	s.Resolver, err = resolver.New(primary, s.cache, resolverOpts...)
	if err != nil {
		_ = s.cache.Close()
		return nil, err
	}

	logger.Info("geocoder ready",
		"primary", primary.Name(),
		"secondary", secondary != nil,
		"cache_tiers", s.tiers,
	)
	return s, nil
}

// NewBatch returns a batch controller configured from BATCH_MODE,
// BATCH_WORKERS, and BATCH_DELAY. Later options override the configured ones.
func (s *Service) NewBatch(opts ...batch.Option) (*batch.Controller, error) {
	mode, err := batch.ParseMode(s.cfg.BatchMode)
	if err != nil {
		return nil, err
	}
	base := []batch.Option{
		batch.WithMode(mode),
		batch.WithWorkers(s.cfg.BatchWorkers),
		batch.WithDelay(s.cfg.BatchDelay),
		batch.WithClock(s.clock),
		batch.WithLogger(s.logger),
		batch.WithMetrics(s.metrics),
	}
	return batch.New(s.Resolver, append(base, opts...)...), nil
}

// CacheTiers lists the active cache layers in lookup order.
func (s *Service) CacheTiers() []string {
	return s.tiers
}

// Go runs fn in a goroutine that Shutdown waits for.
func (s *Service) Go(fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn()
	}()
}

// Shutdown waits for the work started with Go, bounded by ctx, then closes
// the cache tiers. The tiers are closed even when the wait times out.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("wait for background work: %w", ctx.Err())
	}
	return errors.Join(waitErr, s.Close())
}

// Close releases the cache tiers without waiting for background work.
func (s *Service) Close() error {
	return s.cache.Close()
}

func (s *Service) primary() (domain.Provider, error) {
	if s.providers != nil {
		if s.providers.primary == nil {
			return nil, domain.ErrNoPrimaryProvider
		}
		return s.providers.primary, nil
	}
	var (
		p   domain.Provider
		err error
	)
	switch s.cfg.PrimaryProvider {
	case config.ProviderOpenCage:
		p, err = opencage.NewClient(s.cfg.OpenCageAPIKey, s.cfg.GeocodeLanguage, s.cfg.GeocodeTimeout, s.logger)
	case config.ProviderMapbox:
		p, err = mapbox.NewClient(s.cfg.MapboxToken, s.cfg.GeocodeLanguage, s.cfg.GeocodeTimeout, s.logger)
	default:
		return nil, fmt.Errorf("unknown primary provider %q", s.cfg.PrimaryProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("primary provider: %w", err)
	}
	return s.wrap(p, s.cfg.GeocodeMinInterval), nil
}

func (s *Service) secondary() (domain.Provider, error) {
	if s.providers != nil {
		return s.providers.secondary, nil
	}
	if !s.cfg.NominatimEnabled {
		return nil, nil
	}
	p, err := nominatim.NewClient(s.cfg.NominatimURL, s.cfg.NominatimUserAgent, s.cfg.GeocodeTimeout, s.logger)
	if err != nil {
		return nil, fmt.Errorf("secondary provider: %w", err)
	}
	return s.wrap(p, s.cfg.NominatimMinInterval), nil
}

// wrap paces p and instruments the underlying call, so latency excludes the
// time spent waiting for a request slot.
func (s *Service) wrap(p domain.Provider, interval time.Duration) domain.Provider {
	return provider.Paced(provider.Instrumented(p, s.metrics, s.logger), interval)
}

func (s *Service) openCache(ctx context.Context) (*cache.Chain, error) {
	var layers []cache.Layer
	if s.cfg.CacheMemorySize > 0 {
		mem, err := cache.NewMemory(s.cfg.CacheMemorySize)
		if err != nil {
			return nil, err
		}
		layers = append(layers, cache.Layer{Name: config.CacheMemory, Tier: mem})
	}

	durable, err := s.openDurable(ctx)
	switch {
	case err != nil:
		s.logger.Warn("durable cache unavailable, continuing without it",
			"backend", s.cfg.CacheBackend,
			"error", err,
		)
	case durable != nil:
		layers = append(layers, cache.Layer{Name: s.cfg.CacheBackend, Tier: durable})
	}

	for _, l := range layers {
		s.tiers = append(s.tiers, l.Name)
	}
	return cache.NewChain(s.logger, s.metrics, layers...), nil
}

func (s *Service) openDurable(ctx context.Context) (domain.CacheTier, error) {
	switch s.cfg.CacheBackend {
	case config.CacheSQLite:
		return sqlcache.OpenSQLite(s.cfg.CacheDir, s.clock)
	case config.CacheMySQL:
		return sqlcache.OpenMySQL(s.cfg.MySQLDSN, s.clock)
	case config.CacheRedis:
		return rediscache.NewStore(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, s.clock)
	default:
		return nil, nil
	}
}
