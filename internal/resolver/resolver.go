// Package resolver turns a raw address into coordinates by walking a declared
// plan of provider attempts behind the coordinate cache.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/reseller-geocoder/internal/address"
	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/couchcryptid/reseller-geocoder/internal/observability"
)

// Outcome of a single provider attempt.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
)

// Attempt records one query sent to one provider.
type Attempt struct {
	Strategy Strategy
	Provider string
	Query    string
	Outcome  Outcome
	Err      error
}

// Resolution is the result of resolving one address. Found is false when every
// attempt was exhausted; that is a normal outcome, not an error.
type Resolution struct {
	Query       string // normalized address, also the cache key
	Coordinates domain.Coordinates
	Found       bool
	Source      string // domain.GeoSourceCache or the provider name
	Attempts    []Attempt
	LastErr     error // last provider failure, for logs and batch counters
}

// Location returns the coordinates, or nil when unresolved.
func (r Resolution) Location() *domain.Coordinates {
	if !r.Found {
		return nil
	}
	c := r.Coordinates
	return &c
}

// Resolver runs the resolution state machine for one address at a time. It
// is safe for concurrent use when its providers and cache are.
type Resolver struct {
	primary   domain.Provider
	secondary domain.Provider
	cache     domain.CacheTier
	plan      []Strategy
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSecondary sets the fallback provider used by AlternateProvider steps.
func WithSecondary(p domain.Provider) Option {
	return func(r *Resolver) { r.secondary = p }
}

// WithPlan replaces the default attempt plan.
func WithPlan(plan []Strategy) Option {
	return func(r *Resolver) { r.plan = plan }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New builds a Resolver. The primary provider is required; cache may be nil,
// in which case nothing is looked up or stored.
func New(primary domain.Provider, cache domain.CacheTier, opts ...Option) (*Resolver, error) {
	if primary == nil {
		return nil, domain.ErrNoPrimaryProvider
	}
	r := &Resolver{
		primary: primary,
		cache:   cache,
		plan:    DefaultPlan(DefaultFallbackCountries, true),
		logger:  slog.Default(),
		metrics: observability.NewMetricsForTesting(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve normalizes raw, consults the cache, then tries the plan in order
// until one provider returns valid coordinates, which are cached. The error is
// non-nil only when ctx ends; provider and cache failures are recovered.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	res := Resolution{Query: address.Normalize(raw)}
	if res.Query == "" {
		r.metrics.Resolutions.WithLabelValues("empty").Inc()
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if coords, ok := r.lookup(ctx, res.Query); ok {
		res.Coordinates, res.Found, res.Source = coords, true, domain.GeoSourceCache
		r.metrics.Resolutions.WithLabelValues("cache_hit").Inc()
		return res, nil
	}

	hasCountry := address.HasCountryWord(res.Query)
	usShape := !hasCountry && address.LooksLikeUSAddress(res.Query)

	for _, s := range r.plan {
		p, text, ok := r.step(s, res.Query, hasCountry, usShape)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		a, coords := r.attempt(ctx, s, p, text)
		if a.Outcome == OutcomeError && ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Attempts = append(res.Attempts, a)
		if a.Err != nil {
			res.LastErr = a.Err
		}
		if a.Outcome != OutcomeFound {
			continue
		}

		res.Coordinates, res.Found, res.Source = coords, true, a.Provider
		r.store(ctx, res.Query, coords)
		r.metrics.Resolutions.WithLabelValues("resolved").Inc()
		r.logger.Debug("address resolved",
			"address", res.Query,
			"provider", a.Provider,
			"strategy", s.String(),
			"attempts", len(res.Attempts),
		)
		return res, nil
	}

	r.metrics.Resolutions.WithLabelValues("not_found").Inc()
	attrs := []any{"address", res.Query, "attempts", len(res.Attempts)}
	if res.LastErr != nil {
		attrs = append(attrs, "last_error", res.LastErr)
	}
	r.logger.Info("address unresolved", attrs...)
	return res, nil
}

// ResolveOne returns the coordinates for raw, or nil when it cannot be resolved.
func (r *Resolver) ResolveOne(ctx context.Context, raw string) (*domain.Coordinates, error) {
	res, err := r.Resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	return res.Location(), nil
}

// step maps a strategy to the provider and query text it would send, or
// reports that the strategy does not apply to this address.
func (r *Resolver) step(s Strategy, query string, hasCountry, usShape bool) (domain.Provider, string, bool) {
	switch s.Kind {
	case BareQuery:
		return r.primary, query, true
	case USSuffix:
		if !usShape {
			return nil, "", false
		}
		return r.primary, query + ", USA", true
	case CountrySuffix:
		if hasCountry || s.Country == "" {
			return nil, "", false
		}
		return r.primary, query + ", " + s.Country, true
	case AlternateProvider:
		if r.secondary == nil {
			return nil, "", false
		}
		return r.secondary, query, true
	default:
		return nil, "", false
	}
}

func (r *Resolver) attempt(ctx context.Context, s Strategy, p domain.Provider, text string) (Attempt, domain.Coordinates) {
	a := Attempt{Strategy: s, Provider: p.Name(), Query: text}
	coords, ok, err := p.Geocode(ctx, text)
	switch {
	case err != nil:
		a.Outcome, a.Err = OutcomeError, err
	case !ok:
		a.Outcome = OutcomeNotFound
	case !coords.Valid():
		a.Outcome = OutcomeError
		a.Err = &domain.ProviderError{
			Provider: p.Name(),
			Err:      fmt.Errorf("invalid coordinates %v,%v", coords.Lat, coords.Lng),
		}
	default:
		a.Outcome = OutcomeFound
		return a, coords
	}
	return a, domain.Coordinates{}
}

// lookup returns a valid cached entry for key. Cache failures are logged and
// surface as misses.
func (r *Resolver) lookup(ctx context.Context, key string) (domain.Coordinates, bool) {
	if r.cache == nil {
		return domain.Coordinates{}, false
	}
	coords, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache lookup failed", "address", key, "error", err)
		return domain.Coordinates{}, false
	}
	return coords, ok && coords.Valid()
}

// store writes a fresh result to the cache. The write is detached from ctx so
// a cancellation arriving mid-write does not leave it half done.
func (r *Resolver) store(ctx context.Context, key string, coords domain.Coordinates) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(context.WithoutCancel(ctx), key, coords); err != nil {
		r.logger.Warn("resolved address not cached", "address", key, "error", err)
	}
}
