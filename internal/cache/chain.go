package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/couchcryptid/reseller-geocoder/internal/observability"
)

// Layer is a named cache tier. Name labels logs and metrics.
type Layer struct {
	Name string
	Tier domain.CacheTier
}

// Chain checks its layers fastest-first and writes through to all of them.
// A failing layer is logged and skipped; it never fails a lookup or a write
// to the other layers.
type Chain struct {
	layers  []Layer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewChain composes layers in lookup order.
func NewChain(logger *slog.Logger, metrics *observability.Metrics, layers ...Layer) *Chain {
	return &Chain{layers: layers, logger: logger, metrics: metrics}
}

// Get returns the first hit, back-filling the faster layers that missed.
// Layer failures are treated as misses; the returned error is always nil.
func (c *Chain) Get(ctx context.Context, key string) (domain.Coordinates, bool, error) {
	for i, l := range c.layers {
		coords, ok, err := l.Tier.Get(ctx, key)
		if err != nil {
			c.fail(&domain.CacheError{Tier: l.Name, Op: "get", Err: err}, key)
			continue
		}
		if !ok {
			c.metrics.CacheLookups.WithLabelValues(l.Name, "miss").Inc()
			continue
		}
		c.metrics.CacheLookups.WithLabelValues(l.Name, "hit").Inc()
		for _, upper := range c.layers[:i] {
			if err := upper.Tier.Put(ctx, key, coords); err != nil {
				c.fail(&domain.CacheError{Tier: upper.Name, Op: "put", Err: err}, key)
			}
		}
		return coords, true, nil
	}
	return domain.Coordinates{}, false, nil
}

// Put upserts key into every layer. It returns the joined *domain.CacheError
// values of the layers that failed; the others are still written.
func (c *Chain) Put(ctx context.Context, key string, coords domain.Coordinates) error {
	var errs []error
	for _, l := range c.layers {
		if err := l.Tier.Put(ctx, key, coords); err != nil {
			cerr := &domain.CacheError{Tier: l.Name, Op: "put", Err: err}
			c.fail(cerr, key)
			errs = append(errs, cerr)
		}
	}
	return errors.Join(errs...)
}

// Close closes every layer that holds resources.
func (c *Chain) Close() error {
	var errs []error
	for _, l := range c.layers {
		if closer, ok := l.Tier.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) fail(err *domain.CacheError, key string) {
	c.metrics.CacheErrors.WithLabelValues(err.Tier, err.Op).Inc()
	c.logger.Warn("cache tier unavailable",
		"tier", err.Tier,
		"op", err.Op,
		"address", key,
		"error", err.Err,
	)
}
