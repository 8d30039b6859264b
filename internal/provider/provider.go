// Package provider holds decorators shared by every domain.Provider:
// request pacing and metrics/logging instrumentation.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/couchcryptid/reseller-geocoder/internal/observability"
	"golang.org/x/time/rate"
)

// PacedProvider separates consecutive calls to the wrapped provider by at
// least the configured interval, across all goroutines sharing it.
type PacedProvider struct {
	inner   domain.Provider
	limiter *rate.Limiter
}

// Paced wraps p with a minimum interval between calls. A non-positive interval
// returns p unchanged.
func Paced(p domain.Provider, interval time.Duration) domain.Provider {
	if interval <= 0 {
		return p
	}
	return &PacedProvider{
		inner:   p,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (p *PacedProvider) Name() string { return p.inner.Name() }

// Geocode waits for the next request slot, then delegates. A cancelled context
// is returned as is so callers can tell it apart from a provider failure.
func (p *PacedProvider) Geocode(ctx context.Context, query string) (domain.Coordinates, bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return domain.Coordinates{}, false, ctx.Err()
		}
		return domain.Coordinates{}, false, &domain.ProviderError{
			Provider: p.inner.Name(),
			Err:      fmt.Errorf("wait for request slot: %w", err),
		}
	}
	return p.inner.Geocode(ctx, query)
}

// InstrumentedProvider records request outcomes and latency for the wrapped
// provider.
type InstrumentedProvider struct {
	inner   domain.Provider
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Instrumented wraps p with Prometheus metrics and structured logging.
func Instrumented(p domain.Provider, metrics *observability.Metrics, logger *slog.Logger) *InstrumentedProvider {
	return &InstrumentedProvider{inner: p, metrics: metrics, logger: logger}
}

func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

func (p *InstrumentedProvider) Geocode(ctx context.Context, query string) (domain.Coordinates, bool, error) {
	name := p.inner.Name()
	start := time.Now()
	coords, ok, err := p.inner.Geocode(ctx, query)
	p.metrics.ProviderDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		p.metrics.ProviderRequests.WithLabelValues(name, "error").Inc()
		if ctx.Err() == nil {
			p.logger.Warn("geocoding provider failed", "provider", name, "query", query, "error", err)
		}
	case ok:
		p.metrics.ProviderRequests.WithLabelValues(name, "found").Inc()
		p.logger.Debug("geocoding provider matched", "provider", name, "query", query, "lat", coords.Lat, "lng", coords.Lng)
	default:
		p.metrics.ProviderRequests.WithLabelValues(name, "not_found").Inc()
		p.logger.Debug("geocoding provider found nothing", "provider", name, "query", query)
	}
	return coords, ok, err
}
