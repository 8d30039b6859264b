package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/couchcryptid/reseller-geocoder/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type brokenTier struct {
	closed bool
}

func (b *brokenTier) Get(context.Context, string) (domain.Coordinates, bool, error) {
	return domain.Coordinates{}, false, errors.New("connection refused")
}

func (b *brokenTier) Put(context.Context, string, domain.Coordinates) error {
	return errors.New("connection refused")
}

func (b *brokenTier) Close() error {
	b.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestChain_BackfillsFasterTier(t *testing.T) {
	ctx := context.Background()
	fast, slow := newMemory(t, 10), newMemory(t, 10)
	require.NoError(t, slow.Put(ctx, "addr", domain.Coordinates{Lat: 1, Lng: 2}))

	metrics := observability.NewMetricsForTesting()
	chain := NewChain(discardLogger(), metrics, Layer{"memory", fast}, Layer{"durable", slow})

	got, ok, err := chain.Get(ctx, "addr")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.Coordinates{Lat: 1, Lng: 2}, got)

	backfilled, ok, _ := fast.Get(ctx, "addr")
	assert.True(t, ok, "memory tier should be back-filled")
	assert.Equal(t, got, backfilled)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("memory", "miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("durable", "hit")), 0)
}

func TestChain_PutWritesEveryTier(t *testing.T) {
	ctx := context.Background()
	fast, slow := newMemory(t, 10), newMemory(t, 10)
	chain := NewChain(discardLogger(), observability.NewMetricsForTesting(), Layer{"memory", fast}, Layer{"durable", slow})

	require.NoError(t, chain.Put(ctx, "addr", domain.Coordinates{Lat: 3, Lng: 4}))

	for _, tier := range []*Memory{fast, slow} {
		got, ok, _ := tier.Get(ctx, "addr")
		assert.True(t, ok)
		assert.Equal(t, domain.Coordinates{Lat: 3, Lng: 4}, got)
	}
}

func TestChain_FailingTierDegrades(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t, 10)
	broken := &brokenTier{}
	metrics := observability.NewMetricsForTesting()
	chain := NewChain(discardLogger(), metrics, Layer{"memory", mem}, Layer{"sqlite", broken})

	_, ok, err := chain.Get(ctx, "addr")
	require.NoError(t, err, "a broken tier must not fail the lookup")
	assert.False(t, ok)

	err = chain.Put(ctx, "addr", domain.Coordinates{Lat: 5, Lng: 6})
	require.Error(t, err)
	var cerr *domain.CacheError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "sqlite", cerr.Tier)
	assert.Equal(t, "put", cerr.Op)

	got, ok, _ := chain.Get(ctx, "addr")
	assert.True(t, ok, "healthy tier still serves the entry")
	assert.Equal(t, domain.Coordinates{Lat: 5, Lng: 6}, got)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheErrors.WithLabelValues("sqlite", "get")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheErrors.WithLabelValues("sqlite", "put")), 0)
}

func TestChain_CloseClosesResourceTiers(t *testing.T) {
	broken := &brokenTier{}
	chain := NewChain(discardLogger(), observability.NewMetricsForTesting(), Layer{"memory", newMemory(t, 1)}, Layer{"sqlite", broken})

	require.NoError(t, chain.Close())
	assert.True(t, broken.closed)
}
