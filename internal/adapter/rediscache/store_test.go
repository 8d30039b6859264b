package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, clock clockwork.Clock) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewStore(context.Background(), mr.Addr(), "", 0, clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestNewStore_ConnectionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewStore(ctx, "127.0.0.1:1", "", 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestStore_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "1 Rue de Rivoli, Paris", domain.Coordinates{Lat: 48.8606, Lng: 2.3376}))

	got, ok, err := s.Get(ctx, "1 Rue de Rivoli, Paris")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.Coordinates{Lat: 48.8606, Lng: 2.3376}, got)
}

func TestStore_Miss(t *testing.T) {
	s, _ := newTestStore(t, nil)

	_, ok, err := s.Get(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_StoredFormat(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC))
	s, mr := newTestStore(t, clock)

	require.NoError(t, s.Put(context.Background(), "addr", domain.Coordinates{Lat: 1.5, Lng: -2.5}))

	raw, err := mr.Get("geocode:addr")
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":1.5,"lng":-2.5,"updated_at":"2026-05-04T12:00:00Z"}`, raw)
	assert.Zero(t, mr.TTL("geocode:addr"), "entries should not expire")
}

func TestStore_Overwrite(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "addr", domain.Coordinates{Lat: 1, Lng: 1}))
	require.NoError(t, s.Put(ctx, "addr", domain.Coordinates{Lat: 2, Lng: 2}))

	got, _, err := s.Get(ctx, "addr")
	require.NoError(t, err)
	assert.Equal(t, domain.Coordinates{Lat: 2, Lng: 2}, got)
}

func TestStore_CorruptEntry(t *testing.T) {
	s, mr := newTestStore(t, nil)
	require.NoError(t, mr.Set("geocode:addr", "not json"))

	_, ok, err := s.Get(context.Background(), "addr")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestStore_ServerDown(t *testing.T) {
	s, mr := newTestStore(t, nil)
	mr.Close()

	_, _, err := s.Get(context.Background(), "addr")
	require.Error(t, err)
	require.Error(t, s.Put(context.Background(), "addr", domain.Coordinates{Lat: 1, Lng: 1}))
}
