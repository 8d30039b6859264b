package resolver

import (
	"context"
	"errors"
	"sync"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
)

type reply struct {
	coords domain.Coordinates
	ok     bool
	err    error
}

// mockProvider answers from a query -> reply table; unknown queries are
// NotFound. It records every query it receives.
type mockProvider struct {
	name    string
	replies map[string]reply
	fail    error // returned for every query when set

	mu      sync.Mutex
	queries []string
}

func newMockProvider(name string) *mockProvider {
	return &mockProvider{name: name, replies: map[string]reply{}}
}

func (m *mockProvider) on(query string, lat, lng float64) *mockProvider {
	m.replies[query] = reply{coords: domain.Coordinates{Lat: lat, Lng: lng}, ok: true}
	return m
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Geocode(ctx context.Context, query string) (domain.Coordinates, bool, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return domain.Coordinates{}, false, &domain.ProviderError{Provider: m.name, Err: err}
	}
	if m.fail != nil {
		return domain.Coordinates{}, false, m.fail
	}
	r := m.replies[query]
	return r.coords, r.ok, r.err
}

func (m *mockProvider) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// mapCache is an in-memory domain.CacheTier with optional failures.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]domain.Coordinates
	getErr  error
	putErr  error
	puts    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]domain.Coordinates{}}
}

func (c *mapCache) Get(_ context.Context, key string) (domain.Coordinates, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.Coordinates{}, false, c.getErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) Put(_ context.Context, key string, v domain.Coordinates) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.putErr != nil {
		return c.putErr
	}
	c.entries[key] = v
	return nil
}

var errUpstream = errors.New("upstream unavailable")
