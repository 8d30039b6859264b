// Package rediscache is a shared coordinate cache tier backed by Redis, for
// deployments where several geocoder instances should reuse each other's
// lookups.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces cache entries in a shared Redis database.
const KeyPrefix = "geocode:"

type entry struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store implements domain.CacheTier on Redis strings holding JSON values.
// Entries never expire.
type Store struct {
	client *redis.Client
	clock  clockwork.Clock
}

// New wraps an existing client.
func New(client *redis.Client, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{client: client, clock: clock}
}

// NewStore connects to Redis and verifies the connection with a PING.
func NewStore(ctx context.Context, addr, password string, db int, clock clockwork.Clock) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return New(client, clock), nil
}

func key(address string) string {
	return KeyPrefix + address
}

// Get returns the cached coordinates for a normalized address.
func (s *Store) Get(ctx context.Context, address string) (domain.Coordinates, bool, error) {
	val, err := s.client.Get(ctx, key(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Coordinates{}, false, nil
	}
	if err != nil {
		return domain.Coordinates{}, false, fmt.Errorf("redis get: %w", err)
	}

	var e entry
	if err := json.Unmarshal(val, &e); err != nil {
		return domain.Coordinates{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return domain.Coordinates{Lat: e.Lat, Lng: e.Lng}, true, nil
}

// Put overwrites the entry for a normalized address.
func (s *Store) Put(ctx context.Context, address string, c domain.Coordinates) error {
	data, err := json.Marshal(entry{Lat: c.Lat, Lng: c.Lng, UpdatedAt: s.clock.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, key(address), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
