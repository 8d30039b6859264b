// Package cache composes coordinate cache tiers into the lookup chain used by
// the resolver.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
)

// Memory is a bounded, process-local LRU tier. It is cleared on restart.
type Memory struct {
	entries *lru.Cache[string, domain.Coordinates]
}

// NewMemory creates an LRU tier holding at most maxEntries addresses.
func NewMemory(maxEntries int) (*Memory, error) {
	entries, err := lru.New[string, domain.Coordinates](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &Memory{entries: entries}, nil
}

func (c *Memory) Get(_ context.Context, key string) (domain.Coordinates, bool, error) {
	v, ok := c.entries.Get(key)
	return v, ok, nil
}

func (c *Memory) Put(_ context.Context, key string, value domain.Coordinates) error {
	c.entries.Add(key, value)
	return nil
}

// Len returns the number of cached addresses.
func (c *Memory) Len() int {
	return c.entries.Len()
}
