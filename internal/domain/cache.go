package domain

import "context"

// CacheTier is one layer of the coordinate cache, keyed by normalized address.
// Implementations must be safe for concurrent use; Put is an upsert and is
// atomic per key.
type CacheTier interface {
	Get(ctx context.Context, key string) (Coordinates, bool, error)
	Put(ctx context.Context, key string, c Coordinates) error
}
