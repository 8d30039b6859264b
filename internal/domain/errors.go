package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is returned when a credentialed provider is built without its API key.
	ErrMissingCredential = errors.New("geocoding provider credential is not set")
	// ErrMissingUserAgent is returned when a keyless provider is built without a client-identifying header.
	ErrMissingUserAgent = errors.New("geocoding provider user agent is not set")
	// ErrNoPrimaryProvider is returned when a resolver is built without a primary provider.
	ErrNoPrimaryProvider = errors.New("primary geocoding provider is required")
)

// ProviderError describes a failed call to a geocoding provider: a non-2xx
// status, a transport failure, a timeout or an undecodable body.
type ProviderError struct {
	Provider   string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CacheError describes a cache tier that could not be read or written.
type CacheError struct {
	Tier string
	Op   string // "get" or "put"
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Tier, e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }
