package domain

import "context"

// Provider turns a plain query string into coordinates using an external
// geocoding API.
type Provider interface {
	// Name identifies the provider in logs, metrics and attempt records.
	Name() string

	// Geocode returns (c, true, nil) on a match and (zero, false, nil) when the
	// provider answered but found nothing. Any other failure is reported as a
	// *ProviderError.
	Geocode(ctx context.Context, query string) (Coordinates, bool, error)
}
