// Package domain holds the types shared by the address-resolution pipeline.
//
// # Addresses and coordinates
//
// Reseller addresses arrive as free-form text exported from the commerce
// platform: multi-line, sometimes quoted, often without a country. They are
// normalized (see package address) into a single-line key that is both the
// cache key and the provider query. A resolution ends either with
// [Coordinates] that pass [Coordinates.Valid] or with "not found", which is a
// normal outcome and never an error value.
//
// # Capabilities
//
// [Provider] wraps one external geocoding API. [CacheTier] is one layer of the
// coordinate cache; tiers are composed by package cache.
//
// # Errors
//
// Configuration problems ([ErrMissingCredential], [ErrMissingUserAgent],
// [ErrNoPrimaryProvider]) are fatal at startup. [ProviderError] and
// [CacheError] are transient: the resolver logs and counts them and moves on.
//
// # Stream records
//
// The Kafka pipeline consumes [Reseller] JSON and produces [GeocodedReseller]
// JSON keyed by reseller ID, so downstream upserts are idempotent.
package domain
