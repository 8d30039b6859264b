package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GeoSource values recorded on a GeocodedReseller.
const (
	GeoSourceCache      = "cache"
	GeoSourceUnresolved = "unresolved"
)

// RawRecord represents an unprocessed message from the source topic.
type RawRecord struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Reseller is a business customer exported by the commerce platform.
type Reseller struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Address          string     `json:"address"`
	AddressConfirmed bool       `json:"address_confirmed"`
	LastOrderAt      *time.Time `json:"last_order_at,omitempty"`
}

// GeocodedReseller is a reseller with its resolved map position.
// Location is nil when the address could not be resolved.
type GeocodedReseller struct {
	Reseller
	Location   *Coordinates `json:"location,omitempty"`
	GeoSource  string       `json:"geo_source"` // "cache", a provider name, or "unresolved"
	GeocodedAt time.Time    `json:"geocoded_at"`
}

// OutputRecord is the serialized form destined for the sink topic.
type OutputRecord struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// ParseReseller deserializes a RawRecord's value into a Reseller.
func ParseReseller(raw RawRecord) (Reseller, error) {
	var r Reseller
	if err := json.Unmarshal(raw.Value, &r); err != nil {
		return Reseller{}, fmt.Errorf("parse reseller: %w", err)
	}
	if r.ID == "" {
		r.ID = string(raw.Key)
	}
	if r.ID == "" {
		return Reseller{}, errors.New("parse reseller: missing id")
	}
	return r, nil
}

// NewGeocodedReseller attaches a resolution outcome to a reseller and stamps it
// with the package clock.
func NewGeocodedReseller(r Reseller, loc *Coordinates, source string) GeocodedReseller {
	if loc == nil {
		source = GeoSourceUnresolved
	}
	return GeocodedReseller{
		Reseller:   r,
		Location:   loc,
		GeoSource:  source,
		GeocodedAt: clock.Now().UTC(),
	}
}

// SerializeGeocodedReseller marshals a GeocodedReseller into an OutputRecord keyed by reseller ID.
func SerializeGeocodedReseller(g GeocodedReseller) (OutputRecord, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return OutputRecord{}, fmt.Errorf("serialize geocoded reseller: %w", err)
	}
	return OutputRecord{
		Key:   []byte(g.ID),
		Value: data,
		Headers: map[string]string{
			"geo_source":  g.GeoSource,
			"geocoded_at": g.GeocodedAt.Format(time.RFC3339),
		},
	}, nil
}
