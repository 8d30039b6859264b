package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/reseller-geocoder/internal/batch"
	"github.com/couchcryptid/reseller-geocoder/internal/domain"
)

// BatchGeocoder resolves many addresses at once.
type BatchGeocoder interface {
	ResolveMany(ctx context.Context, addresses []string) (batch.Report, error)
}

// Transformed is the result of one transform pass over a batch.
type Transformed struct {
	Outputs []domain.OutputRecord
	Sources []domain.RawRecord // raw record behind each output, same order
	Skipped []domain.RawRecord // records that could not be parsed or serialized
}

// ResellerTransformer parses reseller records and attaches coordinates,
// geocoding every address of a batch in a single deduplicated pass.
type ResellerTransformer struct {
	geocoder BatchGeocoder
	logger   *slog.Logger
}

// NewTransformer creates a ResellerTransformer.
func NewTransformer(geocoder BatchGeocoder, logger *slog.Logger) *ResellerTransformer {
	return &ResellerTransformer{geocoder: geocoder, logger: logger}
}

// TransformBatch returns one output per parseable record. Unresolved addresses
// still produce an output with no location. The error is non-nil only when
// geocoding was cancelled, in which case nothing should be committed.
func (t *ResellerTransformer) TransformBatch(ctx context.Context, raws []domain.RawRecord) (Transformed, error) {
	var out Transformed
	resellers := make([]domain.Reseller, 0, len(raws))
	parsed := make([]domain.RawRecord, 0, len(raws))

	for _, raw := range raws {
		r, err := domain.ParseReseller(raw)
		if err != nil {
			t.logger.Warn("parse failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			out.Skipped = append(out.Skipped, raw)
			continue
		}
		resellers = append(resellers, r)
		parsed = append(parsed, raw)
	}
	if len(resellers) == 0 {
		return out, nil
	}

	addresses := make([]string, len(resellers))
	for i, r := range resellers {
		addresses[i] = r.Address
	}
	report, err := t.geocoder.ResolveMany(ctx, addresses)
	if err != nil {
		return Transformed{}, err
	}

	for i, r := range resellers {
		res := report.Results[i]
		g := domain.NewGeocodedReseller(r, res.Location, res.Source)
		rec, err := domain.SerializeGeocodedReseller(g)
		if err != nil {
			t.logger.Warn("serialize failed, skipping message", "error", err, "id", r.ID)
			out.Skipped = append(out.Skipped, parsed[i])
			continue
		}
		out.Outputs = append(out.Outputs, rec)
		out.Sources = append(out.Sources, parsed[i])
	}
	return out, nil
}
