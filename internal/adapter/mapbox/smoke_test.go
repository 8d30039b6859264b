//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	c, err := NewClient(token, "en", 10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestSmoke_Geocode(t *testing.T) {
	c := smokeClient(t)

	coords, ok, err := c.Geocode(context.Background(), "1600 Pennsylvania Ave, Washington, DC 20500")
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, 38.90, coords.Lat, 0.1, "lat should be near the White House")
	assert.InDelta(t, -77.04, coords.Lng, 0.1, "lng should be near the White House")
}

func TestSmoke_Geocode_Nonsense(t *testing.T) {
	c := smokeClient(t)

	// Mapbox's fuzzy matching may still return results for nonsense queries,
	// so we verify the client handles any response gracefully (no error).
	_, _, err := c.Geocode(context.Background(), "XYZNONEXISTENT99 ZZ")
	require.NoError(t, err)
}
