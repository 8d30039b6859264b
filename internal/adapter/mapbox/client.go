// Package mapbox is a domain.Provider backed by the Mapbox Geocoding API.
package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
)

// Name identifies Mapbox in logs, metrics and attempt records.
const Name = "mapbox"

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Provider using the Mapbox forward geocoding endpoint.
type Client struct {
	token      string
	language   string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client. The token is required.
func NewClient(token, language string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("%s: %w", Name, domain.ErrMissingCredential)
	}
	return &Client{
		token:    token,
		language: language,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		logger:  logger,
	}, nil
}

func (c *Client) Name() string { return Name }

// Geocode resolves query to the coordinates of the most relevant feature.
func (c *Client) Geocode(ctx context.Context, query string) (domain.Coordinates, bool, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}
	if c.language != "" {
		params.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Coordinates{}, false, &domain.ProviderError{Provider: Name, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Coordinates{}, false, &domain.ProviderError{Provider: Name, Err: fmt.Errorf("forward geocode request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Coordinates{}, false, &domain.ProviderError{
			Provider:   Name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("mapbox API error: %s", body),
		}
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.Coordinates{}, false, &domain.ProviderError{
			Provider:   Name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	if len(mapboxResp.Features) == 0 {
		return domain.Coordinates{}, false, nil
	}

	f := mapboxResp.Features[0]
	if len(f.Center) != 2 {
		return domain.Coordinates{}, false, &domain.ProviderError{
			Provider:   Name,
			StatusCode: resp.StatusCode,
			Err:        errors.New("feature has no center"),
		}
	}
	// Mapbox uses lon,lat order.
	coords := domain.Coordinates{Lat: f.Center[1], Lng: f.Center[0]}
	c.logger.Debug("mapbox match", "query", query, "place_name", f.PlaceName, "relevance", f.Relevance)
	return coords, true, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}
