// Package nominatim is the keyless fallback domain.Provider backed by an
// OpenStreetMap Nominatim instance.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
)

// Name identifies Nominatim in logs, metrics and attempt records.
const Name = "nominatim"

// DefaultBaseURL is the public OpenStreetMap instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client implements domain.Provider using the Nominatim /search endpoint.
// The usage policy of the public instance requires a User-Agent that
// identifies the application.
type Client struct {
	userAgent  string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Nominatim client. An empty baseURL selects the public
// instance; an empty userAgent is a configuration error.
func NewClient(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(userAgent) == "" {
		return nil, fmt.Errorf("%s: %w", Name, domain.ErrMissingUserAgent)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

func (c *Client) Name() string { return Name }

// Geocode queries /search with the raw text and parses the first place.
func (c *Client) Geocode(ctx context.Context, query string) (domain.Coordinates, bool, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return domain.Coordinates{}, false, c.fail(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Coordinates{}, false, c.fail(0, fmt.Errorf("search request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Coordinates{}, false, c.fail(resp.StatusCode, fmt.Errorf("nominatim API error: %s", body))
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.Coordinates{}, false, c.fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if len(places) == 0 {
		return domain.Coordinates{}, false, nil
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.Coordinates{}, false, c.fail(resp.StatusCode, fmt.Errorf("parse lat %q: %w", p.Lat, err))
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.Coordinates{}, false, c.fail(resp.StatusCode, fmt.Errorf("parse lon %q: %w", p.Lon, err))
	}

	c.logger.Debug("nominatim match", "query", query, "display_name", p.DisplayName)
	return domain.Coordinates{Lat: lat, Lng: lng}, true, nil
}

func (c *Client) fail(status int, err error) error {
	return &domain.ProviderError{Provider: Name, StatusCode: status, Err: err}
}

// place is one element of the /search?format=json array. Coordinates are
// strings in this format.
type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}
