// Package opencage is the primary domain.Provider, backed by the OpenCage
// forward geocoding API.
package opencage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
)

// Name identifies OpenCage in logs, metrics and attempt records.
const Name = "opencage"

const defaultBaseURL = "https://api.opencagedata.com/geocode/v1/json"

// Client implements domain.Provider using the OpenCage API.
type Client struct {
	apiKey     string
	language   string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an OpenCage client. The API key is required; an empty key
// fails here, before any request is made.
func NewClient(apiKey, language string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %w", Name, domain.ErrMissingCredential)
	}
	return &Client{
		apiKey:   apiKey,
		language: language,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		logger:  logger,
	}, nil
}

func (c *Client) Name() string { return Name }

// Geocode returns the geometry of the first result for query.
func (c *Client) Geocode(ctx context.Context, query string) (domain.Coordinates, bool, error) {
	params := url.Values{
		"q":              {query},
		"key":            {c.apiKey},
		"limit":          {"1"},
		"no_annotations": {"1"},
	}
	if c.language != "" {
		params.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Coordinates{}, false, c.fail(0, fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Coordinates{}, false, c.fail(0, fmt.Errorf("geocode request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Coordinates{}, false, c.fail(resp.StatusCode, statusError(resp.Body))
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Coordinates{}, false, c.fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	if len(body.Results) == 0 {
		return domain.Coordinates{}, false, nil
	}

	r := body.Results[0]
	c.logger.Debug("opencage match", "query", query, "formatted", r.Formatted, "confidence", r.Confidence)
	return domain.Coordinates{Lat: r.Geometry.Lat, Lng: r.Geometry.Lng}, true, nil
}

func (c *Client) fail(status int, err error) error {
	return &domain.ProviderError{Provider: Name, StatusCode: status, Err: err}
}

// statusError prefers the API's own status message (quota exceeded, invalid
// key) over the raw body.
func statusError(body io.Reader) error {
	raw, _ := io.ReadAll(io.LimitReader(body, 1024))
	var r response
	if err := json.Unmarshal(raw, &r); err == nil && r.Status.Message != "" {
		return fmt.Errorf("opencage API error: %s", r.Status.Message)
	}
	return fmt.Errorf("opencage API error: %s", raw)
}

// OpenCage API response types.

type response struct {
	Results []result `json:"results"`
	Status  status   `json:"status"`
}

type result struct {
	Geometry   geometry `json:"geometry"`
	Formatted  string   `json:"formatted"`
	Confidence int      `json:"confidence"`
}

type geometry struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
