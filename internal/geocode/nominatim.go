package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/agrisense/crop-advisory-service/internal/models"
	"github.com/agrisense/crop-advisory-service/internal/observability"
)

// ErrNoMatch is returned when the provider answers but has no result for the
// query. Distinct from transport failures so the resolver can treat both as
// the uniform unresolved outcome.
var ErrNoMatch = errors.New("no geocoding match")

// Geocoder turns a free-text query into a Location.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (models.Location, error)
}

// NominatimClient implements Geocoder against a Nominatim-compatible /search
// endpoint. Nominatim's usage policy requires an identifying User-Agent.
type NominatimClient struct {
	apiURL    string
	userAgent string
	timeout   time.Duration
	client    *http.Client
}

func NewNominatimClient(apiURL, userAgent string, timeout time.Duration) *NominatimClient {
	return &NominatimClient{
		apiURL:    apiURL,
		userAgent: userAgent,
		timeout:   timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Nominatim encodes coordinates as strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode issues a single GET for the first match of query.
func (c *NominatimClient) Geocode(ctx context.Context, query string) (models.Location, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return models.Location{}, fmt.Errorf("invalid API URL: %w", err)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(reqCtx, "GET", baseURL.String(), nil)
	if err != nil {
		observability.ExternalAPICallsTotal.WithLabelValues("geocode", "error").Inc()
		return models.Location{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ExternalAPICallsTotal.WithLabelValues("geocode", "error").Inc()
		observability.ExternalAPIDuration.WithLabelValues("geocode", "error").Observe(time.Since(start).Seconds())
		return models.Location{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.ExternalAPICallsTotal.WithLabelValues("geocode", status).Inc()
	observability.ExternalAPIDuration.WithLabelValues("geocode", status).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return models.Location{}, fmt.Errorf("geocoding failed: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Location{}, fmt.Errorf("read response body: %w", err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return models.Location{}, fmt.Errorf("parse response: %w", err)
	}
	if len(results) == 0 {
		return models.Location{}, ErrNoMatch
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("parse latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("parse longitude %q: %w", results[0].Lon, err)
	}
	if results[0].DisplayName == "" {
		return models.Location{}, ErrNoMatch
	}

	return models.Location{
		Latitude:  lat,
		Longitude: lon,
		Address:   results[0].DisplayName,
	}, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
