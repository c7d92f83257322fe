package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agrisense/crop-advisory-service/internal/models"
	"github.com/agrisense/crop-advisory-service/internal/observability"
)

// IPLocator turns an IP address into an approximate Location.
type IPLocator interface {
	Locate(ctx context.Context, ip string) (models.Location, error)
}

// IPAPIClient implements IPLocator against an ip-api.com-style /json endpoint.
type IPAPIClient struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

func NewIPAPIClient(apiURL string, timeout time.Duration) *IPAPIClient {
	return &IPAPIClient{
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type ipAPIResponse struct {
	Status     string  `json:"status"`
	City       string  `json:"city"`
	RegionName string  `json:"regionName"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// Locate issues a single GET for the IP. An empty ip queries the caller's own
// public address, mirroring the provider's behavior.
func (c *IPAPIClient) Locate(ctx context.Context, ip string) (models.Location, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := strings.TrimRight(c.apiURL, "/")
	if ip != "" {
		endpoint += "/" + ip
	}

	req, err := http.NewRequestWithContext(reqCtx, "GET", endpoint, nil)
	if err != nil {
		observability.ExternalAPICallsTotal.WithLabelValues("iplocate", "error").Inc()
		return models.Location{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ExternalAPICallsTotal.WithLabelValues("iplocate", "error").Inc()
		observability.ExternalAPIDuration.WithLabelValues("iplocate", "error").Observe(time.Since(start).Seconds())
		return models.Location{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.ExternalAPICallsTotal.WithLabelValues("iplocate", status).Inc()
	observability.ExternalAPIDuration.WithLabelValues("iplocate", status).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return models.Location{}, fmt.Errorf("ip lookup failed: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Location{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp ipAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.Location{}, fmt.Errorf("parse response: %w", err)
	}
	if apiResp.Status != "success" {
		return models.Location{}, ErrNoMatch
	}

	address := joinAddress(apiResp.City, apiResp.RegionName, apiResp.Country)
	if address == "" {
		return models.Location{}, ErrNoMatch
	}

	return models.Location{
		Latitude:  apiResp.Lat,
		Longitude: apiResp.Lon,
		Address:   address,
	}, nil
}

func joinAddress(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
