package client

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

// SoilClient fetches the soil property profile for a coordinate pair.
type SoilClient interface {
	GetProperties(ctx context.Context, lat, lon float64) (models.SoilData, error)
}

// soilProperties are the SoilGrids layer names requested for the topsoil
// (0-5cm) depth. Each maps onto one models.SoilData field.
var soilProperties = []string{
	"clay", "sand", "silt", "phh2o", "soc", "nitrogen", "cec", "bdod", "wv0033", "wv1500",
}

// SoilGridsClient implements SoilClient against an ISRIC SoilGrids compatible
// properties endpoint.
type SoilGridsClient struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

func NewSoilGridsClient(apiURL string, timeout time.Duration) *SoilGridsClient {
	return &SoilGridsClient{
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type soilGridsResponse struct {
	Properties struct {
		Layers []struct {
			Name        string `json:"name"`
			UnitMeasure struct {
				DFactor float64 `json:"d_factor"`
			} `json:"unit_measure"`
			Depths []struct {
				Label  string `json:"label"`
				Values struct {
					Mean *float64 `json:"mean"`
				} `json:"values"`
			} `json:"depths"`
		} `json:"layers"`
	} `json:"properties"`
}

// GetProperties issues a single GET to the soil endpoint. Transport and
// non-2xx failures propagate to the caller; there is no retry.
func (c *SoilGridsClient) GetProperties(ctx context.Context, lat, lon float64) (models.SoilData, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, lat, lon)
	if err != nil {
		observability.ExternalAPICallsTotal.WithLabelValues("soil", "error").Inc()
		return models.SoilData{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.ExternalAPICallsTotal.WithLabelValues("soil", "error").Inc()
		observability.ExternalAPIDuration.WithLabelValues("soil", "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.SoilData{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.SoilData{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.ExternalAPICallsTotal.WithLabelValues("soil", status).Inc()
	observability.ExternalAPIDuration.WithLabelValues("soil", status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return models.SoilData{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.SoilData{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp soilGridsResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.SoilData{}, fmt.Errorf("parse response: %w", err)
	}

	return mapSoilResponse(apiResp), nil
}

func (c *SoilGridsClient) buildRequest(ctx context.Context, lat, lon float64) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))
	for _, p := range soilProperties {
		params.Add("property", p)
	}
	params.Set("depth", "0-5cm")
	params.Set("value", "mean")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// mapSoilResponse scales each layer's topsoil mean by the provider's d_factor,
// which yields the layer's target units (%, pH, g/kg, cmol(c)/kg, kg/dm3, vol%).
func mapSoilResponse(apiResp soilGridsResponse) models.SoilData {
	values := make(map[string]float64)
	for _, layer := range apiResp.Properties.Layers {
		if len(layer.Depths) == 0 || layer.Depths[0].Values.Mean == nil {
			continue
		}
		dFactor := layer.UnitMeasure.DFactor
		if dFactor == 0 {
			dFactor = 1
		}
		values[layer.Name] = *layer.Depths[0].Values.Mean / dFactor
	}

	return models.SoilData{
		ClayPct:          values["clay"],
		SandPct:          values["sand"],
		SiltPct:          values["silt"],
		PH:               values["phh2o"],
		OrganicCarbon:    values["soc"],
		Nitrogen:         values["nitrogen"],
		CEC:              values["cec"],
		BulkDensity:      values["bdod"],
		FieldCapacityPct: values["wv0033"],
		WiltingPointPct:  values["wv1500"],
	}
}
