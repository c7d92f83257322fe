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

// WeatherClient fetches current conditions and the daily forecast for a
// coordinate pair.
type WeatherClient interface {
	GetForecast(ctx context.Context, lat, lon float64) (models.WeatherSnapshot, error)
}

// OpenMeteoClient implements WeatherClient against an Open-Meteo compatible
// forecast endpoint. No API key is required; requests carry coordinates and
// the variable lists as query parameters.
type OpenMeteoClient struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

func NewOpenMeteoClient(apiURL string, timeout time.Duration) *OpenMeteoClient {
	return &OpenMeteoClient{
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type openMeteoResponse struct {
	Current struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		Humidity      int     `json:"relative_humidity_2m"`
		Precipitation float64 `json:"precipitation"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		WeatherCode   int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time             []string  `json:"time"`
		TempMax          []float64 `json:"temperature_2m_max"`
		TempMin          []float64 `json:"temperature_2m_min"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// GetForecast issues a single GET to the forecast endpoint. Transport and
// non-2xx failures propagate to the caller; there is no retry.
func (c *OpenMeteoClient) GetForecast(ctx context.Context, lat, lon float64) (models.WeatherSnapshot, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, lat, lon)
	if err != nil {
		observability.ExternalAPICallsTotal.WithLabelValues("weather", "error").Inc()
		return models.WeatherSnapshot{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.ExternalAPICallsTotal.WithLabelValues("weather", "error").Inc()
		observability.ExternalAPIDuration.WithLabelValues("weather", "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.WeatherSnapshot{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.WeatherSnapshot{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.ExternalAPICallsTotal.WithLabelValues("weather", status).Inc()
	observability.ExternalAPIDuration.WithLabelValues("weather", status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return models.WeatherSnapshot{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openMeteoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("parse response: %w", err)
	}

	return mapForecastResponse(apiResp), nil
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, lat, lon float64) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	params.Set("current", "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m,weather_code")
	params.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum")
	params.Set("forecast_days", "7")
	params.Set("wind_speed_unit", "kmh")
	params.Set("timezone", "auto")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func mapForecastResponse(apiResp openMeteoResponse) models.WeatherSnapshot {
	observedAt, _ := time.Parse("2006-01-02T15:04", apiResp.Current.Time)

	snapshot := models.WeatherSnapshot{
		Current: models.CurrentWeather{
			Temperature:   apiResp.Current.Temperature,
			Humidity:      apiResp.Current.Humidity,
			Precipitation: apiResp.Current.Precipitation,
			WindSpeed:     apiResp.Current.WindSpeed,
			Conditions:    conditionsFromCode(apiResp.Current.WeatherCode),
			ObservedAt:    observedAt,
		},
	}

	for i, day := range apiResp.Daily.Time {
		fd := models.ForecastDay{Date: day}
		if i < len(apiResp.Daily.TempMax) {
			fd.TempMax = apiResp.Daily.TempMax[i]
		}
		if i < len(apiResp.Daily.TempMin) {
			fd.TempMin = apiResp.Daily.TempMin[i]
		}
		if i < len(apiResp.Daily.PrecipitationSum) {
			fd.PrecipitationSum = apiResp.Daily.PrecipitationSum[i]
		}
		snapshot.Forecast = append(snapshot.Forecast, fd)
	}

	return snapshot
}

// conditionsFromCode maps WMO weather interpretation codes to a short label.
func conditionsFromCode(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code >= 1 && code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
