package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const openMeteoBody = `{
	"current": {
		"time": "2026-08-25T10:00",
		"temperature_2m": 31.4,
		"relative_humidity_2m": 68,
		"precipitation": 0.2,
		"wind_speed_10m": 12.5,
		"weather_code": 2
	},
	"daily": {
		"time": ["2026-08-25", "2026-08-26"],
		"temperature_2m_max": [33.1, 34.0],
		"temperature_2m_min": [24.9, 25.3],
		"precipitation_sum": [1.2, 0.0]
	}
}`

func TestOpenMeteoClient_GetForecast(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(openMeteoBody))
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	snap, err := c.GetForecast(context.Background(), 28.6139, 77.2090)
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}

	if got := gotQuery["latitude"]; len(got) != 1 || got[0] != "28.6139" {
		t.Errorf("latitude param = %v, want [28.6139]", got)
	}
	if got := gotQuery["forecast_days"]; len(got) != 1 || got[0] != "7" {
		t.Errorf("forecast_days param = %v, want [7]", got)
	}

	if snap.Current.Temperature != 31.4 {
		t.Errorf("Current.Temperature = %v, want 31.4", snap.Current.Temperature)
	}
	if snap.Current.Humidity != 68 {
		t.Errorf("Current.Humidity = %v, want 68", snap.Current.Humidity)
	}
	if snap.Current.Conditions != "partly cloudy" {
		t.Errorf("Current.Conditions = %q, want %q", snap.Current.Conditions, "partly cloudy")
	}
	if len(snap.Forecast) != 2 {
		t.Fatalf("len(Forecast) = %d, want 2", len(snap.Forecast))
	}
	if snap.Forecast[0].Date != "2026-08-25" || snap.Forecast[0].TempMax != 33.1 {
		t.Errorf("Forecast[0] = %+v, want date 2026-08-25, tempMax 33.1", snap.Forecast[0])
	}
}

func TestOpenMeteoClient_GetForecast_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	_, err := c.GetForecast(context.Background(), 10, 10)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("GetForecast() error = %v, want ErrUpstreamFailure", err)
	}
}

func TestOpenMeteoClient_GetForecast_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	_, err := c.GetForecast(context.Background(), 10, 10)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("GetForecast() error = %v, want ErrRateLimited", err)
	}
}

// Each fetch is attempted exactly once; a failing upstream sees one request.
func TestOpenMeteoClient_GetForecast_SingleAttempt(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(srv.URL, 2*time.Second)
	_, err := c.GetForecast(context.Background(), 10, 10)
	if err == nil {
		t.Fatal("GetForecast() error = nil, want error")
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestConditionsFromCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "clear"},
		{2, "partly cloudy"},
		{45, "fog"},
		{53, "drizzle"},
		{63, "rain"},
		{73, "snow"},
		{81, "rain showers"},
		{95, "thunderstorm"},
		{40, "unknown"},
	}

	for _, tc := range tests {
		if got := conditionsFromCode(tc.code); got != tc.want {
			t.Errorf("conditionsFromCode(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}
