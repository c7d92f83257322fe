package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agrisense/crop-advisory-service/internal/cache"
	"github.com/agrisense/crop-advisory-service/internal/models"
)

type fakeWeatherClient struct {
	mu       sync.Mutex
	snapshot models.WeatherSnapshot
	err      error
	calls    int
	delay    time.Duration
}

func (f *fakeWeatherClient) GetForecast(ctx context.Context, lat, lon float64) (models.WeatherSnapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.snapshot, f.err
}

func (f *fakeWeatherClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSoilClient struct {
	mu    sync.Mutex
	data  models.SoilData
	err   error
	calls int
}

func (f *fakeSoilClient) GetProperties(ctx context.Context, lat, lon float64) (models.SoilData, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.data, f.err
}

func (f *fakeSoilClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func mildWeather() models.WeatherSnapshot {
	return models.WeatherSnapshot{
		Current: models.CurrentWeather{Temperature: 28, Humidity: 60, WindSpeed: 10, Conditions: "clear"},
		Forecast: []models.ForecastDay{
			{Date: "2026-08-25", TempMax: 32, TempMin: 22, PrecipitationSum: 8},
			{Date: "2026-08-26", TempMax: 31, TempMin: 21, PrecipitationSum: 12},
		},
	}
}

func loamSoil() models.SoilData {
	return models.SoilData{
		ClayPct: 22, SandPct: 40, SiltPct: 38,
		PH: 6.8, OrganicCarbon: 12, Nitrogen: 1.3, CEC: 18,
		BulkDensity: 1.32, FieldCapacityPct: 28, WiltingPointPct: 13,
	}
}

func puneLocation() models.Location {
	return models.Location{Latitude: 18.5204, Longitude: 73.8567, Address: "Pune, Maharashtra, India"}
}

func newTestAnalyzer(w *fakeWeatherClient, s *fakeSoilClient) *Analyzer {
	return NewAnalyzer(w, s, cache.NewInMemoryCache(), time.Hour, 24*time.Hour, 2*time.Second)
}

func TestAnalyzer_Analyze(t *testing.T) {
	w := &fakeWeatherClient{snapshot: mildWeather()}
	s := &fakeSoilClient{data: loamSoil()}
	a := newTestAnalyzer(w, s)

	result, err := a.Analyze(context.Background(), puneLocation())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.Region != "Pune" {
		t.Errorf("Region = %q, want Pune", result.Region)
	}
	if result.Weather.Current.Temperature != 28 {
		t.Errorf("current temperature = %v, want 28", result.Weather.Current.Temperature)
	}
	if result.Soil.Composition.Texture != "loam" {
		t.Errorf("texture = %q, want loam", result.Soil.Composition.Texture)
	}
	if result.GeneratedAt.IsZero() {
		t.Error("GeneratedAt is zero")
	}
}

// Either provider failing fails the whole analysis; no partial results.
func TestAnalyzer_Analyze_AllOrNothing(t *testing.T) {
	tests := []struct {
		name string
		w    *fakeWeatherClient
		s    *fakeSoilClient
	}{
		{
			name: "weather failure",
			w:    &fakeWeatherClient{err: errors.New("upstream down")},
			s:    &fakeSoilClient{data: loamSoil()},
		},
		{
			name: "soil failure",
			w:    &fakeWeatherClient{snapshot: mildWeather()},
			s:    &fakeSoilClient{err: errors.New("upstream down")},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAnalyzer(tc.w, tc.s)
			result, err := a.Analyze(context.Background(), puneLocation())
			if err == nil {
				t.Fatal("Analyze() error = nil, want failure")
			}
			if result.Weather.Forecast != nil || result.Region != "" {
				t.Errorf("failed analysis carries data: %+v", result)
			}
		})
	}
}

// A second analysis inside the TTLs serves both kinds from cache.
func TestAnalyzer_Analyze_Cached(t *testing.T) {
	w := &fakeWeatherClient{snapshot: mildWeather()}
	s := &fakeSoilClient{data: loamSoil()}
	a := newTestAnalyzer(w, s)
	ctx := context.Background()

	if _, err := a.Analyze(ctx, puneLocation()); err != nil {
		t.Fatalf("first Analyze() error = %v", err)
	}
	if _, err := a.Analyze(ctx, puneLocation()); err != nil {
		t.Fatalf("second Analyze() error = %v", err)
	}

	if w.callCount() != 1 {
		t.Errorf("weather calls = %d, want 1", w.callCount())
	}
	if s.callCount() != 1 {
		t.Errorf("soil calls = %d, want 1", s.callCount())
	}
}

// Weather expiring must not refetch soil, and vice versa.
func TestAnalyzer_Analyze_IndependentTTLs(t *testing.T) {
	w := &fakeWeatherClient{snapshot: mildWeather()}
	s := &fakeSoilClient{data: loamSoil()}
	a := NewAnalyzer(w, s, cache.NewInMemoryCache(), 30*time.Millisecond, 24*time.Hour, 2*time.Second)
	ctx := context.Background()

	if _, err := a.Analyze(ctx, puneLocation()); err != nil {
		t.Fatalf("first Analyze() error = %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := a.Analyze(ctx, puneLocation()); err != nil {
		t.Fatalf("second Analyze() error = %v", err)
	}

	if w.callCount() != 2 {
		t.Errorf("weather calls = %d, want 2 after weather TTL expiry", w.callCount())
	}
	if s.callCount() != 1 {
		t.Errorf("soil calls = %d, want 1 (soil TTL still valid)", s.callCount())
	}
}

// Concurrent analyses of the same coordinates make one upstream pass.
func TestAnalyzer_Analyze_Coalesced(t *testing.T) {
	w := &fakeWeatherClient{snapshot: mildWeather(), delay: 30 * time.Millisecond}
	s := &fakeSoilClient{data: loamSoil()}
	a := newTestAnalyzer(w, s)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Analyze(context.Background(), puneLocation()); err != nil {
				t.Errorf("Analyze() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if w.callCount() != 1 {
		t.Errorf("weather calls = %d, want 1 with coalescing", w.callCount())
	}
	if s.callCount() != 1 {
		t.Errorf("soil calls = %d, want 1 with coalescing", s.callCount())
	}
}

func TestDeriveSoil(t *testing.T) {
	got := deriveSoil(loamSoil())

	if got.Composition.Texture != "loam" {
		t.Errorf("texture = %q, want loam", got.Composition.Texture)
	}
	wantPorosity := (1 - 1.32/2.65) * 100
	if diff := got.Physical.PorosityPct - wantPorosity; diff > 0.01 || diff < -0.01 {
		t.Errorf("porosity = %v, want %v", got.Physical.PorosityPct, wantPorosity)
	}
	if got.Chemical.Reaction != "neutral" {
		t.Errorf("reaction = %q, want neutral", got.Chemical.Reaction)
	}
	if got.Water.AvailableWaterPct != 15 {
		t.Errorf("available water = %v, want 15", got.Water.AvailableWaterPct)
	}
	if got.Fertility.Rating != "moderate" {
		t.Errorf("fertility = %q, want moderate", got.Fertility.Rating)
	}
}

func TestTextureClass(t *testing.T) {
	tests := []struct {
		name             string
		clay, sand, silt float64
		want             string
	}{
		{"heavy clay", 45, 30, 25, "clay"},
		{"sandy", 10, 70, 20, "sandy"},
		{"silty", 15, 20, 65, "silty"},
		{"clay loam", 31, 38, 31, "clay loam"},
		{"balanced loam", 20, 40, 40, "loam"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := textureClass(tc.clay, tc.sand, tc.silt); got != tc.want {
				t.Errorf("textureClass(%v, %v, %v) = %q, want %q", tc.clay, tc.sand, tc.silt, got, tc.want)
			}
		})
	}
}

func TestAssessRisks(t *testing.T) {
	tests := []struct {
		name    string
		weather models.WeatherSnapshot
		soil    models.SoilData
		want    models.EnvironmentalRisks
	}{
		{
			name:    "mild conditions flag nothing",
			weather: mildWeather(),
			soil:    loamSoil(),
			want:    models.EnvironmentalRisks{},
		},
		{
			name: "forecast heat wave",
			weather: models.WeatherSnapshot{
				Current:  models.CurrentWeather{Temperature: 35},
				Forecast: []models.ForecastDay{{TempMax: 42, TempMin: 28, PrecipitationSum: 10}},
			},
			soil: loamSoil(),
			want: models.EnvironmentalRisks{ExtremeHeat: true},
		},
		{
			name: "cold snap in forecast",
			weather: models.WeatherSnapshot{
				Current:  models.CurrentWeather{Temperature: 12},
				Forecast: []models.ForecastDay{{TempMax: 14, TempMin: 3, PrecipitationSum: 10}},
			},
			soil: loamSoil(),
			want: models.EnvironmentalRisks{ColdStress: true},
		},
		{
			name: "monsoon excess",
			weather: models.WeatherSnapshot{
				Current:  models.CurrentWeather{Temperature: 26},
				Forecast: []models.ForecastDay{{TempMax: 28, TempMin: 22, PrecipitationSum: 160}},
			},
			soil: loamSoil(),
			want: models.EnvironmentalRisks{ExcessMoisture: true},
		},
		{
			name: "waterlogged soil without rain",
			weather: models.WeatherSnapshot{
				Current:  models.CurrentWeather{Temperature: 26},
				Forecast: []models.ForecastDay{{TempMax: 28, TempMin: 22, PrecipitationSum: 10}},
			},
			soil: func() models.SoilData { d := loamSoil(); d.FieldCapacityPct = 48; return d }(),
			want: models.EnvironmentalRisks{ExcessMoisture: true},
		},
		{
			name: "drought needs dry forecast and dry soil",
			weather: models.WeatherSnapshot{
				Current:  models.CurrentWeather{Temperature: 30},
				Forecast: []models.ForecastDay{{TempMax: 33, TempMin: 24, PrecipitationSum: 2}},
			},
			soil: func() models.SoilData { d := loamSoil(); d.FieldCapacityPct = 12; return d }(),
			want: models.EnvironmentalRisks{DeficientMoisture: true},
		},
		{
			name: "dry forecast alone is not drought",
			weather: models.WeatherSnapshot{
				Current:  models.CurrentWeather{Temperature: 30},
				Forecast: []models.ForecastDay{{TempMax: 33, TempMin: 24, PrecipitationSum: 2}},
			},
			soil: loamSoil(),
			want: models.EnvironmentalRisks{},
		},
		{
			name: "high wind",
			weather: models.WeatherSnapshot{
				Current:  models.CurrentWeather{Temperature: 28, WindSpeed: 45},
				Forecast: []models.ForecastDay{{TempMax: 30, TempMin: 22, PrecipitationSum: 10}},
			},
			soil: loamSoil(),
			want: models.EnvironmentalRisks{HighWind: true},
		},
		{
			name:    "acidic soil",
			weather: mildWeather(),
			soil:    func() models.SoilData { d := loamSoil(); d.PH = 5.1; return d }(),
			want:    models.EnvironmentalRisks{AcidicSoil: true},
		},
		{
			name:    "alkaline soil",
			weather: mildWeather(),
			soil:    func() models.SoilData { d := loamSoil(); d.PH = 8.4; return d }(),
			want:    models.EnvironmentalRisks{AlkalineSoil: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := assessRisks(tc.weather, tc.soil); got != tc.want {
				t.Errorf("assessRisks() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRegionFromAddress(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"Pune, Maharashtra, India", "Pune"},
		{"Bengaluru", "Bengaluru"},
		{" Connaught Place , New Delhi", "Connaught Place"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := regionFromAddress(tc.address); got != tc.want {
			t.Errorf("regionFromAddress(%q) = %q, want %q", tc.address, got, tc.want)
		}
	}
}
