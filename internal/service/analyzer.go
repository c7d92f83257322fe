package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agrisense/crop-advisory-service/internal/cache"
	"github.com/agrisense/crop-advisory-service/internal/client"
	"github.com/agrisense/crop-advisory-service/internal/models"
	"github.com/agrisense/crop-advisory-service/internal/observability"
)

// Analyzer aggregates weather and soil data for a resolved location into one
// AnalysisResult. The result is all-or-nothing: if either provider fails, no
// partial analysis is returned.
type Analyzer struct {
	weather    client.WeatherClient
	soil       client.SoilClient
	cache      cache.Cache
	weatherTTL time.Duration
	soilTTL    time.Duration
	coalescer  *analysisCoalescer
}

// NewAnalyzer creates an Analyzer. Weather and soil responses are cached
// independently since their volatility differs by an order of magnitude.
func NewAnalyzer(weather client.WeatherClient, soil client.SoilClient, c cache.Cache, weatherTTL, soilTTL, coalesceTimeout time.Duration) *Analyzer {
	return &Analyzer{
		weather:    weather,
		soil:       soil,
		cache:      c,
		weatherTTL: weatherTTL,
		soilTTL:    soilTTL,
		coalescer:  newAnalysisCoalescer(coalesceTimeout),
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// coordKey renders coordinates at the provider grid resolution.
func coordKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

// Analyze builds the complete analysis for loc. Concurrent calls for the same
// coordinates share one upstream aggregation.
func (a *Analyzer) Analyze(ctx context.Context, loc models.Location) (models.AnalysisResult, error) {
	return a.coalescer.GetOrDo(ctx, coordKey(loc.Latitude, loc.Longitude), func() (models.AnalysisResult, error) {
		return a.analyze(ctx, loc)
	})
}

func (a *Analyzer) analyze(ctx context.Context, loc models.Location) (models.AnalysisResult, error) {
	start := time.Now()
	logger := loggerFromContext(ctx)

	weather, err := a.fetchWeather(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("fetch weather: %w", err)
	}

	soil, err := a.fetchSoil(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("fetch soil: %w", err)
	}

	result := models.AnalysisResult{
		Location:    loc,
		Weather:     weather,
		Soil:        deriveSoil(soil),
		Risks:       assessRisks(weather, soil),
		Region:      regionFromAddress(loc.Address),
		GeneratedAt: time.Now().UTC(),
	}

	if logger != nil {
		logger.Debug("analysis built",
			zap.String("coordinates", coordKey(loc.Latitude, loc.Longitude)),
			zap.Duration("duration", time.Since(start)))
	}
	return result, nil
}

// fetchWeather is cache-aside over the weather provider.
func (a *Analyzer) fetchWeather(ctx context.Context, lat, lon float64) (models.WeatherSnapshot, error) {
	key := "weather:" + coordKey(lat, lon)

	var cached models.WeatherSnapshot
	if a.cachedJSON(ctx, key, "weather", &cached) {
		return cached, nil
	}

	snapshot, err := a.weather.GetForecast(ctx, lat, lon)
	if err != nil {
		return models.WeatherSnapshot{}, err
	}
	a.storeJSON(ctx, key, snapshot, a.weatherTTL)
	return snapshot, nil
}

// fetchSoil is cache-aside over the soil provider. Soil properties change on
// geological timescales; the long TTL only bounds staleness of provider fixes.
func (a *Analyzer) fetchSoil(ctx context.Context, lat, lon float64) (models.SoilData, error) {
	key := "soil:" + coordKey(lat, lon)

	var cached models.SoilData
	if a.cachedJSON(ctx, key, "soil", &cached) {
		return cached, nil
	}

	data, err := a.soil.GetProperties(ctx, lat, lon)
	if err != nil {
		return models.SoilData{}, err
	}
	a.storeJSON(ctx, key, data, a.soilTTL)
	return data, nil
}

func (a *Analyzer) cachedJSON(ctx context.Context, key, kind string, out interface{}) bool {
	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false
	}
	observability.CacheHitsTotal.WithLabelValues(kind).Inc()
	return true
}

func (a *Analyzer) storeJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, key, raw, ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
	}
}

// regionFromAddress takes the leading segment of the display address, which
// the geocoders place the most specific name in.
func regionFromAddress(address string) string {
	if i := strings.Index(address, ","); i >= 0 {
		return strings.TrimSpace(address[:i])
	}
	return strings.TrimSpace(address)
}

// deriveSoil computes the presentation characteristics from the raw profile.
func deriveSoil(d models.SoilData) models.SoilCharacteristics {
	return models.SoilCharacteristics{
		Composition: models.SoilComposition{
			ClayPct: d.ClayPct,
			SandPct: d.SandPct,
			SiltPct: d.SiltPct,
			Texture: textureClass(d.ClayPct, d.SandPct, d.SiltPct),
		},
		Physical: models.SoilPhysical{
			BulkDensity: d.BulkDensity,
			PorosityPct: porosityPct(d.BulkDensity),
		},
		Chemical: models.SoilChemical{
			PH:       d.PH,
			Reaction: reactionLabel(d.PH),
			CEC:      d.CEC,
		},
		Water: models.SoilWater{
			FieldCapacityPct:  d.FieldCapacityPct,
			WiltingPointPct:   d.WiltingPointPct,
			AvailableWaterPct: d.FieldCapacityPct - d.WiltingPointPct,
		},
		Fertility: models.SoilFertility{
			OrganicCarbon: d.OrganicCarbon,
			Nitrogen:      d.Nitrogen,
			Rating:        fertilityRating(d.OrganicCarbon, d.Nitrogen),
		},
	}
}

// textureClass is a coarse texture triangle lookup; enough granularity for
// advisory prose, not a full USDA classification.
func textureClass(clay, sand, silt float64) string {
	switch {
	case clay >= 40:
		return "clay"
	case sand >= 65:
		return "sandy"
	case silt >= 60:
		return "silty"
	case clay >= 27:
		return "clay loam"
	default:
		return "loam"
	}
}

// porosityPct assumes the standard 2.65 kg/dm³ mineral particle density.
func porosityPct(bulkDensity float64) float64 {
	if bulkDensity <= 0 {
		return 0
	}
	return (1 - bulkDensity/2.65) * 100
}

func reactionLabel(ph float64) string {
	switch {
	case ph < 6.5:
		return "acidic"
	case ph > 7.5:
		return "alkaline"
	default:
		return "neutral"
	}
}

// fertilityRating grades on topsoil organic carbon and total nitrogen (g/kg).
func fertilityRating(organicCarbon, nitrogen float64) string {
	switch {
	case organicCarbon >= 15 || nitrogen >= 2:
		return "high"
	case organicCarbon >= 7.5 || nitrogen >= 1:
		return "moderate"
	default:
		return "low"
	}
}

// Agronomic stress thresholds applied over current conditions, the 7-day
// forecast, and the soil water profile.
const (
	extremeHeatC       = 40.0
	coldStressC        = 5.0
	excessPrecipMM     = 150.0
	deficientPrecipMM  = 5.0
	excessFieldCapPct  = 45.0
	deficitFieldCapPct = 15.0
	highWindKmh        = 40.0
	acidicPH           = 5.5
	alkalinePH         = 8.0
)

func assessRisks(w models.WeatherSnapshot, s models.SoilData) models.EnvironmentalRisks {
	maxTemp := w.Current.Temperature
	minTemp := w.Current.Temperature
	var totalPrecip float64
	for _, day := range w.Forecast {
		if day.TempMax > maxTemp {
			maxTemp = day.TempMax
		}
		if day.TempMin < minTemp {
			minTemp = day.TempMin
		}
		totalPrecip += day.PrecipitationSum
	}

	return models.EnvironmentalRisks{
		ExtremeHeat:       maxTemp >= extremeHeatC,
		ColdStress:        minTemp <= coldStressC,
		ExcessMoisture:    totalPrecip >= excessPrecipMM || s.FieldCapacityPct >= excessFieldCapPct,
		DeficientMoisture: totalPrecip <= deficientPrecipMM && s.FieldCapacityPct <= deficitFieldCapPct,
		HighWind:          w.Current.WindSpeed >= highWindKmh,
		AcidicSoil:        s.PH < acidicPH,
		AlkalineSoil:      s.PH > alkalinePH,
	}
}
