package models

import "time"

// CurrentWeather holds current conditions at a location (metric units).
type CurrentWeather struct {
	Temperature   float64   `json:"temperature"`   // °C
	Humidity      int       `json:"humidity"`      // %
	Precipitation float64   `json:"precipitation"` // mm
	WindSpeed     float64   `json:"windSpeed"`     // km/h
	Conditions    string    `json:"conditions"`
	ObservedAt    time.Time `json:"observedAt"`
}

// ForecastDay is one day of the daily forecast.
type ForecastDay struct {
	Date             string  `json:"date"` // YYYY-MM-DD, provider-local
	TempMax          float64 `json:"tempMax"`
	TempMin          float64 `json:"tempMin"`
	PrecipitationSum float64 `json:"precipitationSum"` // mm
}

// WeatherSnapshot combines current conditions with the daily forecast.
type WeatherSnapshot struct {
	Current  CurrentWeather `json:"current"`
	Forecast []ForecastDay  `json:"forecast"`
}

// SoilData is the raw per-coordinate soil profile as returned by the soil
// provider, after unit scaling. Topsoil layer (0-5cm) values.
type SoilData struct {
	ClayPct          float64 `json:"clayPct"`
	SandPct          float64 `json:"sandPct"`
	SiltPct          float64 `json:"siltPct"`
	PH               float64 `json:"ph"`
	OrganicCarbon    float64 `json:"organicCarbon"` // g/kg
	Nitrogen         float64 `json:"nitrogen"`      // g/kg
	CEC              float64 `json:"cec"`           // cmol(c)/kg
	BulkDensity      float64 `json:"bulkDensity"`   // kg/dm³
	FieldCapacityPct float64 `json:"fieldCapacityPct"` // vol% at 33 kPa
	WiltingPointPct  float64 `json:"wiltingPointPct"`  // vol% at 1500 kPa
}

// SoilComposition describes the mineral fraction split and derived texture class.
type SoilComposition struct {
	ClayPct float64 `json:"clayPct"`
	SandPct float64 `json:"sandPct"`
	SiltPct float64 `json:"siltPct"`
	Texture string  `json:"texture"`
}

// SoilPhysical holds physical soil properties.
type SoilPhysical struct {
	BulkDensity float64 `json:"bulkDensity"` // kg/dm³
	PorosityPct float64 `json:"porosityPct"`
}

// SoilChemical holds chemical soil properties.
type SoilChemical struct {
	PH       float64 `json:"ph"`
	Reaction string  `json:"reaction"` // acidic, neutral, alkaline
	CEC      float64 `json:"cec"`      // cmol(c)/kg
}

// SoilWater holds water retention characteristics.
type SoilWater struct {
	FieldCapacityPct  float64 `json:"fieldCapacityPct"`
	WiltingPointPct   float64 `json:"wiltingPointPct"`
	AvailableWaterPct float64 `json:"availableWaterPct"`
}

// SoilFertility holds fertility indicators.
type SoilFertility struct {
	OrganicCarbon float64 `json:"organicCarbon"` // g/kg
	Nitrogen      float64 `json:"nitrogen"`      // g/kg
	Rating        string  `json:"rating"`        // low, moderate, high
}

// SoilCharacteristics groups the derived soil sub-sections.
type SoilCharacteristics struct {
	Composition SoilComposition `json:"composition"`
	Physical    SoilPhysical    `json:"physical"`
	Chemical    SoilChemical    `json:"chemical"`
	Water       SoilWater       `json:"water"`
	Fertility   SoilFertility   `json:"fertility"`
}

// EnvironmentalRisks are threshold-derived flags over the raw weather/soil values.
type EnvironmentalRisks struct {
	ExtremeHeat       bool `json:"extremeHeat"`
	ColdStress        bool `json:"coldStress"`
	ExcessMoisture    bool `json:"excessMoisture"`
	DeficientMoisture bool `json:"deficientMoisture"`
	HighWind          bool `json:"highWind"`
	AcidicSoil        bool `json:"acidicSoil"`
	AlkalineSoil      bool `json:"alkalineSoil"`
}

// AnalysisResult is the fully populated aggregation for one resolved location.
// Built once per location and read-only afterward; downstream consumers assume
// every section is present.
type AnalysisResult struct {
	Location    Location            `json:"location"`
	Weather     WeatherSnapshot     `json:"weather"`
	Soil        SoilCharacteristics `json:"soil"`
	Risks       EnvironmentalRisks  `json:"risks"`
	Region      string              `json:"region"`
	GeneratedAt time.Time           `json:"generatedAt"`
}
