package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/agrisense/crop-advisory-service/internal/llm"
	"github.com/agrisense/crop-advisory-service/internal/models"
)

// CropAdvisor turns a completed location analysis into a free-text crop
// recommendation from the local model.
type CropAdvisor struct {
	model llm.Client
}

func NewCropAdvisor(model llm.Client) *CropAdvisor {
	return &CropAdvisor{model: model}
}

// Recommend builds the advisory prompt from the soil and weather numbers and
// returns the model's text verbatim.
func (a *CropAdvisor) Recommend(ctx context.Context, result models.AnalysisResult) (string, error) {
	return a.model.Complete(ctx, "recommend", buildRecommendationPrompt(result), llm.Params{
		MaxTokens:     400,
		Temperature:   0.7,
		TopP:          0.9,
		RepeatPenalty: 1.2,
		Stop:          []string{"[INST]", "</s>"},
	})
}

func buildRecommendationPrompt(r models.AnalysisResult) string {
	var b strings.Builder

	b.WriteString("<s>[INST] You are an agricultural advisor for Indian farmers. Based on the following field conditions, recommend the most suitable crops and explain briefly why.\n\n")

	fmt.Fprintf(&b, "Region: %s\n\n", r.Region)

	fmt.Fprintf(&b, "Weather:\n")
	fmt.Fprintf(&b, "- Temperature: %.1f C (%s)\n", r.Weather.Current.Temperature, r.Weather.Current.Conditions)
	fmt.Fprintf(&b, "- Humidity: %d%%\n", r.Weather.Current.Humidity)
	fmt.Fprintf(&b, "- Wind: %.1f km/h\n", r.Weather.Current.WindSpeed)
	fmt.Fprintf(&b, "- 7-day precipitation: %.1f mm\n\n", forecastPrecipitation(r.Weather.Forecast))

	fmt.Fprintf(&b, "Soil:\n")
	fmt.Fprintf(&b, "- Texture: %s (clay %.1f%%, sand %.1f%%, silt %.1f%%)\n",
		r.Soil.Composition.Texture, r.Soil.Composition.ClayPct, r.Soil.Composition.SandPct, r.Soil.Composition.SiltPct)
	fmt.Fprintf(&b, "- pH: %.1f (%s)\n", r.Soil.Chemical.PH, r.Soil.Chemical.Reaction)
	fmt.Fprintf(&b, "- Organic carbon: %.1f g/kg, nitrogen: %.2f g/kg (fertility: %s)\n",
		r.Soil.Fertility.OrganicCarbon, r.Soil.Fertility.Nitrogen, r.Soil.Fertility.Rating)
	fmt.Fprintf(&b, "- Available water capacity: %.1f%%\n", r.Soil.Water.AvailableWaterPct)

	if risks := riskNotes(r.Risks); len(risks) > 0 {
		fmt.Fprintf(&b, "\nRisks: %s\n", strings.Join(risks, ", "))
	}

	b.WriteString("\nRecommend 3-5 crops suited to these conditions, one line each with a short reason. [/INST]")
	return b.String()
}

func forecastPrecipitation(days []models.ForecastDay) float64 {
	var total float64
	for _, d := range days {
		total += d.PrecipitationSum
	}
	return total
}

func riskNotes(r models.EnvironmentalRisks) []string {
	var notes []string
	if r.ExtremeHeat {
		notes = append(notes, "extreme heat")
	}
	if r.ColdStress {
		notes = append(notes, "cold stress")
	}
	if r.ExcessMoisture {
		notes = append(notes, "excess moisture")
	}
	if r.DeficientMoisture {
		notes = append(notes, "deficient moisture")
	}
	if r.HighWind {
		notes = append(notes, "high wind")
	}
	if r.AcidicSoil {
		notes = append(notes, "acidic soil")
	}
	if r.AlkalineSoil {
		notes = append(notes, "alkaline soil")
	}
	return notes
}
