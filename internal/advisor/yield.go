package advisor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agrisense/crop-advisory-service/internal/llm"
	"github.com/agrisense/crop-advisory-service/internal/models"
)

// acresPerHectare converts the official per-hectare yield figures to per-acre.
const acresPerHectare = 2.47105

// staticYieldsPerHectare holds official all-India average yields in kg/hectare
// (sugarcane and potato are bulk crops, hence the large figures).
var staticYieldsPerHectare = map[string]float64{
	"rice":                 2873,
	"wheat":                3615,
	"jowar":                1175,
	"bajra":                1449,
	"maize":                3321,
	"tur":                  831,
	"gram":                 1224,
	"groundnut":            2179,
	"rapeseed and mustard": 1443,
	"sugarcane":            79000,
	"cotton":               436,
	"jute":                 2795,
	"mesta":                2056,
	"potato":               24000,
	"tea":                  2042,
	"coffee":               780,
	"rubber":               973,
}

var priceLine = regexp.MustCompile(`Price:\s*(\d+(?:\.\d+)?)`)

// YieldAdvisor estimates per-crop yield and income. Known crops take their
// yield from the static table and ask the model only for a price; unknown
// crops get both numbers from one combined model call.
type YieldAdvisor struct {
	model         llm.Client
	yieldsPerAcre map[string]float64
}

func NewYieldAdvisor(model llm.Client) *YieldAdvisor {
	yields := make(map[string]float64, len(staticYieldsPerHectare))
	for crop, perHectare := range staticYieldsPerHectare {
		yields[crop] = perHectare / acresPerHectare
	}
	return &YieldAdvisor{
		model:         model,
		yieldsPerAcre: yields,
	}
}

// Predict returns the prediction for one crop row, or nil for an empty crop
// name (blank rows are skipped, not errors). Model trouble yields a
// prediction carrying only an error string; numbers and error never mix.
func (a *YieldAdvisor) Predict(ctx context.Context, crop string, acres float64) *models.CropPrediction {
	crop = strings.ToLower(strings.TrimSpace(crop))
	if crop == "" {
		return nil
	}

	var yieldPerAcre, pricePerKg float64
	if static, ok := a.yieldsPerAcre[crop]; ok {
		yieldPerAcre = static
		price, err := a.priceFromModel(ctx, crop)
		if err != nil {
			return &models.CropPrediction{
				Crop:  crop,
				Acres: acres,
				Err:   "could not determine price",
			}
		}
		pricePerKg = price
	} else {
		y, price, err := a.yieldAndPriceFromModel(ctx, crop)
		if err != nil {
			return &models.CropPrediction{
				Crop:  crop,
				Acres: acres,
				Err:   "could not determine yield or price",
			}
		}
		yieldPerAcre = y
		pricePerKg = price
	}

	expectedYield := acres * yieldPerAcre
	return &models.CropPrediction{
		Crop:          crop,
		Acres:         acres,
		YieldPerAcre:  yieldPerAcre,
		ExpectedYield: expectedYield,
		PricePerKg:    pricePerKg,
		TotalIncome:   expectedYield * pricePerKg,
	}
}

// priceFromModel asks only for the market price of a known crop.
func (a *YieldAdvisor) priceFromModel(ctx context.Context, crop string) (float64, error) {
	prompt := fmt.Sprintf(`<s>[INST] You are an agricultural market specialist. Provide the current market price per kg for %s in India based on recent trends. Return ONLY the numeric price value in rupees per kg.

For reference, some typical crop prices:
Rice: 20-25 Rs/kg
Wheat: 25-30 Rs/kg
Cotton: 60-70 Rs/kg
Potato: 15-20 Rs/kg

Respond EXACTLY in this format (just the number):
Price: XXX[/INST]`, crop)

	text, err := a.model.Complete(ctx, "price", prompt, llm.Params{
		MaxTokens:     20,
		Temperature:   0.9,
		TopP:          0.1,
		RepeatPenalty: 1.2,
		Stop:          []string{"[INST]", "</s>"},
	})
	if err != nil {
		return 0, err
	}

	m := priceLine.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("no price in model output")
	}
	return strconv.ParseFloat(m[1], 64)
}

// yieldAndPriceFromModel makes the single combined call for an unknown crop.
// A response missing either required line is undetermined as a whole.
func (a *YieldAdvisor) yieldAndPriceFromModel(ctx context.Context, crop string) (float64, float64, error) {
	prompt := fmt.Sprintf(`<s>[INST] You are an agricultural specialist. For the crop %s in India:
1. Provide its yield per acre (in kg/acre)
2. Provide its current market price (in Rs/kg)

For reference:
Typical yields (2023-24):
- Rice: 1162 kg/acre
- Wheat: 1463 kg/acre
- Cotton: 176 kg/acre
- Potato: 9713 kg/acre

Typical prices:
- Rice: 20-25 Rs/kg
- Wheat: 25-30 Rs/kg
- Cotton: 60-70 Rs/kg
- Potato: 15-20 Rs/kg

Respond EXACTLY in this format (just the numbers):
Yield: XXX
Price: XXX[/INST]`, crop)

	text, err := a.model.Complete(ctx, "combined", prompt, llm.Params{
		MaxTokens:     20,
		Temperature:   0.7,
		TopP:          0.9,
		RepeatPenalty: 1.2,
		Stop:          []string{"[INST]", "</s>"},
	})
	if err != nil {
		return 0, 0, err
	}

	yieldVal, priceVal, ok := parseYieldPrice(text)
	if !ok {
		return 0, 0, fmt.Errorf("incomplete model output")
	}
	return yieldVal, priceVal, nil
}

// parseYieldPrice scans the response for exact "Yield:" / "Price:" line
// prefixes. Unrecognized lines are ignored; both labels must parse for the
// result to count.
func parseYieldPrice(text string) (yieldVal, priceVal float64, ok bool) {
	var haveYield, havePrice bool
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Yield:"):
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "Yield:")), 64)
			if err == nil {
				yieldVal = v
				haveYield = true
			}
		case strings.HasPrefix(line, "Price:"):
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "Price:")), 64)
			if err == nil {
				priceVal = v
				havePrice = true
			}
		}
	}
	if !haveYield || !havePrice {
		return 0, 0, false
	}
	return yieldVal, priceVal, true
}

// StaticYieldPerAcre exposes the converted table for known crops.
func (a *YieldAdvisor) StaticYieldPerAcre(crop string) (float64, bool) {
	y, ok := a.yieldsPerAcre[strings.ToLower(strings.TrimSpace(crop))]
	return y, ok
}
