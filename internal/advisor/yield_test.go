package advisor

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/agrisense/crop-advisory-service/internal/llm"
)

type mockModel struct {
	responses  map[string]string // kind -> content
	err        error
	calls      map[string]int
	lastParams llm.Params
	lastPrompt string
}

func newMockModel() *mockModel {
	return &mockModel{
		responses: make(map[string]string),
		calls:     make(map[string]int),
	}
}

func (m *mockModel) Complete(ctx context.Context, kind, prompt string, p llm.Params) (string, error) {
	m.calls[kind]++
	m.lastParams = p
	m.lastPrompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.responses[kind], nil
}

func TestYieldAdvisor_Predict_KnownCrop(t *testing.T) {
	model := newMockModel()
	model.responses["price"] = "Price: 22"
	a := NewYieldAdvisor(model)

	p := a.Predict(context.Background(), "Rice", 2)
	if p == nil {
		t.Fatal("Predict() = nil for known crop")
	}
	if !p.Determined() {
		t.Fatalf("Predict() undetermined: %q", p.Err)
	}

	wantYield := 2873.0 / 2.47105
	if math.Abs(p.YieldPerAcre-wantYield) > 0.1 {
		t.Errorf("YieldPerAcre = %v, want %v", p.YieldPerAcre, wantYield)
	}
	if math.Abs(p.ExpectedYield-2*wantYield) > 0.2 {
		t.Errorf("ExpectedYield = %v, want %v", p.ExpectedYield, 2*wantYield)
	}
	if p.PricePerKg != 22 {
		t.Errorf("PricePerKg = %v, want 22", p.PricePerKg)
	}
	wantIncome := 2 * wantYield * 22
	if math.Abs(p.TotalIncome-wantIncome)/wantIncome > 0.01 {
		t.Errorf("TotalIncome = %v, want about %v", p.TotalIncome, wantIncome)
	}

	// A known crop never needs the combined call.
	if model.calls["price"] != 1 || model.calls["combined"] != 0 {
		t.Errorf("model calls = %v, want one price call only", model.calls)
	}
}

func TestYieldAdvisor_Predict_KnownCrop_Params(t *testing.T) {
	model := newMockModel()
	model.responses["price"] = "Price: 30"
	a := NewYieldAdvisor(model)

	a.Predict(context.Background(), "wheat", 1)

	p := model.lastParams
	if p.MaxTokens != 20 || p.Temperature != 0.9 || p.TopP != 0.1 || p.RepeatPenalty != 1.2 {
		t.Errorf("price params = %+v, want {20 0.9 0.1 1.2}", p)
	}
	if !strings.Contains(model.lastPrompt, "wheat") {
		t.Errorf("prompt does not mention the crop: %q", model.lastPrompt)
	}
}

func TestYieldAdvisor_Predict_UnknownCrop(t *testing.T) {
	model := newMockModel()
	model.responses["combined"] = "Yield: 850\nPrice: 45"
	a := NewYieldAdvisor(model)

	p := a.Predict(context.Background(), "quinoa", 3)
	if p == nil || !p.Determined() {
		t.Fatalf("Predict() = %+v, want determined prediction", p)
	}
	if p.YieldPerAcre != 850 || p.PricePerKg != 45 {
		t.Errorf("(yield, price) = (%v, %v), want (850, 45)", p.YieldPerAcre, p.PricePerKg)
	}
	if p.ExpectedYield != 2550 {
		t.Errorf("ExpectedYield = %v, want 2550", p.ExpectedYield)
	}
	if p.TotalIncome != 2550*45 {
		t.Errorf("TotalIncome = %v, want %v", p.TotalIncome, 2550*45)
	}

	if model.calls["combined"] != 1 || model.calls["price"] != 0 {
		t.Errorf("model calls = %v, want one combined call only", model.calls)
	}
	if model.lastParams.Temperature != 0.7 || model.lastParams.TopP != 0.9 {
		t.Errorf("combined params = %+v, want temperature 0.7 top_p 0.9", model.lastParams)
	}
}

func TestYieldAdvisor_Predict_EmptyCrop(t *testing.T) {
	model := newMockModel()
	a := NewYieldAdvisor(model)

	if p := a.Predict(context.Background(), "   ", 2); p != nil {
		t.Errorf("Predict() = %+v for blank crop, want nil", p)
	}
	if len(model.calls) != 0 {
		t.Errorf("model calls = %v, want none for blank crop", model.calls)
	}
}

func TestYieldAdvisor_Predict_ModelError(t *testing.T) {
	model := newMockModel()
	model.err = llm.ErrUnavailable
	a := NewYieldAdvisor(model)

	p := a.Predict(context.Background(), "rice", 2)
	if p == nil {
		t.Fatal("Predict() = nil, want error-carrying prediction")
	}
	if p.Determined() {
		t.Fatal("Predict() determined despite model failure")
	}
	if p.YieldPerAcre != 0 || p.PricePerKg != 0 || p.TotalIncome != 0 {
		t.Errorf("error prediction carries numbers: %+v", p)
	}
}

// A combined response missing the price line invalidates the whole row,
// including the yield the model did produce.
func TestYieldAdvisor_Predict_PartialModelOutput(t *testing.T) {
	model := newMockModel()
	model.responses["combined"] = "Yield: 850"
	a := NewYieldAdvisor(model)

	p := a.Predict(context.Background(), "quinoa", 1)
	if p == nil || p.Determined() {
		t.Fatalf("Predict() = %+v, want undetermined prediction", p)
	}
	if p.YieldPerAcre != 0 {
		t.Errorf("YieldPerAcre = %v, want 0 on partial output", p.YieldPerAcre)
	}
}

func TestYieldAdvisor_Predict_GarbagePrice(t *testing.T) {
	model := newMockModel()
	model.responses["price"] = "I cannot provide prices."
	a := NewYieldAdvisor(model)

	p := a.Predict(context.Background(), "rice", 1)
	if p == nil || p.Determined() {
		t.Fatalf("Predict() = %+v, want undetermined prediction", p)
	}
}

func TestParseYieldPrice(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantYield float64
		wantPrice float64
		wantOK    bool
	}{
		{"both lines", "Yield: 850\nPrice: 45", 850, 45, true},
		{"decimal values", "Yield: 850.5\nPrice: 45.25", 850.5, 45.25, true},
		{"chatter around lines", "Sure!\nYield: 900\nPrice: 30\nHope this helps.", 900, 30, true},
		{"leading whitespace", "  Yield: 700\n  Price: 12", 700, 12, true},
		{"missing price", "Yield: 850", 0, 0, false},
		{"missing yield", "Price: 45", 0, 0, false},
		{"unparseable yield", "Yield: lots\nPrice: 45", 0, 0, false},
		{"empty", "", 0, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			y, p, ok := parseYieldPrice(tc.in)
			if ok != tc.wantOK || y != tc.wantYield || p != tc.wantPrice {
				t.Errorf("parseYieldPrice(%q) = (%v, %v, %v), want (%v, %v, %v)",
					tc.in, y, p, ok, tc.wantYield, tc.wantPrice, tc.wantOK)
			}
		})
	}
}

func TestStaticYieldPerAcre(t *testing.T) {
	a := NewYieldAdvisor(newMockModel())

	wheat, ok := a.StaticYieldPerAcre("Wheat")
	if !ok {
		t.Fatal("StaticYieldPerAcre(Wheat) not found")
	}
	if math.Abs(wheat-1463.0) > 1 {
		t.Errorf("wheat yield/acre = %v, want about 1463", wheat)
	}

	if _, ok := a.StaticYieldPerAcre("quinoa"); ok {
		t.Error("StaticYieldPerAcre(quinoa) found, want miss")
	}
}
