package models

import "time"

// CropPrediction is the per-crop yield and income estimate. It carries either
// all of {YieldPerAcre, ExpectedYield, PricePerKg, TotalIncome} or a non-empty
// Err, never a mix.
type CropPrediction struct {
	Crop          string  `json:"crop"`
	Acres         float64 `json:"acres"`
	YieldPerAcre  float64 `json:"yieldPerAcre,omitempty"`  // kg/acre
	ExpectedYield float64 `json:"expectedYield,omitempty"` // kg
	PricePerKg    float64 `json:"pricePerKg,omitempty"`    // Rs/kg
	TotalIncome   float64 `json:"totalIncome,omitempty"`   // Rs
	Err           string  `json:"error,omitempty"`
}

// Determined reports whether the prediction carries usable numbers.
func (p CropPrediction) Determined() bool {
	return p.Err == ""
}

// ExpenseRecord is one expense row. Amount is always positive; rows that fail
// validation are dropped before they reach the ledger.
type ExpenseRecord struct {
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// ProfitSummary aggregates the expense ledger against a revenue figure.
type ProfitSummary struct {
	Revenue         float64            `json:"revenue"`
	TotalExpenses   float64            `json:"totalExpenses"`
	Profit          float64            `json:"profit"`
	ProfitMarginPct float64            `json:"profitMarginPct"`
	ByCategory      map[string]float64 `json:"byCategory"`
}
