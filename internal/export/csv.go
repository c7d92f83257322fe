package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/agrisense/crop-advisory-service/internal/models"
)

const timestampLayout = "2006-01-02 15:04:05"

// WritePredictions renders the prediction table as CSV. When any row is
// undetermined an extra Error column is emitted so failed rows stay visible
// in the download instead of silently vanishing.
func WritePredictions(w io.Writer, predictions []models.CropPrediction) error {
	cw := csv.NewWriter(w)

	withErrors := false
	for _, p := range predictions {
		if !p.Determined() {
			withErrors = true
			break
		}
	}

	header := []string{"Crop", "Acres", "Yield (kg/acre)", "Expected Yield (kg)", "Price (Rs/kg)", "Total Income (Rs)"}
	if withErrors {
		header = append(header, "Error")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, p := range predictions {
		row := []string{
			p.Crop,
			formatFloat(p.Acres),
			formatFloat(p.YieldPerAcre),
			formatFloat(p.ExpectedYield),
			formatFloat(p.PricePerKg),
			formatFloat(p.TotalIncome),
		}
		if !p.Determined() {
			row[2], row[3], row[4], row[5] = "", "", "", ""
		}
		if withErrors {
			row = append(row, p.Err)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteExpenses renders the expense ledger as CSV in insertion order.
func WriteExpenses(w io.Writer, records []models.ExpenseRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Category", "Description", "Amount (Rs)", "Date"}); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Category,
			r.Description,
			formatFloat(r.Amount),
			r.RecordedAt.Format(timestampLayout),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
