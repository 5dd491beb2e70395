package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"nutrilog"
)

var csvHeader = []string{
	"date", "name", "quantity", "unit",
	"energyKcal", "proteinG", "fatG", "carbsG", "fiberG",
	"source", "barcode",
}

// WriteCSV writes one row per entry. Unknown nutrient values are empty cells.
func WriteCSV(w io.Writer, entries []nutrilog.LoggedFoodEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.Date.Format(time.DateOnly),
			e.Name,
			formatFloat(&e.Quantity),
			string(e.Unit),
			formatFloat(e.EnergyKcal),
			formatFloat(e.ProteinG),
			formatFloat(e.FatG),
			formatFloat(e.CarbsG),
			formatFloat(e.FiberG),
			string(e.Source),
			e.Barcode,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFileName names an export covering [from, to].
func ExportFileName(from, to time.Time) string {
	return fmt.Sprintf("nutrition_export_%s_%s.csv", from.Format(time.DateOnly), to.Format(time.DateOnly))
}

// Export writes the entries of the days days ending on end as CSV and returns
// the file name to store it under.
func (e *Engine) Export(ctx context.Context, w io.Writer, end time.Time, days int) (string, int, error) {
	if days <= 0 {
		return "", 0, &nutrilog.ValidationError{Field: "days", Reason: "must be greater than zero"}
	}
	end = nutrilog.Day(end, time.UTC)
	from := end.AddDate(0, 0, -(days - 1))

	entries, err := e.entries.EntriesBetween(ctx, from, end)
	if err != nil {
		return "", 0, fmt.Errorf("export entries: %w", err)
	}
	if err := WriteCSV(w, entries); err != nil {
		return "", 0, err
	}
	return ExportFileName(from, end), len(entries), nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
