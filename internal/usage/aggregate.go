package usage

import (
	"math"

	"github.com/jgoulah/amberbalance/pkg/models"
)

// DayUsage is the unpriced energy summary for one calendar date, money in dollars
type DayUsage struct {
	ImportKWh      float64
	ExportKWh      float64
	ImportCost     float64
	ExportEarnings float64
	TotalCost      float64
}

// Aggregate groups records by calendar date and sums import and export
// separately. Records without a date are skipped. Dates with no records
// produce no entry.
func Aggregate(records []models.UsageRecord) map[string]DayUsage {
	type acc struct {
		importCents, exportCents float64
		importKWh, exportKWh     float64
	}

	byDate := make(map[string]*acc)
	for _, rec := range records {
		if rec.Date.IsZero() {
			continue
		}
		key := rec.Date.Format(models.DateLayout)
		a, ok := byDate[key]
		if !ok {
			a = &acc{}
			byDate[key] = a
		}
		if rec.IsExport() {
			a.exportCents += rec.Cost
			a.exportKWh += math.Abs(rec.KWh)
		} else {
			a.importCents += rec.Cost
			a.importKWh += rec.KWh
		}
	}

	days := make(map[string]DayUsage, len(byDate))
	for key, a := range byDate {
		// Cents to dollars once per day, not per interval
		importCost := a.importCents / 100.0
		exportEarnings := a.exportCents / 100.0
		days[key] = DayUsage{
			ImportKWh:      a.importKWh,
			ExportKWh:      a.exportKWh,
			ImportCost:     importCost,
			ExportEarnings: exportEarnings,
			TotalCost:      importCost + exportEarnings,
		}
	}
	return days
}
