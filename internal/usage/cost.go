package usage

import (
	"time"

	"github.com/jgoulah/amberbalance/pkg/models"
)

// Default fixed charges
const (
	DefaultSurchargeCents = 104.5
	DefaultSubscription   = 19.0
)

// CostModel amortizes fixed charges across the days of a month
type CostModel struct {
	SurchargeCentsPerDay float64 // Flat daily network surcharge, in cents
	SubscriptionPerMonth float64 // Monthly membership fee, in dollars
}

// DaysInMonth returns the number of days in date's calendar month
func DaysInMonth(date time.Time) int {
	return time.Date(date.Year(), date.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PriceDay attaches the day's share of fixed charges and its position
func (m CostModel) PriceDay(day DayUsage, date time.Time) models.DaySummary {
	surcharge := m.SurchargeCentsPerDay / 100.0
	subscription := m.SubscriptionPerMonth / float64(DaysInMonth(date))

	return models.DaySummary{
		Date:           date.Format(models.DateLayout),
		ImportKWh:      day.ImportKWh,
		ExportKWh:      day.ExportKWh,
		ImportCost:     day.ImportCost,
		ExportEarnings: day.ExportEarnings,
		TotalCost:      day.TotalCost,
		Surcharge:      surcharge,
		Subscription:   subscription,
		Position:       day.TotalCost + surcharge + subscription,
	}
}

// PriceMonth sums days field by field. Order does not matter.
func PriceMonth(days []models.DaySummary) models.MonthlyTotals {
	var totals models.MonthlyTotals
	for _, d := range days {
		totals.Add(d)
	}
	return totals
}
