package models

import "time"

// DateLayout is the ISO calendar date format used for day keys
const DateLayout = "2006-01-02"

// ChannelFeedIn marks energy exported to the grid
const ChannelFeedIn = "feedIn"

// UsageRecord represents a single interval reading from the metering API
type UsageRecord struct {
	Date    time.Time `json:"date"`    // Calendar date, midnight UTC
	Cost    float64   `json:"cost"`    // Cents, negative for credits
	KWh     float64   `json:"kwh"`     // Export may be reported negative
	Channel string    `json:"channel"` // "feedIn" or anything else (import)
}

// IsExport reports whether the record is a feed-in (export) interval
func (r UsageRecord) IsExport() bool {
	return r.Channel == ChannelFeedIn
}

// DaySummary holds one day's priced usage, all money in dollars
type DaySummary struct {
	Date           string  `json:"date"`
	ImportKWh      float64 `json:"import_kwh"`
	ExportKWh      float64 `json:"export_kwh"`
	ImportCost     float64 `json:"import_cost"`
	ExportEarnings float64 `json:"export_earnings"`
	TotalCost      float64 `json:"total_cost"`
	Surcharge      float64 `json:"surcharge"`
	Subscription   float64 `json:"subscription"`
	Position       float64 `json:"position"`
}

// MonthlyTotals is the field-wise sum of a run of DaySummary values
type MonthlyTotals struct {
	ImportKWh      float64 `json:"import_kwh"`
	ExportKWh      float64 `json:"export_kwh"`
	ImportCost     float64 `json:"import_cost"`
	ExportEarnings float64 `json:"export_earnings"`
	TotalCost      float64 `json:"total_cost"`
	Surcharge      float64 `json:"surcharge"`
	Subscription   float64 `json:"subscription"`
	Position       float64 `json:"position"`
}

// Add accumulates a day into the totals
func (t *MonthlyTotals) Add(d DaySummary) {
	t.ImportKWh += d.ImportKWh
	t.ExportKWh += d.ExportKWh
	t.ImportCost += d.ImportCost
	t.ExportEarnings += d.ExportEarnings
	t.TotalCost += d.TotalCost
	t.Surcharge += d.Surcharge
	t.Subscription += d.Subscription
	t.Position += d.Position
}

// Report is the display-ready month-to-date position for one site
type Report struct {
	SiteID     string        `json:"site_id"`
	RangeStart string        `json:"range_start"`
	RangeEnd   string        `json:"range_end"`
	Totals     MonthlyTotals `json:"totals"` // Rounded to 2 decimal places
	Daily      []DaySummary  `json:"daily"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Position is the report's headline value
func (r Report) Position() float64 {
	return r.Totals.Position
}

// CivilDate truncates t to its calendar date as seen in t's own location,
// returned as midnight UTC so date arithmetic ignores DST
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO calendar date into midnight UTC
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
