package usage

import (
	"context"
	"sort"
	"time"

	"github.com/jgoulah/amberbalance/pkg/models"
)

// FetchFunc returns raw usage records for the inclusive date range [start, end]
type FetchFunc func(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error)

// Result is the outcome of a successful refresh
type Result struct {
	Start  time.Time // First day of the billing month
	End    time.Time // Last reported day, may trail yesterday when data lags
	Daily  []models.DaySummary
	Totals models.MonthlyTotals
}

type monthKey struct {
	year  int
	month time.Month
}

// Cache keeps priced day summaries for the current billing month and
// refreshes them incrementally. It is not safe for concurrent use; callers
// serialize Refresh.
type Cache struct {
	model  CostModel
	anchor *monthKey
	days   map[string]models.DaySummary
}

// NewCache creates an empty cache pricing days with model
func NewCache(model CostModel) *Cache {
	return &Cache{
		model: model,
		days:  make(map[string]models.DaySummary),
	}
}

// Refresh brings the cache up to date for the billing window ending the day
// before today. today must be a calendar date in the metering zone.
//
// Only the days not yet cached are fetched, plus the most recent cached day
// again to pick up late or revised intervals. On fetch failure the cache is
// left exactly as it was.
func (c *Cache) Refresh(ctx context.Context, today time.Time, fetch FetchFunc) (Result, error) {
	today = models.CivilDate(today)
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := today.AddDate(0, 0, -1)

	// Work on a staged view so a failed fetch cannot leave a half-rolled cache
	anchor := monthKey{year: start.Year(), month: start.Month()}
	days := c.days
	if c.anchor == nil || *c.anchor != anchor {
		days = make(map[string]models.DaySummary)
	}

	if start.After(end) {
		c.commit(anchor, days)
		return Result{Start: start, End: end}, nil
	}

	fetchStart, fetchEnd := fetchWindow(days, start, end)
	records, err := fetch(ctx, fetchStart, fetchEnd)
	if err != nil {
		return Result{}, &FetchError{Start: fetchStart, End: fetchEnd, Err: err}
	}

	priced := c.price(records, anchor)
	c.commit(anchor, days)
	for key, summary := range priced {
		c.days[key] = summary
	}

	return c.result(start, end), nil
}

// fetchWindow picks the smallest range that covers new days and re-verifies
// the last cached one
func fetchWindow(days map[string]models.DaySummary, start, end time.Time) (time.Time, time.Time) {
	if len(days) == 0 {
		return start, end
	}

	var lastKey string
	for key := range days {
		if key > lastKey {
			lastKey = key
		}
	}
	last, err := models.ParseDate(lastKey)
	if err != nil {
		return start, end
	}

	if end.After(last) {
		if last.Before(start) {
			return start, end
		}
		return last, end
	}
	return last, last
}

// price aggregates records into summaries, dropping days outside the anchored month
func (c *Cache) price(records []models.UsageRecord, anchor monthKey) map[string]models.DaySummary {
	priced := make(map[string]models.DaySummary)
	for key, day := range Aggregate(records) {
		date, err := models.ParseDate(key)
		if err != nil {
			continue
		}
		if date.Year() != anchor.year || date.Month() != anchor.month {
			continue
		}
		priced[key] = c.model.PriceDay(day, date)
	}
	return priced
}

func (c *Cache) commit(anchor monthKey, days map[string]models.DaySummary) {
	c.anchor = &anchor
	c.days = days
}

func (c *Cache) result(start, end time.Time) Result {
	startKey := start.Format(models.DateLayout)
	endKey := end.Format(models.DateLayout)

	keys := make([]string, 0, len(c.days))
	for key := range c.days {
		if key >= startKey && key <= endKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	daily := make([]models.DaySummary, 0, len(keys))
	for _, key := range keys {
		daily = append(daily, c.days[key])
	}

	rangeEnd := end
	if len(daily) > 0 {
		if last, err := models.ParseDate(daily[len(daily)-1].Date); err == nil {
			rangeEnd = last
		}
	}

	return Result{
		Start:  start,
		End:    rangeEnd,
		Daily:  daily,
		Totals: PriceMonth(daily),
	}
}

// Month returns the anchored billing month, or false while the cache is empty
func (c *Cache) Month() (int, time.Month, bool) {
	if c.anchor == nil {
		return 0, 0, false
	}
	return c.anchor.year, c.anchor.month, true
}

// Len returns the number of cached days
func (c *Cache) Len() int {
	return len(c.days)
}

// Days returns a copy of the cached summaries in date order
func (c *Cache) Days() []models.DaySummary {
	keys := make([]string, 0, len(c.days))
	for key := range c.days {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]models.DaySummary, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.days[key])
	}
	return out
}
