package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/amberbalance/pkg/models"
)

type fetchCall struct {
	start, end string
}

// fakeSource serves one import interval per day, priced costCents
type fakeSource struct {
	calls     []fetchCall
	costCents float64
	skipFrom  string // days on or after this have no data yet
	err       error
}

func (f *fakeSource) fetch(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
	f.calls = append(f.calls, fetchCall{start.Format(models.DateLayout), end.Format(models.DateLayout)})
	if f.err != nil {
		return nil, f.err
	}
	var records []models.UsageRecord
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if f.skipFrom != "" && d.Format(models.DateLayout) >= f.skipFrom {
			continue
		}
		records = append(records, models.UsageRecord{Date: d, Cost: f.costCents, KWh: 1, Channel: "general"})
	}
	return records, nil
}

func newTestCache() *Cache {
	return NewCache(CostModel{SurchargeCentsPerDay: 104.5, SubscriptionPerMonth: 19.0})
}

func TestCache_EndToEndDay(t *testing.T) {
	cache := newTestCache()
	fetch := func(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
		return []models.UsageRecord{
			{Date: day("2024-03-01"), Cost: 250, KWh: 1.0, Channel: "general"},
			{Date: day("2024-03-01"), Cost: -50, KWh: -0.5, Channel: "feedIn"},
		}, nil
	}

	res, err := cache.Refresh(context.Background(), day("2024-03-02"), fetch)
	require.NoError(t, err)
	require.Len(t, res.Daily, 1)

	d := res.Daily[0]
	assert.Equal(t, "2024-03-01", d.Date)
	assert.InDelta(t, 2.50, d.ImportCost, tolerance)
	assert.InDelta(t, -0.50, d.ExportEarnings, tolerance)
	assert.InDelta(t, 2.00, d.TotalCost, tolerance)
	assert.InDelta(t, 1.045, d.Surcharge, tolerance)
	assert.InDelta(t, 19.0/31, d.Subscription, tolerance)
	assert.InDelta(t, 3.6579, d.Position, 1e-4)
	assert.InDelta(t, 0.5, d.ExportKWh, tolerance)
	assert.InDelta(t, d.Position, res.Totals.Position, tolerance)
}

func TestCache_FirstOfMonthSkipsFetch(t *testing.T) {
	cache := newTestCache()
	src := &fakeSource{costCents: 100}

	res, err := cache.Refresh(context.Background(), day("2024-04-01"), src.fetch)
	require.NoError(t, err)

	assert.Empty(t, src.calls)
	assert.Empty(t, res.Daily)
	assert.Equal(t, models.MonthlyTotals{}, res.Totals)
	assert.Equal(t, "2024-04-01", res.Start.Format(models.DateLayout))
	assert.Equal(t, "2024-03-31", res.End.Format(models.DateLayout))

	year, month, ok := cache.Month()
	require.True(t, ok)
	assert.Equal(t, 2024, year)
	assert.Equal(t, time.April, month)
}

func TestCache_InitialRefreshFetchesWholeMonth(t *testing.T) {
	cache := newTestCache()
	src := &fakeSource{costCents: 100}

	res, err := cache.Refresh(context.Background(), day("2024-03-11"), src.fetch)
	require.NoError(t, err)

	assert.Equal(t, []fetchCall{{"2024-03-01", "2024-03-10"}}, src.calls)
	require.Len(t, res.Daily, 10)
	assert.Equal(t, "2024-03-01", res.Daily[0].Date)
	assert.Equal(t, "2024-03-10", res.Daily[9].Date)
	assert.InDelta(t, 10.0, res.Totals.ImportCost, tolerance)
}

func TestCache_MinimalWindow(t *testing.T) {
	cache := newTestCache()
	src := &fakeSource{costCents: 100}

	_, err := cache.Refresh(context.Background(), day("2024-03-06"), src.fetch)
	require.NoError(t, err)
	require.Equal(t, 5, cache.Len())

	// d_k = 03-05, today = d_{k+1}+1 = 03-07
	res, err := cache.Refresh(context.Background(), day("2024-03-07"), src.fetch)
	require.NoError(t, err)

	require.Len(t, src.calls, 2)
	assert.Equal(t, fetchCall{"2024-03-05", "2024-03-06"}, src.calls[1])
	assert.Len(t, res.Daily, 6)
}

func TestCache_SameDayRefetchesLastCachedDay(t *testing.T) {
	cache := newTestCache()
	src := &fakeSource{costCents: 100}

	_, err := cache.Refresh(context.Background(), day("2024-03-06"), src.fetch)
	require.NoError(t, err)

	// Late correction for the most recent day replaces it wholesale
	src.costCents = 300
	res, err := cache.Refresh(context.Background(), day("2024-03-06"), src.fetch)
	require.NoError(t, err)

	require.Len(t, src.calls, 2)
	assert.Equal(t, fetchCall{"2024-03-05", "2024-03-05"}, src.calls[1])
	require.Len(t, res.Daily, 5)
	assert.InDelta(t, 1.0, res.Daily[3].ImportCost, tolerance)
	assert.InDelta(t, 3.0, res.Daily[4].ImportCost, tolerance)
	assert.InDelta(t, 7.0, res.Totals.ImportCost, tolerance)
}

func TestCache_RangeEndTrailsWhenDataLags(t *testing.T) {
	cache := newTestCache()
	src := &fakeSource{costCents: 100, skipFrom: "2024-03-09"}

	res, err := cache.Refresh(context.Background(), day("2024-03-11"), src.fetch)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-08", res.End.Format(models.DateLayout))
	assert.Len(t, res.Daily, 8)

	// Next refresh re-verifies from the last day that actually had data
	src.skipFrom = ""
	res, err = cache.Refresh(context.Background(), day("2024-03-11"), src.fetch)
	require.NoError(t, err)
	assert.Equal(t, fetchCall{"2024-03-08", "2024-03-10"}, src.calls[1])
	assert.Equal(t, "2024-03-10", res.End.Format(models.DateLayout))
}

func TestCache_MonthRollover(t *testing.T) {
	cache := newTestCache()
	src := &fakeSource{costCents: 100}

	_, err := cache.Refresh(context.Background(), day("2024-03-31"), src.fetch)
	require.NoError(t, err)
	require.Equal(t, 30, cache.Len())

	// Source still answers with March data even though April is requested
	stale := func(ctx context.Context, start, end time.Time) ([]models.UsageRecord, error) {
		src.calls = append(src.calls, fetchCall{start.Format(models.DateLayout), end.Format(models.DateLayout)})
		return []models.UsageRecord{
			{Date: day("2024-03-30"), Cost: 100, KWh: 1, Channel: "general"},
			{Date: day("2024-04-01"), Cost: 200, KWh: 1, Channel: "general"},
		}, nil
	}
	res, err := cache.Refresh(context.Background(), day("2024-04-02"), stale)
	require.NoError(t, err)

	assert.Equal(t, fetchCall{"2024-04-01", "2024-04-01"}, src.calls[len(src.calls)-1])
	require.Len(t, res.Daily, 1)
	assert.Equal(t, "2024-04-01", res.Daily[0].Date)
	assert.InDelta(t, 19.0/30, res.Daily[0].Subscription, tolerance)

	_, month, _ := cache.Month()
	assert.Equal(t, time.April, month)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_RolloverOnFirstDayClearsCache(t *testing.T) {
	cache := newTestCache()
	src := &fakeSource{costCents: 100}

	_, err := cache.Refresh(context.Background(), day("2024-03-20"), src.fetch)
	require.NoError(t, err)
	require.NotZero(t, cache.Len())

	res, err := cache.Refresh(context.Background(), day("2024-04-01"), src.fetch)
	require.NoError(t, err)
	assert.Zero(t, cache.Len())
	assert.Empty(t, res.Daily)
	assert.Len(t, src.calls, 1)
}

func TestCache_FetchFailureLeavesStateUnchanged(t *testing.T) {
	cache := newTestCache()
	src := &fakeSource{costCents: 100}

	_, err := cache.Refresh(context.Background(), day("2024-03-20"), src.fetch)
	require.NoError(t, err)
	before := cache.Days()
	_, beforeMonth, _ := cache.Month()

	cause := errors.New("GET /usage -> 503")
	src.err = cause

	for _, today := range []string{"2024-03-21", "2024-04-05"} {
		_, err = cache.Refresh(context.Background(), day(today), src.fetch)
		require.Error(t, err)

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.ErrorIs(t, err, cause)

		assert.Equal(t, before, cache.Days())
		_, month, _ := cache.Month()
		assert.Equal(t, beforeMonth, month)
	}

	// The next good refresh retries cleanly
	src.err = nil
	res, err := cache.Refresh(context.Background(), day("2024-03-22"), src.fetch)
	require.NoError(t, err)
	assert.Equal(t, fetchCall{"2024-03-19", "2024-03-21"}, src.calls[len(src.calls)-1])
	assert.Len(t, res.Daily, 21)
}
