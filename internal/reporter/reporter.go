package reporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/jgoulah/amberbalance/internal/clock"
	"github.com/jgoulah/amberbalance/internal/logging"
	"github.com/jgoulah/amberbalance/internal/usage"
	"github.com/jgoulah/amberbalance/pkg/models"
)

var tracer = otel.Tracer("github.com/jgoulah/amberbalance/internal/reporter")

// Listener receives every successfully refreshed report
type Listener interface {
	OnReport(ctx context.Context, report models.Report) error
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, report models.Report) error

func (f ListenerFunc) OnReport(ctx context.Context, report models.Report) error {
	return f(ctx, report)
}

// Options controls a Reporter
type Options struct {
	Model        usage.CostModel
	Location     *time.Location
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Hour
	}
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Reporter owns the usage cache for one site and keeps its month-to-date
// report current
type Reporter struct {
	siteID   string
	fetch    usage.FetchFunc
	cache    *usage.Cache
	loc      *time.Location
	interval time.Duration
	clock    clock.Clock
	log      *zap.Logger
	trigger  chan struct{}

	refreshMu sync.Mutex // one refresh in flight

	mu        sync.RWMutex
	last      *models.Report
	listeners []Listener
}

// New creates a reporter for siteID pulling usage through fetch
func New(siteID string, fetch usage.FetchFunc, opts Options) *Reporter {
	opts = opts.withDefaults()
	return &Reporter{
		siteID:   siteID,
		fetch:    fetch,
		cache:    usage.NewCache(opts.Model),
		loc:      opts.Location,
		interval: opts.PollInterval,
		clock:    opts.Clock,
		log:      opts.Logger.Named("reporter").With(zap.String(logging.FieldSiteID, siteID)),
		trigger:  make(chan struct{}, 1),
	}
}

// SiteID returns the monitored site
func (r *Reporter) SiteID() string {
	return r.siteID
}

// AddListener registers l for future reports
func (r *Reporter) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Last returns the last known good report
func (r *Reporter) Last() (models.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return models.Report{}, false
	}
	return *r.last, true
}

// Trigger requests an immediate refresh from Run. Requests made while one
// is already pending are coalesced.
func (r *Reporter) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes immediately, then on every poll interval and on Trigger,
// until ctx is cancelled
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reporter started", zap.Duration("interval", r.interval))
	for {
		// Failures are logged by Refresh; the next tick retries
		_, _ = r.Refresh(ctx)

		select {
		case <-ctx.Done():
			r.log.Info("reporter stopped")
			return
		case <-ticker.C:
		case <-r.trigger:
		}
	}
}

// Refresh updates the cache and publishes a new report. On failure the
// previous report stays current and a *usage.RefreshError is returned.
func (r *Reporter) Refresh(ctx context.Context) (report models.Report, err error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	ctx, span := tracer.Start(ctx, "reporter.refresh")
	span.SetAttributes(attribute.String(logging.FieldSiteID, r.siteID))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			err = &usage.RefreshError{SiteID: r.siteID, Err: fmt.Errorf("panic: %v", p)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.log.Warn("refresh failed", zap.Error(err))
		}
	}()

	now := r.clock.Now()
	today := clock.Today(now, r.loc)

	res, err := r.cache.Refresh(ctx, today, r.fetch)
	if err != nil {
		return models.Report{}, &usage.RefreshError{SiteID: r.siteID, Err: err}
	}

	report = buildReport(r.siteID, res, now)

	r.mu.Lock()
	r.last = &report
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	r.log.Info("refreshed",
		zap.String(logging.FieldRangeStart, report.RangeStart),
		zap.String(logging.FieldRangeEnd, report.RangeEnd),
		zap.Int(logging.FieldDays, len(report.Daily)),
		zap.Float64(logging.FieldPosition, report.Position()))

	for _, l := range listeners {
		if lerr := l.OnReport(ctx, report); lerr != nil {
			r.log.Warn("listener failed", zap.Error(lerr))
		}
	}

	return report, nil
}

func buildReport(siteID string, res usage.Result, now time.Time) models.Report {
	t := res.Totals
	return models.Report{
		SiteID:     siteID,
		RangeStart: res.Start.Format(models.DateLayout),
		RangeEnd:   res.End.Format(models.DateLayout),
		Totals: models.MonthlyTotals{
			ImportKWh:      round2(t.ImportKWh),
			ExportKWh:      round2(t.ExportKWh),
			ImportCost:     round2(t.ImportCost),
			ExportEarnings: round2(t.ExportEarnings),
			TotalCost:      round2(t.TotalCost),
			Surcharge:      round2(t.Surcharge),
			Subscription:   round2(t.Subscription),
			Position:       round2(t.Position),
		},
		Daily:     res.Daily,
		UpdatedAt: now.UTC(),
	}
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
