package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	refreshInterval = 60 * time.Second
	lookbackWindow  = time.Minute
)

var errRefreshInProgress = errors.New("refresh already in progress")

type cloudflareAPI interface {
	ResolveZoneID(ctx context.Context, name string) (string, error)
	FetchDNSReport(ctx context.Context, zoneID string, since, until time.Time) (*DNSReport, error)
	FetchFirewallEvents(ctx context.Context, zoneID string, since, until time.Time) ([][]FirewallEvent, error)
}

// Exporter runs refresh cycles for one zone and publishes the rendered
// result to a SnapshotStore.
type Exporter struct {
	api   cloudflareAPI
	zone  string
	store *SnapshotStore
	now   func() time.Time

	mu sync.Mutex
	wg sync.WaitGroup
}

func NewExporter(api cloudflareAPI, zone string, store *SnapshotStore) *Exporter {
	return &Exporter{
		api:   api,
		zone:  zone,
		store: store,
		now:   time.Now,
	}
}

// Refresh fetches, renders and publishes a new snapshot. On error the
// previous snapshot stays live. Returns errRefreshInProgress if another
// refresh is still running.
func (e *Exporter) Refresh(ctx context.Context) error {
	if !e.mu.TryLock() {
		return errRefreshInProgress
	}
	defer e.mu.Unlock()

	start := time.Now()
	zoneID, err := e.api.ResolveZoneID(ctx, e.zone)
	if err != nil {
		return fmt.Errorf("resolve zone %s: %w", e.zone, err)
	}

	until := e.now().UTC().Truncate(time.Second)
	since := until.Add(-lookbackWindow)

	timer := newStageTimer()
	var dns, waf *MetricFamily

	err = timer.time("dns", func() (err error) {
		dns, err = e.dnsMetrics(ctx, zoneID, since, until)
		return err
	})
	if err != nil {
		return fmt.Errorf("dns metrics: %w", err)
	}

	err = timer.time("waf", func() (err error) {
		waf, err = e.wafMetrics(ctx, zoneID, since, until)
		return err
	})
	if err != nil {
		return fmt.Errorf("waf metrics: %w", err)
	}

	body, err := Render([]*MetricFamily{dns, waf, timer.family})
	if err != nil {
		return fmt.Errorf("render snapshot: %w", err)
	}

	e.store.Store(&Snapshot{Body: body, CreatedAt: e.now()})
	log.WithFields(log.Fields{
		"zone":    e.zone,
		"bytes":   len(body),
		"elapsed": time.Since(start).String(),
	}).Info("Snapshot refreshed")
	return nil
}

// dnsMetrics returns nil without error when Cloudflare reports a failure or
// there are no rows; those cycles publish without a DNS section.
func (e *Exporter) dnsMetrics(ctx context.Context, zoneID string, since, until time.Time) (*MetricFamily, error) {
	log.WithFields(log.Fields{
		"since": since.Format(apiTimeLayout),
		"until": until.Format(apiTimeLayout),
	}).Info("Fetching DNS metrics data")

	report, err := e.api.FetchDNSReport(ctx, zoneID, since, until)
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			logProviderErrors("dns", perr)
			return nil, nil
		}
		return nil, err
	}

	log.Infof("Records retrieved: %d", report.Rows)
	if report.Rows < 1 {
		return nil, nil
	}
	return dnsFamily(report), nil
}

func (e *Exporter) wafMetrics(ctx context.Context, zoneID string, since, until time.Time) (*MetricFamily, error) {
	pages, err := e.api.FetchFirewallEvents(ctx, zoneID, since, until)
	if err != nil {
		var perr *ProviderError
		switch {
		case errors.As(err, &perr):
			logProviderErrors("waf", perr)
			return nil, nil
		case errors.Is(err, ErrTooManyPages):
			log.WithField("stage", "waf").WithError(err).Error("Dropping firewall events for this cycle")
			return nil, nil
		}
		return nil, err
	}
	return wafFamily(pages), nil
}

func logProviderErrors(stage string, perr *ProviderError) {
	entry := log.WithField("stage", stage)
	entry.Error("Failed to get information from Cloudflare")
	for _, apiErr := range perr.Errors {
		entry.Error(apiErr.String())
	}
}

// Run refreshes on every tick until ctx is done. Each tick runs in its own
// goroutine; a tick that overlaps a running refresh is skipped. Run returns
// after in-flight refreshes finish.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer e.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.tick(ctx)
			}()
		}
	}
}

func (e *Exporter) tick(ctx context.Context) {
	err := e.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errRefreshInProgress):
		log.Warn("Skipping refresh: previous refresh still running")
	default:
		log.WithError(err).Error("Refresh failed, keeping previous snapshot")
	}
}

// stageTimer records wall-clock milliseconds per refresh stage into the
// processing time family.
type stageTimer struct {
	family *MetricFamily
}

func newStageTimer() *stageTimer {
	return &stageTimer{
		family: &MetricFamily{
			Name:       processingTimeMetric,
			Help:       "Processing time in ms",
			LabelNames: []string{"name"},
		},
	}
}

func (t *stageTimer) time(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	log.WithField("stage", stage).Debugf("Processing %s took %.3f milliseconds", stage, elapsed)
	t.family.Add(elapsed, stage)
	return err
}
