package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"sitemap-watch/pkg/detector"
	"sitemap-watch/pkg/logger"
	"sitemap-watch/pkg/notifier"
	"sitemap-watch/pkg/parser"
	"sitemap-watch/pkg/sites"
	"sitemap-watch/pkg/storage"
	"sitemap-watch/pkg/worker"
)

// SitemapMonitor runs the fetch, snapshot, diff and notify pipeline across
// all active sites.
type SitemapMonitor struct {
	fetcher       parser.SitemapFetcher
	store         storage.SnapshotStore
	history       detector.HistoryManager
	detector      detector.ChangeDetector
	notifier      notifier.Notifier
	sites         sites.Source
	pool          *worker.Pool
	retentionDays int
	now           func() time.Time
	running       atomic.Bool
	log           *logger.Logger
}

// RunCycle monitors every active site and sends exactly one notification:
// a digest if any site gained pages, else an initial-snapshot message if any
// site had no history, else a "no new pages" digest. A missing site file
// ends the cycle early without notifying. Other site-source failures and
// panics in the cycle itself are reported through an error notification and
// never escape as panics.
func (m *SitemapMonitor) RunCycle(ctx context.Context) (report *CycleReport, err error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer m.running.Store(false)

	report = &CycleReport{StartedAt: m.now().UTC(), Results: []SiteResult{}}
	defer func() {
		report.Duration = m.now().Sub(report.StartedAt)
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitoring cycle panicked: %v", r)
			m.log.WithField("panic", fmt.Sprint(r)).Error("Monitoring cycle panicked")
			m.reportFailure(ctx, report, err)
		}
	}()

	m.purgeExpired(ctx, report)

	active, err := m.sites.ActiveSites(ctx)
	if err != nil {
		if errors.Is(err, sites.ErrNoSiteConfig) {
			m.log.WithError(err).Warn("No site configuration found, skipping cycle")
			return report, nil
		}
		m.log.WithError(err).Error("Failed to read site configuration")
		m.reportFailure(ctx, report, err)
		return report, err
	}
	if len(active) == 0 {
		m.log.Info("No active sites configured, skipping cycle")
		return report, nil
	}

	m.log.WithFields(map[string]interface{}{
		"sites":   len(active),
		"workers": m.pool.Workers(),
	}).Info("Starting monitoring cycle")

	report.Results = m.monitorSites(ctx, active)
	report.tally()

	report.Message = m.composeMessage(report)
	report.Delivered = m.notifier.Deliver(ctx, report.Message)

	m.log.WithFields(map[string]interface{}{
		"changed":   report.Changed,
		"initial":   report.Initial,
		"unchanged": report.Unchanged,
		"empty":     report.Empty,
		"failed":    report.Failed,
		"delivered": report.Delivered,
	}).Info("Monitoring cycle completed")

	return report, nil
}

func (m *SitemapMonitor) reportFailure(ctx context.Context, report *CycleReport, err error) {
	report.Error = err.Error()
	report.Message = m.notifier.FormatError(err)
	report.Delivered = m.notifier.Deliver(ctx, report.Message)
}

func (m *SitemapMonitor) composeMessage(report *CycleReport) string {
	diffs := report.Diffs()
	switch {
	case report.Changed > 0:
		return m.notifier.FormatDigest(diffs)
	case report.Initial > 0:
		return m.notifier.FormatInitial(report.Initial)
	default:
		return m.notifier.FormatDigest(nil)
	}
}

func (m *SitemapMonitor) purgeExpired(ctx context.Context, report *CycleReport) {
	if m.retentionDays <= 0 {
		return
	}
	cutoff := m.now().UTC().AddDate(0, 0, -m.retentionDays)
	purged, err := m.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		m.log.WithError(err).Warn("Failed to purge expired snapshots")
		return
	}
	report.Purged = purged
	if purged > 0 {
		m.log.WithFields(map[string]interface{}{
			"purged": purged,
			"cutoff": cutoff.Format(storage.DayLayout),
		}).Info("Expired snapshots purged")
	}
}

// monitorSites fans the sites out over the worker pool. Results keep the
// order of the input.
func (m *SitemapMonitor) monitorSites(ctx context.Context, active []sites.Site) []SiteResult {
	results := make([]SiteResult, len(active))
	tasks := make([]worker.Task, len(active))
	progress := logger.NewProgressReporter(len(active), "Sites monitored", 10*time.Second)

	for i, site := range active {
		results[i] = SiteResult{SiteID: site.ID, Site: site.Name, SitemapURL: site.SitemapURL, Status: StatusFailed}
		tasks[i] = worker.Task{
			ID: site.Name,
			Fn: func(taskCtx context.Context) error {
				defer progress.Step()
				results[i] = m.MonitorSite(taskCtx, site)
				if results[i].Status == StatusFailed {
					return errors.New(results[i].Error)
				}
				return nil
			},
		}
	}

	for i, res := range m.pool.Run(ctx, tasks) {
		var panicErr *worker.PanicError
		if errors.As(res.Error, &panicErr) {
			results[i].Status = StatusFailed
			results[i].Error = panicErr.Error()
			results[i].Diff = nil
		}
	}
	return results
}

// MonitorSite runs the pipeline for one site:
// fetch, save, load previous, then diff or record an initial snapshot.
func (m *SitemapMonitor) MonitorSite(ctx context.Context, site sites.Site) SiteResult {
	start := m.now()
	result := SiteResult{SiteID: site.ID, Site: site.Name, SitemapURL: site.SitemapURL}
	log := m.log.WithField("site", site.Name)
	defer func() {
		result.Duration = m.now().Sub(start)
	}()

	urls, err := m.fetcher.FetchURLs(ctx, site.SitemapURL)
	if err != nil || len(urls) == 0 {
		if err != nil {
			result.Error = err.Error()
			log.WithError(err).Warn("Sitemap fetch failed, skipping site")
		} else {
			log.Warn("Sitemap returned no URLs, skipping site")
		}
		result.Status = StatusEmpty
		return result
	}
	result.URLCount = len(urls)

	current, previous, err := m.history.RecordSnapshot(ctx, site.Name, urls, m.now())
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		log.WithError(err).Error("Failed to record snapshot")
		return result
	}

	diff := m.detector.Compute(previous, current)
	result.Diff = diff
	switch {
	case diff.Initial:
		result.Status = StatusInitial
		log.WithField("url_count", current.TotalCount).Info("Initial snapshot recorded")
	case diff.HasChanges():
		result.Status = StatusChanged
		log.WithFields(map[string]interface{}{
			"added":    len(diff.AddedURLs),
			"removed":  len(diff.RemovedURLs),
			"keywords": len(diff.Keywords),
		}).Info("New pages detected")
	default:
		result.Status = StatusUnchanged
		log.WithField("removed", len(diff.RemovedURLs)).Debug("No new pages")
	}

	if site.ID != "" {
		if err := m.sites.MarkChecked(ctx, site.ID, m.now()); err != nil {
			log.WithError(err).Debug("Failed to update last checked time")
		}
	}
	return result
}

// FetchSnapshot fetches a sitemap and stores it as the current period's
// snapshot without diffing or notifying.
func (m *SitemapMonitor) FetchSnapshot(ctx context.Context, siteName, sitemapURL string) (*storage.Snapshot, error) {
	urls, err := m.fetcher.FetchURLs(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	snapshot := storage.NewSnapshot(siteName, urls, m.now())
	if err := m.store.Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return snapshot, nil
}

// Compare diffs two stored snapshots of a site.
func (m *SitemapMonitor) Compare(ctx context.Context, site, oldPeriod, newPeriod string) (*detector.Diff, error) {
	older, err := m.store.Load(ctx, site, oldPeriod)
	if err != nil {
		return nil, err
	}
	newer, err := m.store.Load(ctx, site, newPeriod)
	if err != nil {
		return nil, err
	}
	if older == nil || newer == nil {
		return nil, ErrSnapshotNotFound
	}
	return m.detector.Compute(older, newer), nil
}

// ErrSnapshotNotFound is returned by Compare when either period is missing.
var ErrSnapshotNotFound = errors.New("snapshot not found")
