package service

import (
	"context"
	"time"

	"sitemap-watch/pkg/detector"
	"sitemap-watch/pkg/monitor"
	"sitemap-watch/pkg/sites"
	"sitemap-watch/pkg/storage"
)

// SiteService manages the monitored site list.
type SiteService interface {
	List(ctx context.Context) ([]sites.Site, error)
	Get(ctx context.Context, id string) (*sites.Site, error)
	Add(ctx context.Context, name, sitemapURL string) (*sites.Site, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (*sites.Site, error)
}

// SnapshotService answers read queries over stored snapshots.
type SnapshotService interface {
	ListSites(ctx context.Context) ([]string, error)
	ListTimePeriods(ctx context.Context, site string) ([]string, error)
	Load(ctx context.Context, site, timePeriod string) (*storage.Snapshot, error)
}

// MonitorService runs cycles and one-off snapshot operations.
type MonitorService interface {
	RunCycle(ctx context.Context) (*monitor.CycleReport, error)
	FetchSnapshot(ctx context.Context, siteName, sitemapURL string) (*storage.Snapshot, error)
	Compare(ctx context.Context, site, oldPeriod, newPeriod string) (*detector.Diff, error)
}

// StatusService reports the outcome of the last scheduled cycle.
type StatusService interface {
	LastReport() (*monitor.CycleReport, time.Time, error)
	Interval() time.Duration
}
