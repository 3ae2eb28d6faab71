package monitor

import (
	"fmt"
	"strings"
	"time"

	"sitemap-watch/pkg/detector"
	"sitemap-watch/pkg/logger"
	"sitemap-watch/pkg/notifier"
	"sitemap-watch/pkg/parser"
	"sitemap-watch/pkg/sites"
	"sitemap-watch/pkg/storage"
	"sitemap-watch/pkg/worker"
)

// MonitorConfigBuilder assembles a SitemapMonitor and accumulates every
// validation error instead of failing on the first one.
type MonitorConfigBuilder struct {
	fetcher       parser.SitemapFetcher
	store         storage.SnapshotStore
	detector      detector.ChangeDetector
	notifier      notifier.Notifier
	sites         sites.Source
	workers       int
	siteTimeout   time.Duration
	retentionDays int
	now           func() time.Time
	errors        []error
}

func NewMonitorConfigBuilder() *MonitorConfigBuilder {
	return &MonitorConfigBuilder{
		workers:       worker.DefaultPoolConfig().Workers,
		siteTimeout:   worker.DefaultPoolConfig().TaskTimeout,
		retentionDays: 7,
		now:           time.Now,
		errors:        make([]error, 0),
	}
}

func (b *MonitorConfigBuilder) WithFetcher(fetcher parser.SitemapFetcher) *MonitorConfigBuilder {
	if fetcher == nil {
		b.errors = append(b.errors, fmt.Errorf("sitemap fetcher cannot be nil"))
		return b
	}
	b.fetcher = fetcher
	return b
}

func (b *MonitorConfigBuilder) WithStore(store storage.SnapshotStore) *MonitorConfigBuilder {
	if store == nil {
		b.errors = append(b.errors, fmt.Errorf("snapshot store cannot be nil"))
		return b
	}
	b.store = store
	return b
}

// WithDetector overrides the default diff engine.
func (b *MonitorConfigBuilder) WithDetector(d detector.ChangeDetector) *MonitorConfigBuilder {
	if d == nil {
		b.errors = append(b.errors, fmt.Errorf("change detector cannot be nil"))
		return b
	}
	b.detector = d
	return b
}

func (b *MonitorConfigBuilder) WithNotifier(n notifier.Notifier) *MonitorConfigBuilder {
	if n == nil {
		b.errors = append(b.errors, fmt.Errorf("notifier cannot be nil"))
		return b
	}
	b.notifier = n
	return b
}

func (b *MonitorConfigBuilder) WithSites(source sites.Source) *MonitorConfigBuilder {
	if source == nil {
		b.errors = append(b.errors, fmt.Errorf("site source cannot be nil"))
		return b
	}
	b.sites = source
	return b
}

// WithWorkers sets how many sites are processed concurrently.
func (b *MonitorConfigBuilder) WithWorkers(count int) *MonitorConfigBuilder {
	if count <= 0 {
		b.errors = append(b.errors, fmt.Errorf("worker count must be positive, got: %d", count))
		return b
	}
	if count > 50 {
		b.errors = append(b.errors, fmt.Errorf("worker count too high (max 50), got: %d", count))
		return b
	}
	b.workers = count
	return b
}

func (b *MonitorConfigBuilder) WithSiteTimeout(timeout time.Duration) *MonitorConfigBuilder {
	if timeout <= 0 {
		b.errors = append(b.errors, fmt.Errorf("site timeout must be positive, got: %s", timeout))
		return b
	}
	b.siteTimeout = timeout
	return b
}

// WithRetentionDays sets the snapshot retention window. Zero disables purging.
func (b *MonitorConfigBuilder) WithRetentionDays(days int) *MonitorConfigBuilder {
	if days < 0 {
		b.errors = append(b.errors, fmt.Errorf("retention days cannot be negative, got: %d", days))
		return b
	}
	b.retentionDays = days
	return b
}

// WithClock replaces time.Now, mainly for tests.
func (b *MonitorConfigBuilder) WithClock(now func() time.Time) *MonitorConfigBuilder {
	if now != nil {
		b.now = now
	}
	return b
}

// Validate checks all configuration and returns any validation errors
func (b *MonitorConfigBuilder) Validate() error {
	errs := append([]error(nil), b.errors...)
	if b.fetcher == nil {
		errs = append(errs, fmt.Errorf("sitemap fetcher is required"))
	}
	if b.store == nil {
		errs = append(errs, fmt.Errorf("snapshot store is required"))
	}
	if b.notifier == nil {
		errs = append(errs, fmt.Errorf("notifier is required"))
	}
	if b.sites == nil {
		errs = append(errs, fmt.Errorf("site source is required"))
	}
	if len(errs) == 0 {
		return nil
	}

	var errorMessages []string
	for _, err := range errs {
		errorMessages = append(errorMessages, err.Error())
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(errorMessages, "; "))
}

// Build creates a SitemapMonitor with validated configuration
func (b *MonitorConfigBuilder) Build() (*SitemapMonitor, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	changeDetector := b.detector
	if changeDetector == nil {
		changeDetector = detector.NewEngine(nil)
	}

	return &SitemapMonitor{
		fetcher:       b.fetcher,
		store:         b.store,
		history:       detector.NewSnapshotHistory(b.store),
		detector:      changeDetector,
		notifier:      b.notifier,
		sites:         b.sites,
		pool:          worker.NewPool(worker.PoolConfig{Workers: b.workers, TaskTimeout: b.siteTimeout}),
		retentionDays: b.retentionDays,
		now:           b.now,
		log:           logger.GetLogger().WithField("component", "sitemap_monitor"),
	}, nil
}

// HasErrors returns true if there are any validation errors
func (b *MonitorConfigBuilder) HasErrors() bool {
	return len(b.errors) > 0
}

// GetErrors returns all validation errors
func (b *MonitorConfigBuilder) GetErrors() []error {
	return b.errors
}
