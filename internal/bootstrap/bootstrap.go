package bootstrap

import (
	"context"
	"fmt"

	"sitemap-watch/internal/config"
	"sitemap-watch/pkg/logger"
	"sitemap-watch/pkg/monitor"
	"sitemap-watch/pkg/notifier"
	"sitemap-watch/pkg/parser"
	"sitemap-watch/pkg/sites"
	"sitemap-watch/pkg/storage"
)

// App holds the wired components shared by both entrypoints.
type App struct {
	Config   *config.Config
	Store    storage.SnapshotStore
	Registry *sites.FileRegistry
	Notifier *notifier.WebhookNotifier
	Fetcher  *parser.XMLFetcher
	Monitor  *monitor.SitemapMonitor
}

// Build wires every component from cfg. Storage construction never fails:
// an unusable backend degrades to memory.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.GetLogger().WithField("component", "bootstrap")

	fetcher := parser.NewXMLFetcher(parser.FetcherConfig{
		Timeout:               cfg.Monitor.FetchTimeout,
		MaxDepth:              cfg.Monitor.MaxDepth,
		SubSitemapConcurrency: cfg.Monitor.SubSitemapConcurrency,
	})
	for _, filter := range parser.BuildFilters(cfg.Monitor.ExcludePaths, cfg.Monitor.ExcludeExtensions) {
		fetcher.AddFilter(filter)
	}

	store := storage.NewFromConfig(ctx, cfg.Storage)
	registry := sites.NewFileRegistry(cfg.Monitor.SitesFile)
	webhook := notifier.NewWebhookNotifier(cfg.Notifier)
	if !webhook.Configured() {
		log.Warn("No webhook URL configured, notifications will be skipped")
	}

	m, err := monitor.NewMonitorConfigBuilder().
		WithFetcher(fetcher).
		WithStore(store).
		WithNotifier(webhook).
		WithSites(registry).
		WithWorkers(cfg.Monitor.Workers).
		WithSiteTimeout(cfg.Monitor.SiteTimeout).
		WithRetentionDays(cfg.Storage.RetentionDays).
		Build()
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("failed to build monitor: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"backend":    cfg.Storage.Backend,
		"sites_file": registry.Path(),
		"workers":    cfg.Monitor.Workers,
	}).Info("Components initialized")

	return &App{
		Config:   cfg,
		Store:    store,
		Registry: registry,
		Notifier: webhook,
		Fetcher:  fetcher,
		Monitor:  m,
	}, nil
}

// Close releases the snapshot backend.
func (a *App) Close() error {
	return closeStore(a.Store)
}

func closeStore(store storage.SnapshotStore) error {
	if c, ok := store.(storage.Closer); ok {
		return c.Close()
	}
	return nil
}

// SetupLogger installs the configured logger as the process-wide one.
func SetupLogger(cfg logger.Config) {
	logger.SetLogger(logger.New(cfg))
}
