package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"sitemap-watch/internal/bootstrap"
	"sitemap-watch/internal/config"
	"sitemap-watch/pkg/logger"
	"sitemap-watch/pkg/monitor"
)

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns environment variable as bool or default
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns environment variable as duration or default
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("🚨 CRITICAL ERROR: Application panic recovered: %v\n", r)
			os.Exit(1)
		}
	}()

	// A missing .env file is normal in CI.
	_ = godotenv.Load()

	var (
		configPath   = flag.String("config", getEnvOrDefault("SITEMAP_CONFIG", ""), "Optional YAML config file (env: SITEMAP_CONFIG)")
		sitesFile    = flag.String("sites", "", "Site list JSON file (env: SITEMAP_MONITOR_SITES_FILE)")
		backend      = flag.String("storage", "", "Snapshot backend: file, sqlite, kv or memory (env: SITEMAP_STORAGE_BACKEND)")
		workers      = flag.Int("workers", 0, "Concurrent sites (env: SITEMAP_MONITOR_WORKERS)")
		cycleTimeout = flag.Duration("timeout", getEnvDurationOrDefault("SITEMAP_CYCLE_TIMEOUT", 30*time.Minute), "Upper bound for the whole run (env: SITEMAP_CYCLE_TIMEOUT)")
		debug        = flag.Bool("debug", getEnvBoolOrDefault("DEBUG", false), "Enable debug logging (env: DEBUG)")
		help         = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		printUsage()
		return
	}

	cfg, err := config.NewManager().Load(*configPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	if *sitesFile != "" {
		cfg.Monitor.SitesFile = *sitesFile
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *workers > 0 {
		cfg.Monitor.Workers = *workers
	}
	if *debug {
		cfg.Logger.Level = "debug"
	}

	bootstrap.SetupLogger(cfg.Logger)
	log := logger.GetLogger().WithField("component", "main")
	secureLog := logger.GetSecurityLogger()
	secureLog.SafeInfo("Configuration loaded", map[string]interface{}{
		"sites_file":  cfg.Monitor.SitesFile,
		"backend":     cfg.Storage.Backend,
		"workers":     cfg.Monitor.Workers,
		"webhook_url": cfg.Notifier.WebhookURL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *cycleTimeout)
	defer cancel()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.WithError(err).Warn("Failed to close snapshot store cleanly")
		}
	}()

	report, err := app.Monitor.RunCycle(ctx)
	if report != nil {
		printReport(report, secureLog)
	}
	if err != nil {
		log.WithError(err).Error("Monitoring cycle failed")
		app.Close()
		os.Exit(1)
	}
}

func printReport(report *monitor.CycleReport, secureLog *logger.SecurityLogger) {
	fmt.Printf("\n=== Sitemap Monitoring Results ===\n")
	fmt.Printf("Sites: %d\n", len(report.Results))
	fmt.Printf("New pages: %d, Initial: %d, Unchanged: %d, Empty: %d, Failed: %d\n",
		report.Changed, report.Initial, report.Unchanged, report.Empty, report.Failed)
	fmt.Printf("Purged snapshots: %d\n", report.Purged)
	fmt.Printf("Notification delivered: %t\n", report.Delivered)
	fmt.Printf("Duration: %s\n", report.Duration.Round(time.Millisecond))

	if len(report.Results) == 0 {
		return
	}
	fmt.Printf("\n=== Individual Results ===\n")
	for _, res := range report.Results {
		added := 0
		if res.Diff != nil {
			added = len(res.Diff.AddedURLs)
		}
		fmt.Printf("%-9s %s (%s) - URLs: %d, new: %d\n",
			res.Status, res.Site, secureLog.MaskURL(res.SitemapURL), res.URLCount, added)
		if res.Error != "" {
			fmt.Printf("   Error: %s\n", res.Error)
		}
	}
}

func printUsage() {
	fmt.Println("sitemap-watch: one-shot sitemap monitoring run")
	fmt.Println("")
	fmt.Println("USAGE:")
	fmt.Println("    ./sitemap-watch [OPTIONS]")
	fmt.Println("")
	fmt.Println("OPTIONS:")
	fmt.Println("    -config string     Optional YAML config file (env: SITEMAP_CONFIG)")
	fmt.Println("    -sites string      Site list JSON file (default: data/sites.json)")
	fmt.Println("    -storage string    file, sqlite, kv or memory (default: kv when Cloudflare vars are set, else file)")
	fmt.Println("    -workers int       Concurrent sites (default: 8)")
	fmt.Println("    -timeout duration  Upper bound for the whole run (default: 30m)")
	fmt.Println("    -debug             Enable debug logging (env: DEBUG)")
	fmt.Println("    -help              Show this help message")
	fmt.Println("")
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("    FEISHU_WEBHOOK_URL          Chat webhook for the digest")
	fmt.Println("    CLOUDFLARE_ACCOUNT_ID       KV account")
	fmt.Println("    CLOUDFLARE_API_TOKEN        KV API token")
	fmt.Println("    CLOUDFLARE_KV_NAMESPACE_ID  KV namespace")
	fmt.Println("    SITEMAP_*                   Any config key, e.g. SITEMAP_STORAGE_RETENTION_DAYS=7")
}
