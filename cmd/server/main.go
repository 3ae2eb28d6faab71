package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"sitemap-watch/internal/bootstrap"
	"sitemap-watch/internal/config"
	"sitemap-watch/internal/handler"
	"sitemap-watch/pkg/logger"
	"sitemap-watch/pkg/monitor"
)

type Application struct {
	configPath string
	debug      bool
}

// scheduledMonitor routes HTTP-triggered cycles through the scheduler so
// they show up in /health and never overlap with ticks.
type scheduledMonitor struct {
	*monitor.SitemapMonitor
	scheduler *monitor.Scheduler
}

func (s scheduledMonitor) RunCycle(ctx context.Context) (*monitor.CycleReport, error) {
	return s.scheduler.Trigger(ctx)
}

func main() {
	_ = godotenv.Load()

	app := &Application{}

	flag.StringVar(&app.configPath, "config", os.Getenv("SITEMAP_CONFIG"), "Configuration file path")
	flag.BoolVar(&app.debug, "debug", false, "Enable debug mode")
	flag.Parse()

	if err := app.Run(); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

func (app *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.NewManager().Load(app.configPath)
	if err != nil {
		return err
	}
	if app.debug {
		cfg.Logger.Level = "debug"
	}
	bootstrap.SetupLogger(cfg.Logger)
	logr := logger.GetLogger().WithField("component", "server")

	components, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	scheduler := monitor.NewScheduler(components.Monitor, cfg.Monitor.Interval, cfg.Monitor.RunOnStart)
	controller := handler.NewController(
		components.Registry,
		components.Store,
		scheduledMonitor{SitemapMonitor: components.Monitor, scheduler: scheduler},
		scheduler,
	)
	api := controller.NewApp()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logr.Info("Shutdown signal received")
		cancel()
	}()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	listenErr := make(chan error, 1)
	go func() {
		addr := cfg.Server.Address()
		logr.WithField("address", addr).Info("HTTP API listening")
		listenErr <- api.Listen(addr)
	}()

	select {
	case <-ctx.Done():
	case err = <-listenErr:
		if err != nil {
			logr.WithError(err).Error("HTTP server stopped")
		}
		cancel()
	}

	logr.Info("Shutting down gracefully")
	if shutdownErr := api.ShutdownWithTimeout(10 * time.Second); shutdownErr != nil {
		logr.WithError(shutdownErr).Warn("HTTP server shutdown incomplete")
	}

	select {
	case <-schedulerDone:
	case <-time.After(30 * time.Second):
		logr.Warn("Timed out waiting for the running cycle to finish")
	}

	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logr.Info("Server stopped")
	return nil
}
