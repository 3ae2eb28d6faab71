package handler

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"sitemap-watch/internal/service"
	"sitemap-watch/pkg/logger"
	"sitemap-watch/pkg/monitor"
	"sitemap-watch/pkg/sites"
	"sitemap-watch/pkg/storage"
)

// Controller serves the HTTP API over the site registry, the snapshot store
// and the monitor.
type Controller struct {
	sites     service.SiteService
	snapshots service.SnapshotService
	monitor   service.MonitorService
	status    service.StatusService
	started   time.Time
	log       *logger.Logger
}

// NewController wires the API. status may be nil when no scheduler runs.
func NewController(
	siteService service.SiteService,
	snapshots service.SnapshotService,
	monitorService service.MonitorService,
	status service.StatusService,
) *Controller {
	return &Controller{
		sites:     siteService,
		snapshots: snapshots,
		monitor:   monitorService,
		status:    status,
		started:   time.Now(),
		log:       logger.GetLogger().WithField("component", "api"),
	}
}

type StatusResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
}

type addSiteRequest struct {
	Name       string `json:"name"`
	SitemapURL string `json:"sitemapUrl"`
}

type updateSiteRequest struct {
	IsActive *bool `json:"isActive"`
}

type fetchSnapshotRequest struct {
	SiteURL  string `json:"siteUrl"`
	SiteName string `json:"siteName"`
}

// NewApp returns a fiber app with every route registered.
func (c *Controller) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "sitemap-watch",
		DisableStartupMessage: true,
		ErrorHandler:          c.handleError,
	})
	c.Register(app)
	return app
}

func (c *Controller) Register(app *fiber.App) {
	app.Get("/health", c.health)

	api := app.Group("/api")
	api.Get("/sites", c.listSites)
	api.Post("/sites", c.addSite)
	api.Delete("/sites/:id", c.deleteSite)
	api.Patch("/sites/:id", c.updateSite)

	api.Get("/snapshots", c.listSnapshotSites)
	api.Post("/snapshots/fetch", c.fetchSnapshot)
	api.Get("/snapshots/:site", c.listSnapshotPeriods)
	api.Get("/snapshots/:site/:period", c.getSnapshot)

	api.Get("/compare", c.compare)

	api.Get("/cron/monitor", c.runCycle)
	api.Post("/cron/monitor", c.runCycle)
}

func (c *Controller) handleError(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, sites.ErrSiteNotFound), errors.Is(err, monitor.ErrSnapshotNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, sites.ErrInvalidSite):
		code = fiber.StatusBadRequest
	case errors.Is(err, sites.ErrDuplicateSite), errors.Is(err, monitor.ErrCycleInProgress):
		code = fiber.StatusConflict
	}

	if code >= fiber.StatusInternalServerError {
		c.log.WithError(err).WithField("path", ctx.Path()).Error("Request failed")
	}
	return ctx.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}

func (c *Controller) health(ctx *fiber.Ctx) error {
	resp := StatusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
	}

	if c.status != nil {
		metrics := map[string]interface{}{
			"interval": c.status.Interval().String(),
		}
		if report, at, err := c.status.LastReport(); report != nil || err != nil {
			metrics["lastRun"] = at.UTC().Format(time.RFC3339)
			if err != nil {
				metrics["lastError"] = err.Error()
			}
			if report != nil {
				metrics["lastCycle"] = fiber.Map{
					"changed":   report.Changed,
					"initial":   report.Initial,
					"unchanged": report.Unchanged,
					"empty":     report.Empty,
					"failed":    report.Failed,
					"delivered": report.Delivered,
					"duration":  report.Duration.String(),
				}
			}
		}
		resp.Metrics = metrics
	}
	return ctx.JSON(resp)
}

func (c *Controller) listSites(ctx *fiber.Ctx) error {
	list, err := c.sites.List(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(list)
}

func (c *Controller) addSite(ctx *fiber.Ctx) error {
	var req addSiteRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	site, err := c.sites.Add(ctx.UserContext(), req.Name, req.SitemapURL)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(site)
}

func (c *Controller) deleteSite(ctx *fiber.Ctx) error {
	if err := c.sites.Delete(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{"success": true})
}

func (c *Controller) updateSite(ctx *fiber.Ctx) error {
	var req updateSiteRequest
	if err := ctx.BodyParser(&req); err != nil || req.IsActive == nil {
		return fiber.NewError(fiber.StatusBadRequest, "isActive is required")
	}
	site, err := c.sites.SetActive(ctx.UserContext(), ctx.Params("id"), *req.IsActive)
	if err != nil {
		return err
	}
	return ctx.JSON(site)
}

func (c *Controller) listSnapshotSites(ctx *fiber.Ctx) error {
	list, err := c.snapshots.ListSites(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{"sites": list})
}

func (c *Controller) listSnapshotPeriods(ctx *fiber.Ctx) error {
	site := ctx.Params("site")
	periods, err := c.snapshots.ListTimePeriods(ctx.UserContext(), site)
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{"site": site, "timePeriods": periods})
}

func (c *Controller) getSnapshot(ctx *fiber.Ctx) error {
	period := ctx.Params("period")
	if !storage.ValidTimePeriod(period) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid time period")
	}
	snapshot, err := c.snapshots.Load(ctx.UserContext(), ctx.Params("site"), period)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return fiber.NewError(fiber.StatusNotFound, "snapshot not found")
	}
	return ctx.JSON(snapshot)
}

func (c *Controller) fetchSnapshot(ctx *fiber.Ctx) error {
	var req fetchSnapshotRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := sites.ValidateSitemapURL(req.SiteURL); err != nil {
		return err
	}

	name := strings.TrimSpace(req.SiteName)
	if name == "" {
		u, _ := url.Parse(strings.TrimSpace(req.SiteURL))
		name = u.Hostname()
	}

	snapshot, err := c.monitor.FetchSnapshot(ctx.UserContext(), name, strings.TrimSpace(req.SiteURL))
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return ctx.JSON(snapshot)
}

func (c *Controller) compare(ctx *fiber.Ctx) error {
	site, oldPeriod, newPeriod := ctx.Query("site"), ctx.Query("old"), ctx.Query("new")
	if site == "" || !storage.ValidTimePeriod(oldPeriod) || !storage.ValidTimePeriod(newPeriod) {
		return fiber.NewError(fiber.StatusBadRequest, "site, old and new are required")
	}
	diff, err := c.monitor.Compare(ctx.UserContext(), site, oldPeriod, newPeriod)
	if err != nil {
		return err
	}
	return ctx.JSON(diff)
}

func (c *Controller) runCycle(ctx *fiber.Ctx) error {
	c.log.Info("Monitoring cycle triggered over HTTP")

	report, err := c.monitor.RunCycle(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.Map{
		"success":   true,
		"message":   "monitoring cycle completed",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"report":    report,
	})
}
