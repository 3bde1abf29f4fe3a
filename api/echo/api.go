package echo

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/piwatch"
	"go.pilab.hu/piwatch/api"
	"go.pilab.hu/piwatch/services"
)

// DashboardAPI struct to hold dependencies.
type DashboardAPI struct {
	service         *services.DashboardService
	maxEntries      int
	refreshInterval time.Duration
}

// NewDashboardAPI initializes the dashboard API.
func NewDashboardAPI(service *services.DashboardService, maxEntries int, refreshInterval time.Duration) *DashboardAPI {
	return &DashboardAPI{
		service:         service,
		maxEntries:      maxEntries,
		refreshInterval: refreshInterval,
	}
}

// RegisterRoutes registers the dashboard routes.
func (d *DashboardAPI) RegisterRoutes(e *echo.Echo) {
	e.Renderer = newTemplateRenderer()

	e.GET("/", d.IndexHandler)
	e.GET("/api/blocked", d.BlockedHandler)
	e.POST("/api/whitelist", d.WhitelistHandler)
	e.GET("/api/health", d.HealthHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// IndexHandler serves the dashboard page, injecting the display limit and
// the client polling interval.
func (d *DashboardAPI) IndexHandler(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", echo.Map{
		"MaxEntries":      d.maxEntries,
		"RefreshInterval": int(d.refreshInterval.Seconds()),
	})
}

// BlockedHandler returns the aggregated blocked list. Transport failures map
// to 502, upstream HTTP failures are proxied with status and message intact
// (with the last auth error appended when one is stored).
func (d *DashboardAPI) BlockedHandler(c echo.Context) error {
	entries, err := d.service.Blocked(c.Request().Context())
	if err != nil {
		return d.blockedError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    entries,
	})
}

func (d *DashboardAPI) blockedError(c echo.Context, err error) error {
	var terr *piwatch.TransportError
	if errors.As(err, &terr) {
		return c.JSON(http.StatusBadGateway, echo.Map{
			"success": false,
			"error":   "Failed to connect to Pi-hole API",
		})
	}

	var uerr *piwatch.UpstreamError
	if errors.As(err, &uerr) {
		msg := fmt.Sprintf("Pi-hole API returned status code %d", uerr.Status)
		if authErr := d.service.LastAuthError(); authErr != "" {
			msg += fmt.Sprintf(" (Auth: %s)", authErr)
		}

		return c.JSON(uerr.Status, echo.Map{
			"success": false,
			"error":   msg,
		})
	}

	log.Error().Err(err).Msg("Failed to load blocked queries")

	return c.JSON(http.StatusInternalServerError, echo.Map{
		"success": false,
		"error":   "Error processing request: " + err.Error(),
	})
}

// WhitelistHandler adds a domain to the appliance allow list.
func (d *DashboardAPI) WhitelistHandler(c echo.Context) error {
	var req api.WhitelistRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	err := d.service.Whitelist(c.Request().Context(), req.Domain)
	if err == nil {
		return c.JSON(http.StatusOK, echo.Map{
			"success": true,
			"message": fmt.Sprintf("Successfully added %s to whitelist", req.Domain),
		})
	}

	if errors.Is(err, piwatch.ErrDomainRequired) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success": false,
			"error":   "Domain is required",
		})
	}

	var terr *piwatch.TransportError
	if errors.As(err, &terr) {
		return c.JSON(http.StatusBadGateway, echo.Map{
			"success": false,
			"error":   "Failed to connect to Pi-hole API",
		})
	}

	var uerr *piwatch.UpstreamError
	if errors.As(err, &uerr) {
		return c.JSON(uerr.Status, echo.Map{
			"success": false,
			"error":   "Failed to add to whitelist: " + uerr.Message,
		})
	}

	log.Error().Err(err).Str("domain", req.Domain).Msg("Whitelist request failed")

	return c.JSON(http.StatusInternalServerError, echo.Map{
		"success": false,
		"error":   "Error processing request: " + err.Error(),
	})
}

// HealthHandler reports appliance reachability and session state. Always
// answers 200; the payload carries the bad news.
func (d *DashboardAPI) HealthHandler(c echo.Context) error {
	status := d.service.Health(c.Request().Context())

	return c.JSON(http.StatusOK, echo.Map{
		"success":          true,
		"pihole_reachable": status.Reachable,
		"authenticated":    status.Authenticated,
		"pihole_host":      status.Host,
		"auth_error":       status.AuthError,
	})
}
