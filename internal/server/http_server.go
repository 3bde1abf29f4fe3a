package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	echoapi "go.pilab.hu/piwatch/api/echo"
	"go.pilab.hu/piwatch/config"
	"go.pilab.hu/piwatch/log"
)

// NewHTTPServer creates and configures the echo HTTP server hosting the
// dashboard.
func NewHTTPServer(cfg *config.Config, appLogger log.Logger, dashboardAPI *echoapi.DashboardAPI) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(otelecho.Middleware(cfg.OtelServiceName))
	e.Use(requestLogger(appLogger))

	dashboardAPI.RegisterRoutes(e)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: e,
		// The blocked-list path can spend up to two upstream attempts plus a
		// backoff before answering, so the write timeout is generous.
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// requestLogger logs each request through the application Logger interface.
func requestLogger(appLogger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := map[string]interface{}{
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}
			if err != nil {
				appLogger.Error(c.Request().Context(), "HTTP Request", err, fields)
			} else {
				appLogger.Info(c.Request().Context(), "HTTP Request", fields)
			}

			return err
		}
	}
}
