package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.pilab.hu/piwatch"
	echoapi "go.pilab.hu/piwatch/api/echo"
	"go.pilab.hu/piwatch/cache"
	"go.pilab.hu/piwatch/config"
	"go.pilab.hu/piwatch/internal/metrics"
	"go.pilab.hu/piwatch/internal/server"
	"go.pilab.hu/piwatch/log"
	"go.pilab.hu/piwatch/services"
	"go.pilab.hu/piwatch/tracing"
)

var (
	appLogger      log.Logger
	httpServer     *http.Server
	tracerProvider *sdktrace.TracerProvider
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		bootLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLog.Warn().
			Str("configured_log_level", cfg.LogLevel).
			Err(parseErr).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting piwatch server...")
	appLogger.Info(ctx, "Configuration loaded successfully", map[string]interface{}{
		"http_addr":        cfg.HTTPAddr,
		"pihole_host":      cfg.PiholeHost,
		"max_entries":      cfg.MaxEntries,
		"refresh_interval": cfg.RefreshInterval.String(),
		"session_refresh":  cfg.SessionRefresh.String(),
		"log_level":        cfg.LogLevel,
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err, nil)
	}
	tracerProvider = tp

	metrics.Register(prometheus.DefaultRegisterer)

	// --- Initialize Dependencies ---
	store := &piwatch.SessionStore{}
	authenticator := piwatch.NewPasswordAuthenticator(
		store, cfg.PiholeHost, cfg.PiholePassword, cfg.SessionRefresh, cfg.RequestTimeout)
	sessions := piwatch.NewSessionManager(store, authenticator)
	applianceClient := piwatch.NewClient(cfg.PiholeHost, sessions, cfg.RequestTimeout, cfg.HealthTimeout)

	// Establish the first session before serving traffic. Failure is not
	// fatal: the executor re-authenticates on demand and the refresher keeps
	// trying.
	if !authenticator.Login(ctx) {
		_, _, lastErr := store.Read()
		appLogger.Warn(ctx, "Initial appliance login failed", map[string]interface{}{
			"auth_error": lastErr,
		})
	}

	blockedCache := cache.NewBlockedCache(cache.TTLForPoll(cfg.RefreshInterval))
	defer blockedCache.Close()

	dashboardSvc := services.NewDashboardService(
		applianceClient, sessions, store, blockedCache, cfg.MaxEntries, cfg.PiholeHost)
	dashboardAPI := echoapi.NewDashboardAPI(dashboardSvc, cfg.MaxEntries, cfg.RefreshInterval)

	refresher := piwatch.NewRefresher(authenticator, cfg.SessionRefresh)
	refresher.Start()
	// --- End Dependency Initialization ---

	httpServer = server.NewHTTPServer(&cfg, appLogger, dashboardAPI)
	go func() {
		appLogger.Info(context.Background(), "HTTP server listening", map[string]interface{}{
			"addr": cfg.HTTPAddr,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(context.Background(), "Failed to start HTTP server", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, "Received signal, shutting down server...", map[string]interface{}{
		"signal": receivedSignal.String(),
	})

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	refresher.Stop()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "HTTP server shutdown error", err, nil)
		}
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err, nil)
		}
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}
