package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/club-portal-assistant/internal/api/router"
	"github.com/wolfman30/club-portal-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/club-portal-assistant/internal/config"
	httpmiddleware "github.com/wolfman30/club-portal-assistant/internal/http/middleware"
	"github.com/wolfman30/club-portal-assistant/internal/observability/metrics"
	"github.com/wolfman30/club-portal-assistant/internal/webchat"
	"github.com/wolfman30/club-portal-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting club portal assistant",
		"env", cfg.Env,
		"port", cfg.Port,
		"provider", cfg.ReplyProvider,
		"store", cfg.SessionStore,
	)

	ctx := context.Background()
	metricsHandler, assistantMetrics := setupMetrics()

	registry, shutdownRegistry, err := bootstrap.BuildRegistry(ctx, cfg, logger, assistantMetrics)
	if err != nil {
		logger.Error("failed to build assistant", "error", err)
		os.Exit(1)
	}
	defer shutdownRegistry()

	limiter := httpmiddleware.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateBurst)
	defer limiter.Close()

	r := router.New(&router.Config{
		Logger:             logger,
		Webchat:            webchat.NewHandler(registry, loadWidgetJS(cfg.WidgetJSPath, logger), logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthJWTSecret:      cfg.AuthJWTSecret,
		ChatLimiter:        limiter,
	})

	// No WriteTimeout: widget WebSockets are long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.AssistantMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewAssistantMetrics(reg)
}

// loadWidgetJS reads the widget bundle; a missing path disables the route.
func loadWidgetJS(path string, logger *logging.Logger) []byte {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("widget bundle not loaded", "path", path, "error", err)
		return nil
	}
	return data
}
