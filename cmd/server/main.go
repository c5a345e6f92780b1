package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "studiofinder/suggestservice/internal/api/http"
	"studiofinder/suggestservice/internal/app"
	"studiofinder/suggestservice/internal/metrics"
	"studiofinder/suggestservice/internal/providers/ipgeo"
	"studiofinder/suggestservice/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "suggest")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "suggest"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Bool("hasPlacesKey", cfg.PlacesAPIKey != ""),
		slog.Any("placesCountries", cfg.PlacesCountries),
		slog.String("directoryBaseURL", cfg.DirectoryBaseURL),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("ipGeoEnabled", cfg.IPGeoEnabled),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)

	redisClient := app.ConnectRedis(cfg, logger)
	suggestService, placesClient := app.BuildSuggestService(cfg, logger, redisClient)

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithGeocoder(placesClient),
		apihttp.WithRateLimit(float64(cfg.RateLimitRPS), cfg.RateLimitRPS*2),
		apihttp.WithDefaultRadius(cfg.DefaultRadiusMiles),
	}
	if cfg.IPGeoEnabled {
		serverOpts = append(serverOpts, apihttp.WithLocationResolver(ipgeo.NewResolver(ipgeo.Config{
			Endpoint:   cfg.IPGeoEndpoint,
			Client:     app.NewHTTPClient(3 * time.Second),
			Redis:      redisClient,
			MaxEntries: cfg.IPGeoCacheMax,
			Logger:     logger,
		})))
	}

	handler := apihttp.NewServer(suggestService, serverOpts...).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// WebSocket sessions outlive any fixed write timeout; the pumps set per-message deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("suggest service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("suggest service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
