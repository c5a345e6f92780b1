package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"studiofinder/suggestservice/internal/providers/directory"
	"studiofinder/suggestservice/internal/providers/places"
	"studiofinder/suggestservice/internal/suggest"
)

func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// ConnectRedis returns nil when Redis is unset or unreachable; every cache
// then runs in memory only.
func ConnectRedis(cfg Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

// BuildSuggestService registers places, users and studios in that order and
// returns the places client for geocoding.
func BuildSuggestService(cfg Config, logger *slog.Logger, redisClient *redis.Client) (*suggest.Service, *places.Client) {
	placesClient := places.NewClient(places.Config{
		APIKey:    cfg.PlacesAPIKey,
		BaseURL:   cfg.PlacesBaseURL,
		UserAgent: cfg.UserAgent,
		Client:    NewHTTPClient(cfg.RequestTimeout),
		Redis:     redisClient,
	})
	if !placesClient.IsAvailable() {
		logger.Info("places api key not configured, places suggestions and geocoding disabled")
	}
	directoryCfg := directory.Config{
		BaseURL:   cfg.DirectoryBaseURL,
		UserAgent: cfg.UserAgent,
		Client:    NewHTTPClient(cfg.RequestTimeout),
	}

	service := suggest.NewService([]suggest.Source{
		places.NewSource(places.SourceConfig{
			Capability:   placesClient,
			Countries:    cfg.PlacesCountries,
			RadiusMeters: cfg.PlacesBiasRadiusMeters,
			Logger:       logger,
		}),
		directory.NewUserSource(directoryCfg),
		directory.NewStudioSource(directoryCfg),
	}, cfg.RequestTimeout, serviceOptions(cfg, logger, redisClient)...)
	return service, placesClient
}

func serviceOptions(cfg Config, logger *slog.Logger, redisClient *redis.Client) []suggest.ServiceOption {
	opts := []suggest.ServiceOption{
		suggest.WithLogger(logger),
		suggest.WithSourceRateLimit(float64(cfg.RateLimitRPS)),
		suggest.WithBreakerPolicy(suggest.BreakerPolicy{
			Threshold: cfg.BreakerThreshold,
			BaseBlock: cfg.BreakerBaseBlock,
			MaxBlock:  cfg.BreakerMaxBlock,
		}),
	}
	if cfg.CacheDisabled {
		return append(opts, suggest.WithCacheDisabled(true))
	}
	if cfg.CacheTTL > 0 {
		opts = append(opts, suggest.WithCacheTTL(cfg.CacheTTL))
	}
	if redisClient != nil {
		opts = append(opts, suggest.WithRedisCache(suggest.NewRedisCacheBackend(redisClient)))
	}
	return opts
}
