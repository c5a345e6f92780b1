package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr               string
	RequestTimeout         time.Duration
	LogLevel               string
	LogFormat              string
	UserAgent              string
	PlacesAPIKey           string
	PlacesBaseURL          string
	PlacesCountries        []string
	PlacesBiasRadiusMeters int
	DirectoryBaseURL       string
	RedisURL               string
	CacheTTL               time.Duration
	CacheDisabled          bool
	IPGeoEndpoint          string
	IPGeoEnabled           bool
	IPGeoCacheMax          int
	BreakerThreshold       int
	BreakerBaseBlock       time.Duration
	BreakerMaxBlock        time.Duration
	RateLimitRPS           int
	DefaultRadiusMiles     int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:               getEnv("HTTP_ADDR", ":8091"),
		RequestTimeout:         time.Duration(getEnvInt("SUGGEST_TIMEOUT_MS", 3000)) * time.Millisecond,
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:              strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:              getEnv("SUGGEST_USER_AGENT", "studiofinder-suggest/1.0"),
		PlacesAPIKey:           strings.TrimSpace(os.Getenv("PLACES_API_KEY")),
		PlacesBaseURL:          getEnv("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api"),
		PlacesCountries:        getEnvList("PLACES_COUNTRIES", []string{"gb", "us"}),
		PlacesBiasRadiusMeters: getEnvInt("PLACES_BIAS_RADIUS_METERS", 50000),
		DirectoryBaseURL:       getEnv("DIRECTORY_BASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", ""),
		CacheTTL:               time.Duration(getEnvInt("SUGGEST_CACHE_TTL_MINUTES", 10)) * time.Minute,
		CacheDisabled:          getEnvBool("SUGGEST_CACHE_DISABLED", false),
		IPGeoEndpoint:          getEnv("IPGEO_ENDPOINT", "https://ipapi.co/{ip}/json/"),
		IPGeoEnabled:           getEnvBool("IPGEO_ENABLED", true),
		IPGeoCacheMax:          getEnvInt("IPGEO_CACHE_MAX_ENTRIES", 5000),
		BreakerThreshold:       getEnvInt("SOURCE_BREAKER_THRESHOLD", 3),
		BreakerBaseBlock:       time.Duration(getEnvInt("SOURCE_BREAKER_BASE_SECONDS", 5)) * time.Second,
		BreakerMaxBlock:        time.Duration(getEnvInt("SOURCE_BREAKER_MAX_SECONDS", 60)) * time.Second,
		RateLimitRPS:           getEnvInt("SUGGEST_RATE_LIMIT_RPS", 20),
		DefaultRadiusMiles:     getEnvInt("SUGGEST_DEFAULT_RADIUS_MILES", 25),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		value := strings.ToLower(strings.TrimSpace(part))
		if value != "" {
			out = append(out, value)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
