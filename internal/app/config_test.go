package app

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "SUGGEST_TIMEOUT_MS", "PLACES_API_KEY", "PLACES_COUNTRIES",
		"SUGGEST_CACHE_TTL_MINUTES", "SUGGEST_CACHE_DISABLED", "IPGEO_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.HTTPAddr != ":8091" || cfg.RequestTimeout != 3*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PlacesAPIKey != "" || cfg.CacheDisabled || !cfg.IPGeoEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if diff := cmp.Diff([]string{"gb", "us"}, cfg.PlacesCountries); diff != "" {
		t.Fatalf("unexpected countries (-want +got):\n%s", diff)
	}
	if cfg.CacheTTL != 10*time.Minute || cfg.DefaultRadiusMiles != 25 {
		t.Fatalf("unexpected cache/radius defaults: %+v", cfg)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("SUGGEST_TIMEOUT_MS", "1500")
	t.Setenv("PLACES_COUNTRIES", " GB, ie ,,")
	t.Setenv("SUGGEST_CACHE_DISABLED", "yes")
	t.Setenv("IPGEO_ENABLED", "off")
	t.Setenv("SUGGEST_RATE_LIMIT_RPS", "-3")

	cfg := LoadConfig()
	if cfg.HTTPAddr != ":9000" || cfg.RequestTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if diff := cmp.Diff([]string{"gb", "ie"}, cfg.PlacesCountries); diff != "" {
		t.Fatalf("unexpected countries (-want +got):\n%s", diff)
	}
	if !cfg.CacheDisabled || cfg.IPGeoEnabled {
		t.Fatalf("unexpected bools: %+v", cfg)
	}
	if cfg.RateLimitRPS != 20 {
		t.Fatalf("invalid rate limit should fall back, got %d", cfg.RateLimitRPS)
	}
}
