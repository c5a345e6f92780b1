package ipgeo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"studiofinder/suggestservice/internal/domain"
)

const (
	defaultEndpoint = "https://ipapi.co/{ip}/json/"
	redisCacheKey   = "suggest:ipgeo:"
	defaultCacheTTL = 12 * time.Hour
	// Addresses come from a client-controlled header, so the in-process
	// table is capped; Redis keeps the long tail.
	defaultMaxEntries = 5000
)

// ErrUnresolvable is returned for addresses that cannot be located, such as
// private or loopback ranges, and for lookups the provider rejected.
var ErrUnresolvable = errors.New("ip address cannot be geolocated")

type Config struct {
	Endpoint string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
	// MaxEntries caps the in-process cache; zero uses the default.
	MaxEntries int
	Logger     *slog.Logger
}

type lookupResponse struct {
	IP          string  `json:"ip"`
	City        string  `json:"city"`
	CountryCode string  `json:"country_code"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
}

type cacheEntry struct {
	location  *domain.UserLocation
	storedAt  time.Time
	expiresAt time.Time
}

// Resolver turns a client IP into a coarse UserLocation.
type Resolver struct {
	endpoint string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
	maxCache int
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

func NewResolver(cfg Config) *Resolver {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	maxCache := cfg.MaxEntries
	if maxCache <= 0 {
		maxCache = defaultMaxEntries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		endpoint: endpoint,
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
		maxCache: maxCache,
		logger:   logger,
		cache:    make(map[string]cacheEntry),
		now:      time.Now,
	}
}

// Lookup resolves ip. Negative answers are cached too, so a failing
// provider is asked at most once per TTL for a given address.
func (r *Resolver) Lookup(ctx context.Context, ip string) (*domain.UserLocation, error) {
	ip = strings.TrimSpace(ip)
	parsed := net.ParseIP(ip)
	if parsed == nil || !isPublicIP(parsed) {
		return nil, ErrUnresolvable
	}
	key := parsed.String()

	if location, ok := r.cacheGet(ctx, key); ok {
		if location == nil {
			return nil, ErrUnresolvable
		}
		return location, nil
	}

	location, err := r.fetch(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		r.logger.Debug("ip geolocation failed", slog.String("ip", key), slog.String("error", err.Error()))
		r.cacheSet(ctx, key, nil)
		return nil, ErrUnresolvable
	}
	r.cacheSet(ctx, key, location)
	return location, nil
}

func (r *Resolver) fetch(ctx context.Context, ip string) (*domain.UserLocation, error) {
	reqURL := strings.ReplaceAll(r.endpoint, "{ip}", ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipgeo http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, err
	}
	var payload lookupResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("ipgeo decode: %w", err)
	}
	if payload.Error {
		return nil, fmt.Errorf("ipgeo: %s", payload.Reason)
	}
	location := &domain.UserLocation{Lat: payload.Latitude, Lng: payload.Longitude}
	if !location.Coordinates().Valid() || (location.Lat == 0 && location.Lng == 0) {
		return nil, fmt.Errorf("ipgeo: no coordinates for %s", ip)
	}
	return location, nil
}

func (r *Resolver) cacheGet(ctx context.Context, key string) (*domain.UserLocation, bool) {
	r.mu.Lock()
	entry, ok := r.cache[key]
	if ok && r.now().After(entry.expiresAt) {
		delete(r.cache, key)
		ok = false
	}
	r.mu.Unlock()
	if ok {
		return entry.location, true
	}

	if r.redis == nil {
		return nil, false
	}
	data, err := r.redis.Get(ctx, redisCacheKey+key).Bytes()
	if err != nil {
		return nil, false
	}
	var location *domain.UserLocation
	if json.Unmarshal(data, &location) != nil {
		return nil, false
	}
	r.storeMemory(key, location)
	return location, true
}

func (r *Resolver) cacheSet(ctx context.Context, key string, location *domain.UserLocation) {
	r.storeMemory(key, location)
	if r.redis == nil {
		return
	}
	if data, err := json.Marshal(location); err == nil {
		_ = r.redis.Set(ctx, redisCacheKey+key, data, r.cacheTTL).Err()
	}
}

func (r *Resolver) storeMemory(key string, location *domain.UserLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if _, exists := r.cache[key]; !exists && len(r.cache) >= r.maxCache {
		r.makeRoomLocked(now)
	}
	r.cache[key] = cacheEntry{location: location, storedAt: now, expiresAt: now.Add(r.cacheTTL)}
}

// makeRoomLocked drops expired entries, then the oldest ones until one more
// entry fits under maxCache.
func (r *Resolver) makeRoomLocked(now time.Time) {
	for key, entry := range r.cache {
		if now.After(entry.expiresAt) {
			delete(r.cache, key)
		}
	}
	excess := len(r.cache) - r.maxCache + 1
	if excess <= 0 {
		return
	}
	keys := make([]string, 0, len(r.cache))
	for key := range r.cache {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return r.cache[keys[i]].storedAt.Before(r.cache[keys[j]].storedAt)
	})
	for _, key := range keys[:excess] {
		delete(r.cache, key)
	}
}

func isPublicIP(ip net.IP) bool {
	return !(ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast())
}

// ClientIP extracts the caller address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
