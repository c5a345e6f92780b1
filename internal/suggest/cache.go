package suggest

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/uber/h3-go/v4"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/metrics"
)

const (
	defaultCacheTTL        = 10 * time.Minute
	defaultCacheMaxEntries = 2000
	// resolution 5 cells average ~250 km²
	cacheCellResolution = 5
)

// CandidateSet is the cached form of one fetch: the merged source output in
// registration order, before distances and ranking. Both of those depend on
// the caller's exact location and are recomputed on every request.
type CandidateSet struct {
	Kind    domain.QueryKind             `json:"kind"`
	Items   []domain.SuggestionCandidate `json:"items"`
	Sources []domain.SourceStatus        `json:"sources"`
}

type cachedCandidates struct {
	set       CandidateSet
	updatedAt time.Time
	expiresAt time.Time
}

// buildCacheKey keys on everything that changes what the sources return:
// the folded query, the variant flags and the H3 cell of the user location,
// which only biases the places lookup.
func buildCacheKey(request domain.SuggestRequest) string {
	flags := make([]string, 0, 2)
	if request.IncludeStudios {
		flags = append(flags, "studios")
	}
	if request.BoostStudios {
		flags = append(flags, "boost")
	}
	return strings.Join([]string{
		"q=" + dedupeKey(request.Query),
		"v=" + strings.Join(flags, "+"),
		"c=" + LocationCell(request.UserLocation),
	}, "|")
}

// LocationCell returns the H3 cell of the location as a hex string, or ""
// when no usable location is known.
func LocationCell(location *domain.UserLocation) string {
	if location == nil || !location.Coordinates().Valid() {
		return ""
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(location.Lat, location.Lng), cacheCellResolution)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(int64(cell), 16)
}

func (s *Service) cacheLookup(ctx context.Context, key string, now time.Time) (CandidateSet, bool) {
	if s.redisCache != nil {
		set, found, err := s.redisCache.Get(ctx, key)
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			s.cacheStoreMemory(key, set, now)
			return set, true
		}
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return CandidateSet{}, false
	}
	if now.After(entry.expiresAt) {
		delete(s.cache, key)
		metrics.CacheMissesTotal.Inc()
		return CandidateSet{}, false
	}
	metrics.CacheHitsTotal.Inc()
	return cloneCandidateSet(entry.set), true
}

func (s *Service) cacheStore(ctx context.Context, key string, set CandidateSet, now time.Time) {
	if s.redisCache != nil {
		if err := s.redisCache.Set(ctx, key, set, s.cacheTTL); err != nil {
			s.logger.Debug("redis cache write failed", slog.String("error", err.Error()))
		}
	}
	s.cacheStoreMemory(key, set, now)
}

func (s *Service) cacheStoreMemory(key string, set CandidateSet, now time.Time) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedCandidates{
		set:       cloneCandidateSet(set),
		updatedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}
	s.trimCacheLocked(now)
}

func (s *Service) trimCacheLocked(now time.Time) {
	for key, entry := range s.cache {
		if now.After(entry.expiresAt) {
			delete(s.cache, key)
		}
	}
	maxEntries := s.cacheMax
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}
	if len(s.cache) <= maxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedCandidates
	}
	items := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-maxEntries; i++ {
		delete(s.cache, items[i].key)
	}
}

// cloneCandidateSet deep-copies the set and drops any distance annotation.
func cloneCandidateSet(set CandidateSet) CandidateSet {
	cloned := CandidateSet{Kind: set.Kind}
	if set.Items != nil {
		cloned.Items = make([]domain.SuggestionCandidate, len(set.Items))
		for i, item := range set.Items {
			copied := item
			copied.DistanceKm = nil
			if item.Metadata.Coordinates != nil {
				value := *item.Metadata.Coordinates
				copied.Metadata.Coordinates = &value
			}
			cloned.Items[i] = copied
		}
	}
	if set.Sources != nil {
		cloned.Sources = append([]domain.SourceStatus(nil), set.Sources...)
	}
	return cloned
}
