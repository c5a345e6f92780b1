package domain

import (
	"strings"
	"time"
)

type SuggestionKind string

const (
	SuggestionKindLocation SuggestionKind = "location"
	SuggestionKindUser     SuggestionKind = "user"
	SuggestionKindStudio   SuggestionKind = "studio"
)

type QueryKind string

const (
	QueryKindLocation QueryKind = "location"
	QueryKindUser     QueryKind = "user"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UserLocation is supplied by the caller (browser geolocation or IP lookup)
// and is only ever read while ranking.
type UserLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l UserLocation) Coordinates() Coordinates {
	return Coordinates{Lat: l.Lat, Lng: l.Lng}
}

type SuggestionMetadata struct {
	PlaceID     string       `json:"placeId,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	UserID      string       `json:"userId,omitempty"`
	Username    string       `json:"username,omitempty"`
	StudioID    string       `json:"studioId,omitempty"`
}

type SuggestionCandidate struct {
	ID         string             `json:"id"`
	Text       string             `json:"text"`
	Kind       SuggestionKind     `json:"kind"`
	DistanceKm *float64           `json:"distanceKm,omitempty"`
	Metadata   SuggestionMetadata `json:"metadata"`
}

type CommittedSelection struct {
	Text        string         `json:"text"`
	Kind        SuggestionKind `json:"kind"`
	Coordinates *Coordinates   `json:"coordinates,omitempty"`
}

func (c CommittedSelection) Equal(other CommittedSelection) bool {
	if c.Text != other.Text || c.Kind != other.Kind {
		return false
	}
	if c.Coordinates == nil || other.Coordinates == nil {
		return c.Coordinates == nil && other.Coordinates == nil
	}
	return *c.Coordinates == *other.Coordinates
}

type PendingQuery struct {
	RawInput       string    `json:"rawInput"`
	ClassifiedKind QueryKind `json:"classifiedKind"`
	Token          uint64    `json:"token"`
}

type SuggestRequest struct {
	Query          string
	UserLocation   *UserLocation
	IncludeStudios bool
	BoostStudios   bool
	NoCache        bool
	// PlacesLoading brackets the external places call: true before, false after.
	PlacesLoading func(loading bool) `json:"-"`
}

// SourceStatus reports one source's part in a fetch. Skipped sources were
// not called: either gated out for this query (OK) or resting after repeated
// failures (BlockedUntil set, not OK).
type SourceStatus struct {
	Name         string     `json:"name"`
	OK           bool       `json:"ok"`
	Count        int        `json:"count"`
	Error        string     `json:"error,omitempty"`
	Skipped      bool       `json:"skipped,omitempty"`
	BlockedUntil *time.Time `json:"blockedUntil,omitempty"`
}

type SuggestResponse struct {
	Query     string                `json:"query"`
	Kind      QueryKind             `json:"kind"`
	Items     []SuggestionCandidate `json:"items"`
	Sources   []SourceStatus        `json:"sources"`
	Open      bool                  `json:"open"`
	Fallback  bool                  `json:"fallback,omitempty"`
	Cached    bool                  `json:"cached,omitempty"`
	ElapsedMS int64                 `json:"elapsedMs"`
}

type SourceInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

const (
	SourceKindPlaces  = "places"
	SourceKindUsers   = "users"
	SourceKindStudios = "studios"
)

type SourceDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                string     `json:"kind"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

// SearchParams is what a committed location search hands to the results page.
type SearchParams struct {
	Location    string       `json:"location"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	RadiusMiles int          `json:"radiusMiles,omitempty"`
}

func NormalizeSuggestionKind(raw string) SuggestionKind {
	switch SuggestionKind(strings.ToLower(strings.TrimSpace(raw))) {
	case SuggestionKindUser:
		return SuggestionKindUser
	case SuggestionKindStudio:
		return SuggestionKindStudio
	default:
		return SuggestionKindLocation
	}
}
