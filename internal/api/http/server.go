package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/logattr"
	"studiofinder/suggestservice/internal/providers/ipgeo"
	"studiofinder/suggestservice/internal/session"
	"studiofinder/suggestservice/internal/suggest"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SuggestService interface {
	Suggest(ctx context.Context, request domain.SuggestRequest) (domain.SuggestResponse, error)
	Sources() []domain.SourceInfo
	SourceDiagnostics() []domain.SourceDiagnostics
}

// LocationResolver turns a client address into an approximate location.
type LocationResolver interface {
	Lookup(ctx context.Context, ip string) (*domain.UserLocation, error)
}

type Server struct {
	suggest        SuggestService
	geocoder       session.Geocoder
	locator        LocationResolver
	logger         *slog.Logger
	rateLimitRPS   float64
	rateBurst      int
	radiusMiles    int
	resultsPath    string
	geocodeTimeout time.Duration
	clientIP       func(*http.Request) string
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithGeocoder(geocoder session.Geocoder) ServerOption {
	return func(s *Server) {
		s.geocoder = geocoder
	}
}

func WithLocationResolver(locator LocationResolver) ServerOption {
	return func(s *Server) {
		s.locator = locator
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateLimitRPS = rps
		}
		if burst > 0 {
			s.rateBurst = burst
		}
	}
}

func WithDefaultRadius(miles int) ServerOption {
	return func(s *Server) {
		if miles > 0 {
			s.radiusMiles = miles
		}
	}
}

func WithResultsPath(path string) ServerOption {
	return func(s *Server) {
		if strings.TrimSpace(path) != "" {
			s.resultsPath = path
		}
	}
}

func NewServer(suggestService SuggestService, options ...ServerOption) *Server {
	server := &Server{
		suggest:        suggestService,
		logger:         slog.Default(),
		rateLimitRPS:   20,
		rateBurst:      40,
		radiusMiles:    session.DefaultRadiusMiles,
		resultsPath:    session.DefaultResultsPath,
		geocodeTimeout: 3 * time.Second,
		clientIP:       ipgeo.ClientIP,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/suggest", s.handleSuggest)
	mux.HandleFunc("/suggest/classify", s.handleClassify)
	mux.HandleFunc("/suggest/geocode", s.handleGeocode)
	mux.HandleFunc("/suggest/sources", s.handleSources)
	mux.HandleFunc("/suggest/sources/health", s.handleSourcesHealth)
	mux.HandleFunc("/suggest/ws", s.handleSessionWS)
	traced := otelhttp.NewHandler(accessMiddleware(s.logger, s.clientIP, mux), "suggest",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	limiter := newClientLimiter(s.rateLimitRPS, s.rateBurst)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(limiter, s.clientIP, traced))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/suggest" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.suggest == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "suggest service is not configured")
		return
	}

	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if len(query) > suggest.MaxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 200 characters)")
		return
	}
	location, err := parseUserLocation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if location == nil {
		location = s.lookupLocation(r)
	}
	hero := session.ParseVariant(q.Get("variant")) == session.VariantHero
	noCache := parseOptionalBool(q.Get("nocache")) || parseOptionalBool(q.Get("noCache"))

	response, err := s.suggest.Suggest(r.Context(), domain.SuggestRequest{
		Query:          query,
		UserLocation:   location,
		IncludeStudios: hero,
		BoostStudios:   hero,
		NoCache:        noCache,
	})
	if err != nil {
		s.logger.Warn("suggest request failed",
			logattr.Text("query", query, 80),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, suggest.ErrQueryTooLong):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, suggest.ErrNoSources):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "suggest failed")
		}
		return
	}

	var failed []string
	for _, status := range response.Sources {
		if !status.OK && !status.Skipped {
			failed = append(failed, status.Name)
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("suggest sources partially failed",
			logattr.Text("query", query, 80),
			slog.Any("failedSources", failed),
		)
	}
	s.logger.Debug("suggest completed",
		logattr.Text("query", query, 80),
		slog.String("kind", string(response.Kind)),
		slog.Int("items", len(response.Items)),
		slog.Bool("cached", response.Cached),
		slog.Int64("elapsedMs", response.ElapsedMS),
	)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	kind := suggest.Classify(query)
	writeJSON(w, http.StatusOK, map[string]any{
		"query":      query,
		"kind":       kind,
		"queryUsers": suggest.ShouldQueryUsers(query, kind),
	})
}

// handleGeocode is best-effort: any provider problem yields ok=false with a
// 200 so the caller falls back to a text-only search.
func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "address is required")
		return
	}
	payload := map[string]any{"address": address, "ok": false}
	if s.geocoder == nil || !s.geocoder.IsAvailable() {
		writeJSON(w, http.StatusOK, payload)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.geocodeTimeout)
	defer cancel()
	result, err := s.geocoder.Geocode(ctx, address)
	if err != nil || !result.Location.Valid() {
		if err != nil {
			s.logger.Debug("geocode failed",
				logattr.Text("address", address, 80),
				slog.String("error", err.Error()),
			)
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}
	coords := result.Location
	payload["ok"] = true
	payload["coordinates"] = &coords
	if result.FormattedAddress != "" {
		payload["formattedAddress"] = result.FormattedAddress
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/suggest/sources" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.suggest == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "suggest service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.suggest.Sources(),
	})
}

func (s *Server) handleSourcesHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.suggest == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "suggest service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.suggest.SourceDiagnostics(),
	})
}

// lookupLocation falls back to IP geolocation when the client sent no
// coordinates. Failures only disable distance ranking.
func (s *Server) lookupLocation(r *http.Request) *domain.UserLocation {
	if s.locator == nil {
		return nil
	}
	location, err := s.locator.Lookup(r.Context(), s.clientIP(r))
	if err != nil {
		return nil
	}
	return location
}

func parseUserLocation(r *http.Request) (*domain.UserLocation, error) {
	q := r.URL.Query()
	rawLat := strings.TrimSpace(q.Get("lat"))
	rawLng := strings.TrimSpace(q.Get("lng"))
	if rawLat == "" && rawLng == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return nil, errors.New("invalid lat")
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return nil, errors.New("invalid lng")
	}
	location := domain.UserLocation{Lat: lat, Lng: lng}
	if !location.Coordinates().Valid() {
		return nil, errors.New("coordinates out of range")
	}
	return &location, nil
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
