package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/cases"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/suggest"
)

const (
	DefaultBiasRadiusMeters = 50_000
	maxDetailsPerGroup      = 3
	maxResultsPerGroup      = 5
	maxConcurrentGroups     = 4
)

// TypeGroups are queried in this order and merged in this order.
var TypeGroups = []string{
	"(cities)",
	"postal_code",
	"sublocality",
	"locality",
	"establishment",
	"tourist_attraction",
	"natural_feature",
	"park",
}

var DefaultCountries = []string{"gb", "us"}

type SourceConfig struct {
	Capability   Capability
	Countries    []string
	RadiusMeters int
	Logger       *slog.Logger
}

// Source adapts a Capability into a suggestion source by issuing one
// autocomplete request per type group.
type Source struct {
	capability Capability
	countries  []string
	radius     int
	logger     *slog.Logger
}

func NewSource(cfg SourceConfig) *Source {
	countries := cfg.Countries
	if len(countries) == 0 {
		countries = append([]string(nil), DefaultCountries...)
	}
	radius := cfg.RadiusMeters
	if radius <= 0 {
		radius = DefaultBiasRadiusMeters
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		capability: cfg.Capability,
		countries:  countries,
		radius:     radius,
		logger:     logger,
	}
}

func (s *Source) Name() string {
	return "places"
}

func (s *Source) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:    s.Name(),
		Label:   "Places",
		Kind:    domain.SourceKindPlaces,
		Enabled: s.capability != nil && s.capability.IsAvailable(),
	}
}

// Suggest returns zero results without calling out when the capability is
// unavailable. Individual group failures are logged and skipped; only a
// cycle in which every group failed is reported as an error.
func (s *Source) Suggest(ctx context.Context, query suggest.SourceQuery) ([]domain.SuggestionCandidate, error) {
	if s.capability == nil || !s.capability.IsAvailable() {
		return nil, nil
	}
	input := strings.TrimSpace(query.Query)
	if input == "" {
		return nil, nil
	}
	var bias *domain.Coordinates
	if query.UserLocation != nil {
		coords := query.UserLocation.Coordinates()
		if coords.Valid() {
			bias = &coords
		}
	}

	slots := make([][]domain.SuggestionCandidate, len(TypeGroups))
	errs := make([]error, len(TypeGroups))
	sem := semaphore.NewWeighted(maxConcurrentGroups)
	var wg sync.WaitGroup
	for i, group := range TypeGroups {
		wg.Add(1)
		go func(index int, types string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				errs[index] = err
				return
			}
			defer sem.Release(1)

			items, err := s.suggestGroup(ctx, input, types, bias)
			if err != nil {
				errs[index] = err
				if !errors.Is(err, context.Canceled) {
					s.logger.Warn("places type group failed",
						slog.String("types", types),
						slog.String("error", err.Error()),
					)
				}
				return
			}
			slots[index] = items
		}(i, group)
	}
	wg.Wait()

	var merged []domain.SuggestionCandidate
	failed := 0
	for i, items := range slots {
		if errs[i] != nil {
			failed++
			continue
		}
		merged = append(merged, items...)
	}
	if failed == len(TypeGroups) {
		return nil, fmt.Errorf("places: all type groups failed: %w", errs[0])
	}
	return merged, nil
}

func (s *Source) suggestGroup(ctx context.Context, input, types string, bias *domain.Coordinates) ([]domain.SuggestionCandidate, error) {
	request := AutocompleteRequest{
		Input:        input,
		Types:        types,
		Bias:         bias,
		RadiusMeters: s.radius,
	}
	if types != "establishment" {
		request.Countries = s.countries
	}
	predictions, err := s.capability.Autocomplete(ctx, request)
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.AddEvent("places.group.failed", trace.WithAttributes(attribute.String("places.types", types)))
		return nil, err
	}
	span.AddEvent("places.group", trace.WithAttributes(
		attribute.String("places.types", types),
		attribute.Int("places.predictions", len(predictions)),
	))

	folder := cases.Fold()
	seen := make(map[string]struct{}, len(predictions))
	out := make([]domain.SuggestionCandidate, 0, maxResultsPerGroup)
	for i, prediction := range predictions {
		if len(out) >= maxResultsPerGroup {
			break
		}
		candidate := domain.SuggestionCandidate{
			ID:   "place:" + prediction.PlaceID,
			Text: strings.TrimSpace(prediction.Description),
			Kind: domain.SuggestionKindLocation,
			Metadata: domain.SuggestionMetadata{
				PlaceID: prediction.PlaceID,
			},
		}
		if i < maxDetailsPerGroup {
			details, err := s.capability.Details(ctx, prediction.PlaceID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Debug("places details failed",
						slog.String("placeId", prediction.PlaceID),
						slog.String("error", err.Error()),
					)
				}
			} else {
				if label := details.Label(); label != "" {
					candidate.Text = label
				}
				location := details.Location
				if location.Valid() && (location.Lat != 0 || location.Lng != 0) {
					candidate.Metadata.Coordinates = &location
				}
			}
		}
		if candidate.Text == "" {
			continue
		}
		key := folder.String(candidate.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, candidate)
	}
	return out, nil
}
