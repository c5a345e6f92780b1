package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/logattr"
	"studiofinder/suggestservice/internal/metrics"
)

// maxConcurrentSources bounds the fan-out of a single fetch cycle.
const maxConcurrentSources = 4

var tracer = otel.Tracer("studiofinder/suggestservice/suggest")

// Suggest runs one fetch-and-rank cycle. Source failures never fail the
// call: each one degrades to zero results and a failed SourceStatus.
func (s *Service) Suggest(ctx context.Context, request domain.SuggestRequest) (domain.SuggestResponse, error) {
	startedAt := s.now()
	query := strings.TrimSpace(request.Query)
	request.Query = query

	if queryLength(query) < minQueryRunes {
		return domain.SuggestResponse{
			Query:   query,
			Kind:    Classify(query),
			Items:   []domain.SuggestionCandidate{},
			Sources: []domain.SourceStatus{},
			Open:    false,
		}, nil
	}
	if len(query) > MaxQueryLength {
		return domain.SuggestResponse{}, fmt.Errorf("%w: max %d bytes", ErrQueryTooLong, MaxQueryLength)
	}
	if len(s.sources) == 0 {
		return domain.SuggestResponse{}, ErrNoSources
	}

	useCache := !s.cacheDisabled && !request.NoCache
	cacheKey := buildCacheKey(request)
	var (
		set    CandidateSet
		cached bool
	)
	if useCache {
		set, cached = s.cacheLookup(ctx, cacheKey, startedAt)
	}
	if !cached {
		set = s.fetch(ctx, request)
		if useCache && ctx.Err() == nil && allSourcesOK(set.Sources) {
			s.cacheStore(ctx, cacheKey, set, s.now())
		}
	}

	response := s.rankSet(request, set)
	response.Cached = cached
	response.ElapsedMS = s.now().Sub(startedAt).Milliseconds()
	return response, nil
}

// fetch fans the query out to the gated sources and merges their output in
// registration order.
func (s *Service) fetch(ctx context.Context, request domain.SuggestRequest) CandidateSet {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	query := SourceQuery{
		Query:        request.Query,
		Kind:         Classify(request.Query),
		UserLocation: request.UserLocation,
	}
	selected, skipped := s.selectSources(query, request)

	// One slot per source keeps the merge order equal to registration order
	// no matter which source finishes first.
	slots := make([][]domain.SuggestionCandidate, len(selected))
	statuses := make([]domain.SourceStatus, len(selected))

	sem := semaphore.NewWeighted(maxConcurrentSources)
	var wg sync.WaitGroup
	for i, source := range selected {
		wg.Add(1)
		go func(index int, current Source) {
			defer wg.Done()
			name := sourceKey(current)

			if err := sem.Acquire(runCtx, 1); err != nil {
				statuses[index] = domain.SourceStatus{Name: name, Error: "context cancelled"}
				return
			}
			defer sem.Release(1)

			items, status := s.runSource(runCtx, current, query, request)
			statuses[index] = status
			slots[index] = items
		}(i, source)
	}
	wg.Wait()

	set := CandidateSet{
		Kind:    query.Kind,
		Sources: append(statuses, skipped...),
	}
	for _, items := range slots {
		set.Items = append(set.Items, items...)
	}
	return set
}

// rankSet measures distances from this request's own location, then dedupes,
// orders and caps. The set is consumed.
func (s *Service) rankSet(request domain.SuggestRequest, set CandidateSet) domain.SuggestResponse {
	annotateDistances(set.Items, request.UserLocation)

	response := domain.SuggestResponse{
		Query:   request.Query,
		Kind:    set.Kind,
		Sources: set.Sources,
	}
	ranked := Rank(set.Items, request.Query, RankOptions{BoostStudios: request.BoostStudios})
	if len(ranked) == 0 && queryLength(request.Query) >= minFallbackRunes {
		ranked = []domain.SuggestionCandidate{FallbackCandidate(request.Query)}
		response.Fallback = true
		metrics.FallbackTotal.Inc()
	}
	response.Items = ranked
	response.Open = len(ranked) > 0
	return response
}

func (s *Service) runSource(ctx context.Context, source Source, query SourceQuery, request domain.SuggestRequest) ([]domain.SuggestionCandidate, domain.SourceStatus) {
	info := source.Info()
	name := sourceKey(source)
	status := domain.SourceStatus{Name: name}

	ctx, span := tracer.Start(ctx, "suggest.source")
	span.SetAttributes(
		attribute.String("source.name", name),
		attribute.String("source.kind", info.Kind),
		attribute.Int("query.length", queryLength(query.Query)),
	)
	defer span.End()

	if admitted, until := s.admitSource(name, s.now()); !admitted {
		status.Skipped = true
		status.BlockedUntil = timePtr(until.UTC())
		metrics.SourceRequestsTotal.WithLabelValues(name, "blocked").Inc()
		span.SetAttributes(attribute.Bool("source.blocked", true))
		return nil, status
	}
	if err := s.waitSourceRateLimit(ctx, name); err != nil {
		s.releaseTrial(name)
		status.Error = "rate limit wait cancelled"
		return nil, status
	}

	if info.Kind == domain.SourceKindPlaces && request.PlacesLoading != nil {
		request.PlacesLoading(true)
		defer request.PlacesLoading(false)
	}

	sourceStartedAt := s.now()
	var items []domain.SuggestionCandidate
	err := RetryWithBackoff(ctx, s.retry, func() error {
		var callErr error
		items, callErr = source.Suggest(ctx, query)
		return callErr
	})
	s.recordSourceResult(name, query.Query, err, s.now().Sub(sourceStartedAt), s.now())

	if err != nil {
		s.logger.Warn("suggestion source failed",
			slog.String("source", name),
			logattr.Text("query", query.Query, 60),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status.Error = err.Error()
		return nil, status
	}

	status.OK = true
	status.Count = len(items)
	span.SetAttributes(attribute.Int("source.results", len(items)))
	return items, status
}

func sourceKey(source Source) string {
	return strings.ToLower(strings.TrimSpace(source.Name()))
}

// FallbackCandidate lets the user force a literal-text location search.
func FallbackCandidate(query string) domain.SuggestionCandidate {
	text := strings.TrimSpace(query)
	return domain.SuggestionCandidate{
		ID:   "fallback:" + dedupeKey(text),
		Text: text,
		Kind: domain.SuggestionKindLocation,
	}
}

// allSourcesOK is false for a blocked source too: a set missing a source
// that is merely resting must not outlive the block in the cache.
func allSourcesOK(statuses []domain.SourceStatus) bool {
	for _, status := range statuses {
		if !status.OK {
			return false
		}
	}
	return true
}
