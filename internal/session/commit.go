package session

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"studiofinder/suggestservice/internal/domain"
)

// commitCandidate applies a chosen suggestion. User and studio rows open the
// owner's profile in a new tab and never search; location rows search.
func (s *Session) commitCandidate(candidate domain.SuggestionCandidate) (domain.CommittedSelection, bool) {
	switch candidate.Kind {
	case domain.SuggestionKindUser, domain.SuggestionKindStudio:
		return s.commitProfile(candidate)
	}

	text := strings.TrimSpace(candidate.Text)
	if text == "" {
		return domain.CommittedSelection{}, false
	}
	if previous, ok := s.repeatOfCommitted(text); ok {
		return s.finishLocationCommit(previous), true
	}

	selection := domain.CommittedSelection{Text: text, Kind: domain.SuggestionKindLocation}
	if coords := candidate.Metadata.Coordinates; coords != nil && coords.Valid() {
		copied := *coords
		selection.Coordinates = &copied
	} else {
		selection.Coordinates = s.geocode(text)
	}
	return s.finishLocationCommit(selection), true
}

// commitText commits whatever is typed as a location query. Coordinates come
// from a best-effort geocode; a failed geocode still searches by text.
func (s *Session) commitText(raw string) (domain.CommittedSelection, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		s.dismiss()
		return domain.CommittedSelection{}, false
	}
	if previous, ok := s.repeatOfCommitted(text); ok {
		return s.finishLocationCommit(previous), true
	}
	selection := domain.CommittedSelection{
		Text:        text,
		Kind:        domain.SuggestionKindLocation,
		Coordinates: s.geocode(text),
	}
	return s.finishLocationCommit(selection), true
}

func (s *Session) commitProfile(candidate domain.SuggestionCandidate) (domain.CommittedSelection, bool) {
	username := strings.TrimSpace(candidate.Metadata.Username)
	if username == "" {
		username = strings.TrimSpace(candidate.Text)
	}
	if username == "" {
		return domain.CommittedSelection{}, false
	}
	path := ProfilePath(username)
	selection := domain.CommittedSelection{
		Text: strings.TrimSpace(candidate.Text),
		Kind: candidate.Kind,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.CommittedSelection{}, false
	}
	s.committed = &selection
	s.closeLocked()
	events := []Event{
		s.stateEventLocked(),
		{Type: EventCommit, Selection: &selection},
		{Type: EventOpenTab, Path: path},
	}
	s.mu.Unlock()

	if s.navigator != nil {
		s.navigator.OpenTab(path)
	}
	s.subs.dispatch(events)
	return selection, true
}

// repeatOfCommitted reports whether text is the label of the last committed
// location, in which case the commit reuses it without any network call.
func (s *Session) repeatOfCommitted(text string) (domain.CommittedSelection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed == nil || s.committed.Kind != domain.SuggestionKindLocation || s.committed.Text != text {
		return domain.CommittedSelection{}, false
	}
	previous := *s.committed
	if previous.Coordinates != nil {
		coords := *previous.Coordinates
		previous.Coordinates = &coords
	}
	return previous, true
}

func (s *Session) geocode(text string) *domain.Coordinates {
	if s.geocoder == nil || !s.geocoder.IsAvailable() {
		return nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, geocodeTimeout)
	defer cancel()

	result, err := s.geocoder.Geocode(ctx, text)
	if err != nil {
		s.logger.Debug("geocode failed, searching by text", slog.String("error", err.Error()))
		return nil
	}
	if !result.Location.Valid() {
		return nil
	}
	coords := result.Location
	return &coords
}

func (s *Session) finishLocationCommit(selection domain.CommittedSelection) domain.CommittedSelection {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return selection
	}
	committed := selection
	s.committed = &committed
	s.text = selection.Text
	s.kind = domain.QueryKindLocation
	s.closeLocked()
	params := s.searchParamsLocked(selection)
	events := []Event{
		s.stateEventLocked(),
		{Type: EventCommit, Selection: &committed},
	}
	s.mu.Unlock()

	events = append(events, s.emitSearch(*params)...)
	s.subs.dispatch(events)
	return selection
}

// emitSearch invokes the search callback and, for the hero variant, the
// results navigation. It returns the matching events for subscribers.
func (s *Session) emitSearch(params domain.SearchParams) []Event {
	if s.onSearch != nil {
		s.onSearch(params)
	}
	events := []Event{{Type: EventSearch, Search: &params}}
	if s.variant == VariantHero {
		target := ResultsURL(s.resultsPath, params)
		if s.navigator != nil {
			s.navigator.Navigate(target)
		}
		events = append(events, Event{Type: EventNavigate, Path: target})
	}
	return events
}

func (s *Session) searchParamsLocked(selection domain.CommittedSelection) *domain.SearchParams {
	params := &domain.SearchParams{
		Location:    selection.Text,
		RadiusMiles: s.radius,
	}
	if selection.Coordinates != nil {
		coords := *selection.Coordinates
		params.Coordinates = &coords
	}
	return params
}

func ProfilePath(username string) string {
	return "/" + url.PathEscape(strings.TrimPrefix(strings.TrimSpace(username), "/"))
}

// ResultsURL builds the results route carrying location, lat, lng and radius.
func ResultsURL(path string, params domain.SearchParams) string {
	if strings.TrimSpace(path) == "" {
		path = DefaultResultsPath
	}
	values := url.Values{}
	values.Set("location", params.Location)
	if params.Coordinates != nil {
		values.Set("lat", strconv.FormatFloat(params.Coordinates.Lat, 'f', -1, 64))
		values.Set("lng", strconv.FormatFloat(params.Coordinates.Lng, 'f', -1, 64))
	}
	if params.RadiusMiles > 0 {
		values.Set("radius", strconv.Itoa(params.RadiusMiles))
	}
	return path + "?" + values.Encode()
}
