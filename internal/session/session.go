package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/metrics"
	"studiofinder/suggestservice/internal/providers/places"
)

const (
	TextDebounce          = 200 * time.Millisecond
	RadiusDebounceDesktop = 500 * time.Millisecond
	RadiusDebounceMobile  = 1000 * time.Millisecond
	DefaultRadiusMiles    = 25
	DefaultResultsPath    = "/studios"

	minQueryRunes  = 2
	geocodeTimeout = 3 * time.Second
)

type State string

const (
	StateIdle       State = "idle"
	StateTyping     State = "typing"
	StateDebouncing State = "debouncing"
	StateSuggesting State = "suggesting"
)

type Variant string

const (
	VariantHero   Variant = "hero"
	VariantFilter Variant = "filter"
)

func ParseVariant(raw string) Variant {
	if Variant(strings.ToLower(strings.TrimSpace(raw))) == VariantHero {
		return VariantHero
	}
	return VariantFilter
}

type Suggester interface {
	Suggest(ctx context.Context, request domain.SuggestRequest) (domain.SuggestResponse, error)
}

// Geocoder is the subset of places.Capability used for raw-text commits.
type Geocoder interface {
	IsAvailable() bool
	Geocode(ctx context.Context, address string) (places.GeocodeResult, error)
}

type Navigator interface {
	OpenTab(path string)
	Navigate(url string)
}

type SearchFunc func(domain.SearchParams)

type Config struct {
	ID           string
	Variant      Variant
	Mobile       bool
	RadiusMiles  int
	UserLocation *domain.UserLocation
	ResultsPath  string
	Clock        Clock
	Logger       *slog.Logger
	Geocoder     Geocoder
	Navigator    Navigator
	OnSearch     SearchFunc
}

type Snapshot struct {
	ID            string                       `json:"id"`
	State         State                        `json:"state"`
	Text          string                       `json:"text"`
	Kind          domain.QueryKind             `json:"kind,omitempty"`
	Items         []domain.SuggestionCandidate `json:"items"`
	Open          bool                         `json:"open"`
	Highlighted   int                          `json:"highlighted"`
	Loading       bool                         `json:"loading"`
	PlacesLoading bool                         `json:"placesLoading"`
	Fallback      bool                         `json:"fallback,omitempty"`
	RadiusMiles   int                          `json:"radiusMiles"`
	Committed     *domain.CommittedSelection   `json:"committed,omitempty"`
}

type EventType string

const (
	EventState    EventType = "state"
	EventCommit   EventType = "commit"
	EventOpenTab  EventType = "open_tab"
	EventNavigate EventType = "navigate"
	EventSearch   EventType = "search"
)

type Event struct {
	Type      EventType                  `json:"type"`
	State     *Snapshot                  `json:"state,omitempty"`
	Selection *domain.CommittedSelection `json:"selection,omitempty"`
	Path      string                     `json:"path,omitempty"`
	Search    *domain.SearchParams       `json:"search,omitempty"`
}

// Session is one search input: it owns the text and radius debouncers, the
// fetch-cycle token and the dropdown state, and commits selections.
type Session struct {
	id          string
	suggester   Suggester
	variant     Variant
	radiusDelay time.Duration
	resultsPath string
	logger      *slog.Logger
	geocoder    Geocoder
	navigator   Navigator
	onSearch    SearchFunc

	textDebounce   *Debouncer[string]
	radiusDebounce *Debouncer[int]
	seq            Sequencer
	subs           registry

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	text          string
	kind          domain.QueryKind
	items         []domain.SuggestionCandidate
	open          bool
	highlighted   int
	loading       bool
	placesLoading bool
	fallback      bool
	radius        int
	userLocation  *domain.UserLocation
	committed     *domain.CommittedSelection
	cancelFetch   context.CancelFunc
	closed        bool
}

func New(suggester Suggester, cfg Config) *Session {
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		id = uuid.NewString()
	}
	radiusDelay := RadiusDebounceDesktop
	if cfg.Mobile {
		radiusDelay = RadiusDebounceMobile
	}
	radius := cfg.RadiusMiles
	if radius <= 0 {
		radius = DefaultRadiusMiles
	}
	resultsPath := strings.TrimSpace(cfg.ResultsPath)
	if resultsPath == "" {
		resultsPath = DefaultResultsPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	variant := cfg.Variant
	if variant != VariantHero {
		variant = VariantFilter
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          id,
		suggester:   suggester,
		variant:     variant,
		radiusDelay: radiusDelay,
		resultsPath: resultsPath,
		logger:      logger.With(slog.String("session", id)),
		geocoder:    cfg.Geocoder,
		navigator:   cfg.Navigator,
		onSearch:    cfg.OnSearch,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
		highlighted: -1,
		radius:      radius,
	}
	if cfg.UserLocation != nil {
		location := *cfg.UserLocation
		s.userLocation = &location
	}
	s.textDebounce = NewDebouncer(clock, s.runCycle)
	s.radiusDebounce = NewDebouncer(clock, s.applyRadius)
	metrics.ActiveSessions.Inc()
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Subscribe(listener Listener) *Subscription {
	if listener == nil {
		return &Subscription{}
	}
	return s.subs.add(listener)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Input handles one change of the text field. Inputs of at least two
// characters (re)start the text debounce; shorter ones close the dropdown.
func (s *Session) Input(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.text = text
	s.highlighted = -1
	trimmed := strings.TrimSpace(text)

	switch {
	case s.committed != nil && s.committed.Kind == domain.SuggestionKindLocation && trimmed == s.committed.Text:
		s.interruptLocked()
		s.closeLocked()
	case utf8.RuneCountInString(trimmed) < minQueryRunes:
		s.interruptLocked()
		s.items = nil
		s.open = false
		s.fallback = false
		if trimmed == "" {
			s.state = StateIdle
		} else {
			s.state = StateTyping
		}
	default:
		s.retireCycleLocked()
		s.state = StateDebouncing
		s.textDebounce.Schedule(text, TextDebounce)
	}
	events := []Event{s.stateEventLocked()}
	s.mu.Unlock()

	s.subs.dispatch(events)
}

// runCycle is the text debouncer's callback: one fetch-and-rank cycle whose
// result is applied only if its token is still current when it completes.
func (s *Session) runCycle(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	token := s.seq.Next()
	if s.cancelFetch != nil {
		s.cancelFetch()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	s.cancelFetch = cancel
	s.loading = true
	request := domain.SuggestRequest{
		Query:          text,
		UserLocation:   s.userLocation,
		IncludeStudios: s.variant == VariantHero,
		BoostStudios:   s.variant == VariantHero,
		PlacesLoading: func(loading bool) {
			s.setPlacesLoading(token, loading)
		},
	}
	events := []Event{s.stateEventLocked()}
	s.mu.Unlock()

	s.subs.dispatch(events)
	metrics.DebounceCyclesTotal.WithLabelValues("started").Inc()

	response, err := s.suggester.Suggest(ctx, request)

	s.mu.Lock()
	if s.closed || !s.seq.IsCurrent(token) {
		s.mu.Unlock()
		metrics.DebounceCyclesTotal.WithLabelValues("discarded").Inc()
		return
	}
	s.cancelFetch = nil
	s.loading = false
	s.placesLoading = false
	s.highlighted = -1
	if err != nil {
		s.logger.Warn("suggestion cycle failed", slog.String("error", err.Error()))
		s.items = nil
		s.open = false
		s.fallback = false
		s.state = StateIdle
		metrics.DebounceCyclesTotal.WithLabelValues("failed").Inc()
	} else {
		s.kind = response.Kind
		s.items = response.Items
		s.fallback = response.Fallback
		s.open = response.Open && len(response.Items) > 0
		if s.open {
			s.state = StateSuggesting
		} else {
			s.state = StateIdle
		}
		metrics.DebounceCyclesTotal.WithLabelValues("applied").Inc()
	}
	events = []Event{s.stateEventLocked()}
	s.mu.Unlock()

	s.subs.dispatch(events)
}

func (s *Session) setPlacesLoading(token uint64, loading bool) {
	s.mu.Lock()
	if s.closed || !s.seq.IsCurrent(token) || s.placesLoading == loading {
		s.mu.Unlock()
		return
	}
	s.placesLoading = loading
	events := []Event{s.stateEventLocked()}
	s.mu.Unlock()

	s.subs.dispatch(events)
}

// Highlight sets the keyboard highlight; -1 clears it.
func (s *Session) Highlight(index int) {
	s.mu.Lock()
	if s.closed || !s.open || index < -1 || index >= len(s.items) {
		s.mu.Unlock()
		return
	}
	s.highlighted = index
	events := []Event{s.stateEventLocked()}
	s.mu.Unlock()

	s.subs.dispatch(events)
}

// MoveHighlight moves the highlight by delta, clamped to [-1, len-1].
func (s *Session) MoveHighlight(delta int) {
	s.mu.Lock()
	if s.closed || !s.open || len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	next := s.highlighted + delta
	if next < -1 {
		next = -1
	}
	if next > len(s.items)-1 {
		next = len(s.items) - 1
	}
	s.highlighted = next
	events := []Event{s.stateEventLocked()}
	s.mu.Unlock()

	s.subs.dispatch(events)
}

// Enter commits the highlighted item when the dropdown is open and an item
// is highlighted, and the raw text otherwise.
func (s *Session) Enter() (domain.CommittedSelection, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.CommittedSelection{}, false
	}
	s.interruptLocked()
	if s.open && s.highlighted >= 0 && s.highlighted < len(s.items) {
		candidate := s.items[s.highlighted]
		s.mu.Unlock()
		return s.commitCandidate(candidate)
	}
	text := s.text
	s.mu.Unlock()
	return s.commitText(text)
}

// Select commits the item at index, as a click on a dropdown row does.
func (s *Session) Select(index int) (domain.CommittedSelection, bool) {
	s.mu.Lock()
	if s.closed || index < 0 || index >= len(s.items) {
		s.mu.Unlock()
		return domain.CommittedSelection{}, false
	}
	s.interruptLocked()
	candidate := s.items[index]
	s.mu.Unlock()
	return s.commitCandidate(candidate)
}

// SelectCandidate commits a candidate supplied by the caller, such as a
// map marker that never appeared in the dropdown.
func (s *Session) SelectCandidate(candidate domain.SuggestionCandidate) (domain.CommittedSelection, bool) {
	s.mu.Lock()
	if s.closed || strings.TrimSpace(candidate.Text) == "" {
		s.mu.Unlock()
		return domain.CommittedSelection{}, false
	}
	s.interruptLocked()
	s.mu.Unlock()
	return s.commitCandidate(candidate)
}

// SearchButton commits the raw text.
func (s *Session) SearchButton() (domain.CommittedSelection, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.CommittedSelection{}, false
	}
	s.interruptLocked()
	text := s.text
	s.mu.Unlock()
	return s.commitText(text)
}

// Blur commits like Enter when confirm is set and otherwise just closes.
func (s *Session) Blur(confirm bool) (domain.CommittedSelection, bool) {
	if confirm {
		return s.Enter()
	}
	s.dismiss()
	return domain.CommittedSelection{}, false
}

func (s *Session) Escape() {
	s.dismiss()
}

func (s *Session) OutsideClick() {
	s.dismiss()
}

func (s *Session) dismiss() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.interruptLocked()
	s.closeLocked()
	events := []Event{s.stateEventLocked()}
	s.mu.Unlock()

	s.subs.dispatch(events)
}

// SetRadius debounces radius changes separately from text input. A settled
// radius re-issues the search when a location is committed.
func (s *Session) SetRadius(miles int) {
	if miles <= 0 {
		return
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.radiusDebounce.Schedule(miles, s.radiusDelay)
}

func (s *Session) applyRadius(miles int) {
	s.mu.Lock()
	if s.closed || miles == s.radius {
		s.mu.Unlock()
		return
	}
	s.radius = miles
	var params *domain.SearchParams
	if s.committed != nil && s.committed.Kind == domain.SuggestionKindLocation {
		params = s.searchParamsLocked(*s.committed)
	}
	events := []Event{s.stateEventLocked()}
	s.mu.Unlock()

	if params != nil {
		events = append(events, s.emitSearch(*params)...)
	}
	s.subs.dispatch(events)
}

func (s *Session) SetUserLocation(location *domain.UserLocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if location == nil || !location.Coordinates().Valid() {
		s.userLocation = nil
		return
	}
	copied := *location
	s.userLocation = &copied
}

// Close cancels every timer and in-flight cycle and releases all
// subscriptions. Further calls are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.interruptLocked()
	s.mu.Unlock()

	s.radiusDebounce.CancelAll()
	s.cancel()
	s.subs.clear()
	metrics.ActiveSessions.Dec()
}

// interruptLocked is what every explicit action does first: cancel the
// pending text timer and retire the current cycle so a late result cannot
// overwrite what the action is about to commit.
func (s *Session) interruptLocked() {
	s.textDebounce.CancelAll()
	s.retireCycleLocked()
}

// retireCycleLocked invalidates the in-flight cycle's token and cancels its
// fetch. A keystroke does this too: whatever the older text fetches is stale
// the moment the text changes.
func (s *Session) retireCycleLocked() {
	s.seq.Invalidate()
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
	s.loading = false
	s.placesLoading = false
}

func (s *Session) closeLocked() {
	s.items = nil
	s.open = false
	s.fallback = false
	s.highlighted = -1
	s.state = StateIdle
}

func (s *Session) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		ID:            s.id,
		State:         s.state,
		Text:          s.text,
		Kind:          s.kind,
		Items:         append([]domain.SuggestionCandidate{}, s.items...),
		Open:          s.open,
		Highlighted:   s.highlighted,
		Loading:       s.loading,
		PlacesLoading: s.placesLoading,
		Fallback:      s.fallback,
		RadiusMiles:   s.radius,
	}
	if s.committed != nil {
		committed := *s.committed
		snapshot.Committed = &committed
	}
	return snapshot
}

func (s *Session) stateEventLocked() Event {
	snapshot := s.snapshotLocked()
	return Event{Type: EventState, State: &snapshot}
}
