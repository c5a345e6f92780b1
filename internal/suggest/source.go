package suggest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"studiofinder/suggestservice/internal/domain"
)

var (
	ErrNoSources     = errors.New("no suggestion sources configured")
	ErrQueryTooLong  = errors.New("query too long")
	ErrUnknownSource = errors.New("unknown source")
)

// MaxQueryLength bounds the raw input accepted by Suggest.
const MaxQueryLength = 200

// SourceQuery is what every source receives for one fetch cycle.
type SourceQuery struct {
	Query        string
	Kind         domain.QueryKind
	UserLocation *domain.UserLocation
}

type Source interface {
	Name() string
	Info() domain.SourceInfo
	Suggest(ctx context.Context, query SourceQuery) ([]domain.SuggestionCandidate, error)
}

type Service struct {
	sources       []Source
	byName        map[string]Source
	timeout       time.Duration
	retry         RetryConfig
	logger        *slog.Logger
	cacheDisabled bool
	cacheTTL      time.Duration
	cacheMax      int
	cacheMu       sync.Mutex
	cache         map[string]*cachedCandidates
	redisCache    *RedisCacheBackend
	limitMu       sync.Mutex
	limiters      map[string]*rate.Limiter
	sourceRPS     float64
	breaker       BreakerPolicy
	healthMu      sync.Mutex
	health        map[string]*sourceHealth
	now           func() time.Time
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func WithRetryConfig(cfg RetryConfig) ServiceOption {
	return func(s *Service) {
		s.retry = cfg
	}
}

func WithBreakerPolicy(policy BreakerPolicy) ServiceOption {
	return func(s *Service) {
		s.breaker = policy.normalized()
	}
}

// WithSourceRateLimit caps outbound requests per source; zero disables it.
func WithSourceRateLimit(rps float64) ServiceOption {
	return func(s *Service) {
		s.sourceRPS = rps
	}
}

// NewService registers sources in the given order. Order matters: when two
// sources return the same display text, the earlier source's candidate wins.
func NewService(sources []Source, timeout time.Duration, opts ...ServiceOption) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	svc := &Service{
		byName:   make(map[string]Source, len(sources)),
		timeout:  timeout,
		retry:    DefaultRetryConfig(),
		logger:   slog.Default(),
		cacheTTL: defaultCacheTTL,
		cacheMax: defaultCacheMaxEntries,
		cache:    make(map[string]*cachedCandidates),
		limiters: make(map[string]*rate.Limiter),
		breaker:  DefaultBreakerPolicy(),
		health:   make(map[string]*sourceHealth),
		now:      time.Now,
	}
	for _, source := range sources {
		if source == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(source.Name()))
		if name == "" {
			continue
		}
		if _, exists := svc.byName[name]; exists {
			continue
		}
		svc.byName[name] = source
		svc.sources = append(svc.sources, source)
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) Sources() []domain.SourceInfo {
	items := make([]domain.SourceInfo, 0, len(s.sources))
	for _, source := range s.sources {
		info := source.Info()
		if info.Name == "" {
			info.Name = strings.ToLower(strings.TrimSpace(source.Name()))
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	return items
}

// selectSources applies the per-kind gating rules for one query.
func (s *Service) selectSources(query SourceQuery, request domain.SuggestRequest) ([]Source, []domain.SourceStatus) {
	selected := make([]Source, 0, len(s.sources))
	var skipped []domain.SourceStatus
	for _, source := range s.sources {
		info := source.Info()
		include := true
		switch info.Kind {
		case domain.SourceKindUsers:
			include = ShouldQueryUsers(query.Query, query.Kind)
		case domain.SourceKindStudios:
			include = request.IncludeStudios && queryLength(query.Query) >= minQueryRunes
		}
		if !include {
			skipped = append(skipped, domain.SourceStatus{
				Name:    strings.ToLower(strings.TrimSpace(source.Name())),
				OK:      true,
				Skipped: true,
			})
			continue
		}
		selected = append(selected, source)
	}
	return selected, skipped
}

func (s *Service) waitSourceRateLimit(ctx context.Context, name string) error {
	if s.sourceRPS <= 0 {
		return nil
	}
	s.limitMu.Lock()
	limiter, ok := s.limiters[name]
	if !ok {
		burst := int(s.sourceRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.sourceRPS), burst)
		s.limiters[name] = limiter
	}
	s.limitMu.Unlock()
	return limiter.Wait(ctx)
}
