package suggest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/metrics"
)

// BreakerPolicy decides when a failing source is left out of fetch cycles.
// While someone types, debounced cycles reach a source every few hundred
// milliseconds, so blocks are measured in seconds rather than minutes.
type BreakerPolicy struct {
	Threshold int
	BaseBlock time.Duration
	MaxBlock  time.Duration
}

func DefaultBreakerPolicy() BreakerPolicy {
	return BreakerPolicy{
		Threshold: 3,
		BaseBlock: 5 * time.Second,
		MaxBlock:  time.Minute,
	}
}

func (p BreakerPolicy) normalized() BreakerPolicy {
	def := DefaultBreakerPolicy()
	if p.Threshold <= 0 {
		p.Threshold = def.Threshold
	}
	if p.BaseBlock <= 0 {
		p.BaseBlock = def.BaseBlock
	}
	if p.MaxBlock < p.BaseBlock {
		p.MaxBlock = p.BaseBlock
	}
	return p
}

// blockFor doubles the base block for every failure past the threshold.
func (p BreakerPolicy) blockFor(consecutiveFailures int) time.Duration {
	d := p.BaseBlock
	for i := p.Threshold; i < consecutiveFailures; i++ {
		d *= 2
		if d >= p.MaxBlock {
			return p.MaxBlock
		}
	}
	return d
}

// sourceHealth is the breaker and running stats of one source.
type sourceHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	trialInFlight       bool

	lastError     string
	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastLatency   time.Duration
	lastTimeout   bool
	lastQuery     string
	totalRequests int64
	totalFailures int64
	timeoutCount  int64
}

func (s *Service) healthFor(name string) *sourceHealth {
	h := s.health[name]
	if h == nil {
		h = &sourceHealth{}
		s.health[name] = h
	}
	return h
}

// admitSource reports whether a cycle may call the source. Once a block
// lapses exactly one trial call goes through; concurrent cycles keep
// skipping the source until that call reports back.
func (s *Service) admitSource(name string, now time.Time) (bool, time.Time) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	h := s.health[name]
	if h == nil || h.consecutiveFailures < s.breaker.Threshold {
		return true, time.Time{}
	}
	if now.Before(h.blockedUntil) || h.trialInFlight {
		return false, h.blockedUntil
	}
	h.trialInFlight = true
	return true, time.Time{}
}

// releaseTrial hands back an admitted call that never reached the source.
func (s *Service) releaseTrial(name string) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	if h := s.health[name]; h != nil {
		h.trialInFlight = false
	}
}

// recordSourceResult feeds one call outcome into the breaker. Calls cut short
// by a newer keystroke and upstream rejections of the query itself say
// nothing about the source's health and leave the failure count alone.
func (s *Service) recordSourceResult(name, query string, err error, latency time.Duration, now time.Time) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	h := s.healthFor(name)
	h.trialInFlight = false
	if errors.Is(err, context.Canceled) {
		metrics.SourceRequestsTotal.WithLabelValues(name, "cancelled").Inc()
		return
	}

	h.totalRequests++
	h.lastQuery = query
	if latency > 0 {
		h.lastLatency = latency
		metrics.SourceRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}
	h.lastTimeout = isTimeoutLikeError(err)
	if h.lastTimeout {
		h.timeoutCount++
	}

	switch {
	case err == nil:
		h.consecutiveFailures = 0
		h.blockedUntil = time.Time{}
		h.lastError = ""
		h.lastSuccessAt = now
		metrics.SourceRequestsTotal.WithLabelValues(name, "ok").Inc()
		metrics.SourceAvailable.WithLabelValues(name).Set(1)
		return
	case isQueryRejection(err):
		h.lastError = err.Error()
		metrics.SourceRequestsTotal.WithLabelValues(name, "rejected").Inc()
		return
	}

	h.consecutiveFailures++
	h.totalFailures++
	h.lastFailureAt = now
	h.lastError = err.Error()
	if h.lastTimeout {
		metrics.SourceRequestsTotal.WithLabelValues(name, "timeout").Inc()
	} else {
		metrics.SourceRequestsTotal.WithLabelValues(name, "error").Inc()
	}
	if h.consecutiveFailures >= s.breaker.Threshold {
		h.blockedUntil = now.Add(s.breaker.blockFor(h.consecutiveFailures))
		metrics.SourceAvailable.WithLabelValues(name).Set(0)
	}
}

// isQueryRejection matches 4xx answers other than 429: the upstream refused
// this particular query, it is not down.
func isQueryRejection(err error) bool {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Code >= 400 && statusErr.Code < 500 && statusErr.Code != http.StatusTooManyRequests
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

func (s *Service) SourceDiagnostics() []domain.SourceDiagnostics {
	infos := s.Sources()
	if len(infos) == 0 {
		return nil
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	items := make([]domain.SourceDiagnostics, 0, len(infos))
	for _, info := range infos {
		item := domain.SourceDiagnostics{
			Name:    info.Name,
			Label:   info.Label,
			Kind:    info.Kind,
			Enabled: info.Enabled,
		}
		if h := s.health[strings.ToLower(info.Name)]; h != nil {
			h.fill(&item, s.breaker)
		}
		items = append(items, item)
	}
	return items
}

func (h *sourceHealth) fill(item *domain.SourceDiagnostics, policy BreakerPolicy) {
	item.ConsecutiveFailures = h.consecutiveFailures
	if h.consecutiveFailures >= policy.Threshold && !h.blockedUntil.IsZero() {
		item.BlockedUntil = timePtr(h.blockedUntil)
	}
	item.LastError = h.lastError
	if !h.lastSuccessAt.IsZero() {
		item.LastSuccessAt = timePtr(h.lastSuccessAt)
	}
	if !h.lastFailureAt.IsZero() {
		item.LastFailureAt = timePtr(h.lastFailureAt)
	}
	item.LastLatencyMS = h.lastLatency.Milliseconds()
	item.LastTimeout = h.lastTimeout
	item.LastQuery = h.lastQuery
	item.TotalRequests = h.totalRequests
	item.TotalFailures = h.totalFailures
	item.TimeoutCount = h.timeoutCount
}

func timePtr(t time.Time) *time.Time {
	return &t
}
