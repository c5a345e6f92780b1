package apihttp

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"studiofinder/suggestservice/internal/logattr"
	"studiofinder/suggestservice/internal/metrics"
)

const (
	routeSession = "/suggest/ws"

	maxTrackedClients = 10000
	clientIdleTTL     = 5 * time.Minute
)

// accessRecorder captures what a handler wrote. A hijacked connection is a
// WebSocket session whose lifetime, not latency, is worth recording.
type accessRecorder struct {
	http.ResponseWriter
	status   int
	size     int
	hijacked bool
}

func (rw *accessRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *accessRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *accessRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	conn, buf, err := hijacker.Hijack()
	if err == nil {
		rw.status = http.StatusSwitchingProtocols
		rw.hijacked = true
	}
	return conn, buf, err
}

// accessMiddleware records metrics and one access log line per request.
// It runs inside the tracing handler so log lines carry the trace id.
func accessMiddleware(logger *slog.Logger, clientIP func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &accessRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		route := routeLabel(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		if rw.hijacked {
			metrics.SessionDuration.Observe(elapsed.Seconds())
		} else {
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		}

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", rw.status),
			slog.Int("bytes", rw.size),
			slog.Int64("durationMs", elapsed.Milliseconds()),
			slog.String("clientIP", clientIP(r)),
		}
		if spanCtx := trace.SpanContextFromContext(r.Context()); spanCtx.HasTraceID() {
			attrs = append(attrs, slog.String("traceID", spanCtx.TraceID().String()))
		}
		attrs = append(attrs, suggestAttrs(r)...)
		if userAgent := strings.TrimSpace(r.UserAgent()); userAgent != "" {
			attrs = append(attrs, logattr.Text("userAgent", userAgent, 120))
		}
		logger.LogAttrs(r.Context(), requestLogLevel(route, rw.status), "http request", attrs...)
	})
}

// suggestAttrs logs what was asked without the caller's coordinates: a
// location is only reported as present or absent.
func suggestAttrs(r *http.Request) []slog.Attr {
	q := r.URL.Query()
	var attrs []slog.Attr
	if text := strings.TrimSpace(q.Get("q")); text != "" {
		attrs = append(attrs, logattr.Text("q", text, 80))
	}
	if address := strings.TrimSpace(q.Get("address")); address != "" {
		attrs = append(attrs, logattr.Text("address", address, 80))
	}
	if variant := strings.TrimSpace(q.Get("variant")); variant != "" {
		attrs = append(attrs, logattr.Text("variant", variant, 16))
	}
	if q.Has("lat") || q.Has("lng") {
		attrs = append(attrs, slog.Bool("located", true))
	}
	return attrs
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("panic recovered",
					slog.Any("error", recovered),
					slog.String("method", r.Method),
					slog.String("route", routeLabel(r.URL.Path)),
					slog.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func routeLabel(path string) string {
	switch path {
	case "/health", "/metrics", "/suggest", "/suggest/classify", "/suggest/geocode", routeSession:
		return path
	}
	if strings.HasPrefix(path, "/suggest/sources") {
		return "/suggest/sources"
	}
	return "/other"
}

// requestLogLevel keeps per-keystroke traffic out of info logs.
func requestLogLevel(route string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case route == "/health" || route == "/suggest" || route == "/suggest/classify" || route == "/suggest/geocode":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter gives every client address its own token bucket, so one
// fast typist cannot starve everyone else. The table is bounded because the
// address may come from a forwarded header.
type clientLimiter struct {
	rps     rate.Limit
	burst   int
	max     int
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		max:     maxTrackedClients,
		idleTTL: clientIdleTTL,
		now:     time.Now,
		buckets: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket, ok := l.buckets[client]
	if !ok {
		if len(l.buckets) >= l.max {
			l.evictLocked(now)
		}
		bucket = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[client] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// evictLocked drops idle buckets, then the least recently seen ones until
// there is room for one more.
func (l *clientLimiter) evictLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
	if len(l.buckets) < l.max {
		return
	}
	keys := make([]string, 0, len(l.buckets))
	for key := range l.buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return l.buckets[keys[i]].lastSeen.Before(l.buckets[keys[j]].lastSeen)
	})
	for _, key := range keys[:len(keys)-l.max+1] {
		delete(l.buckets, key)
	}
}

// rateLimitMiddleware answers 429 once a client exhausts its bucket.
func rateLimitMiddleware(limiter *clientLimiter, clientIP func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if !limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
