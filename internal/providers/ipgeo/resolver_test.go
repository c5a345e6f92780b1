package ipgeo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) (*Resolver, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	resolver := NewResolver(Config{Endpoint: server.URL + "/{ip}/json/", Client: server.Client()})
	return resolver, &hits
}

func TestLookupResolvesAndCaches(t *testing.T) {
	resolver, hits := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/81.2.69.142/json/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ip":"81.2.69.142","city":"London","country_code":"GB","latitude":51.5142,"longitude":-0.0931}`))
	})

	for i := 0; i < 2; i++ {
		location, err := resolver.Lookup(context.Background(), "81.2.69.142")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if location.Lat != 51.5142 || location.Lng != -0.0931 {
			t.Fatalf("unexpected location %+v", location)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", hits.Load())
	}
}

func TestLookupSkipsPrivateAddresses(t *testing.T) {
	resolver, hits := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called")
	})
	for _, ip := range []string{"10.1.2.3", "192.168.0.10", "172.16.5.4", "127.0.0.1", "::1", "not-an-ip", ""} {
		if _, err := resolver.Lookup(context.Background(), ip); !errors.Is(err, ErrUnresolvable) {
			t.Errorf("%q: expected ErrUnresolvable, got %v", ip, err)
		}
	}
	if hits.Load() != 0 {
		t.Fatal("unexpected upstream calls")
	}
}

func TestLookupCachesFailures(t *testing.T) {
	resolver, hits := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
	})
	for i := 0; i < 3; i++ {
		if _, err := resolver.Lookup(context.Background(), "8.8.8.8"); !errors.Is(err, ErrUnresolvable) {
			t.Fatalf("expected ErrUnresolvable, got %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected failure to be cached, got %d calls", hits.Load())
	}
}

func TestMemoryCacheIsBounded(t *testing.T) {
	resolver, hits := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"latitude":51.5,"longitude":-0.1}`))
	})
	resolver.maxCache = 4
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	resolver.now = func() time.Time { return now }

	for i := 1; i <= 20; i++ {
		now = now.Add(time.Second)
		ip := fmt.Sprintf("81.2.69.%d", i)
		if _, err := resolver.Lookup(context.Background(), ip); err != nil {
			t.Fatalf("%s: unexpected error: %v", ip, err)
		}
		if size := len(resolver.cache); size > resolver.maxCache {
			t.Fatalf("cache holds %d entries, max %d", size, resolver.maxCache)
		}
	}
	if _, ok := resolver.cache["81.2.69.20"]; !ok {
		t.Fatal("newest address should be cached")
	}
	if _, ok := resolver.cache["81.2.69.1"]; ok {
		t.Fatal("oldest address should have been evicted")
	}

	before := hits.Load()
	if _, err := resolver.Lookup(context.Background(), "81.2.69.20"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != before {
		t.Fatal("a cached address should not reach the provider")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/suggest", nil)
	r.RemoteAddr = "203.0.113.9:5123"
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
	r.Header.Set("X-Real-IP", "198.51.100.4")
	if got := ClientIP(r); got != "198.51.100.4" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}
	r.Header.Set("X-Forwarded-For", "81.2.69.142, 10.0.0.1")
	if got := ClientIP(r); got != "81.2.69.142" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}
}
