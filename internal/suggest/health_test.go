package suggest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBreakerPolicyBlockFor(t *testing.T) {
	policy := DefaultBreakerPolicy()
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{failures: 1, want: policy.BaseBlock},
		{failures: 3, want: policy.BaseBlock},
		{failures: 4, want: 2 * policy.BaseBlock},
		{failures: 5, want: 4 * policy.BaseBlock},
		{failures: 40, want: policy.MaxBlock},
	}
	for _, tc := range cases {
		if got := policy.blockFor(tc.failures); got != tc.want {
			t.Errorf("blockFor(%d) = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

func TestBreakerPolicyNormalized(t *testing.T) {
	got := BreakerPolicy{BaseBlock: time.Second, MaxBlock: time.Millisecond}.normalized()
	if got.Threshold != DefaultBreakerPolicy().Threshold || got.MaxBlock != time.Second {
		t.Fatalf("unexpected policy: %+v", got)
	}
}

func TestBreakerBlocksAfterThreshold(t *testing.T) {
	svc := NewService(nil, time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	failure := &HTTPStatusError{Upstream: "places", Code: 500}

	for i := 0; i < svc.breaker.Threshold-1; i++ {
		svc.recordSourceResult("places", "leeds", failure, 10*time.Millisecond, now)
	}
	if ok, _ := svc.admitSource("places", now); !ok {
		t.Fatal("source should be admitted below the threshold")
	}

	svc.recordSourceResult("places", "leeds", failure, 10*time.Millisecond, now)
	ok, until := svc.admitSource("places", now.Add(time.Second))
	if ok {
		t.Fatal("source should be blocked at the threshold")
	}
	if !until.Equal(now.Add(svc.breaker.BaseBlock)) {
		t.Fatalf("unexpected block end: %v", until)
	}
}

func TestBreakerLetsOneTrialThroughAfterBlock(t *testing.T) {
	svc := NewService(nil, time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < svc.breaker.Threshold; i++ {
		svc.recordSourceResult("places", "leeds", errors.New("connection refused"), 0, now)
	}

	lapsed := now.Add(svc.breaker.BaseBlock + time.Millisecond)
	if ok, _ := svc.admitSource("places", lapsed); !ok {
		t.Fatal("first call after the block should be admitted as a trial")
	}
	if ok, _ := svc.admitSource("places", lapsed); ok {
		t.Fatal("a second call must wait for the trial to report")
	}

	svc.recordSourceResult("places", "leeds", errors.New("connection refused"), 0, lapsed)
	ok, until := svc.admitSource("places", lapsed)
	if ok {
		t.Fatal("failed trial should re-block the source")
	}
	if want := lapsed.Add(2 * svc.breaker.BaseBlock); !until.Equal(want) {
		t.Fatalf("failed trial should double the block: got %v, want %v", until, want)
	}

	later := until.Add(time.Millisecond)
	if ok, _ := svc.admitSource("places", later); !ok {
		t.Fatal("expected another trial once the longer block lapses")
	}
	svc.recordSourceResult("places", "leeds", nil, 5*time.Millisecond, later)
	for i := 0; i < 3; i++ {
		if ok, _ := svc.admitSource("places", later); !ok {
			t.Fatal("a successful trial should close the breaker")
		}
	}
}

func TestBreakerReleaseTrial(t *testing.T) {
	svc := NewService(nil, time.Second)
	now := time.Now()
	for i := 0; i < svc.breaker.Threshold; i++ {
		svc.recordSourceResult("users", "joe", errors.New("boom"), 0, now)
	}
	lapsed := now.Add(svc.breaker.BaseBlock + time.Millisecond)
	if ok, _ := svc.admitSource("users", lapsed); !ok {
		t.Fatal("expected a trial")
	}
	svc.releaseTrial("users")
	if ok, _ := svc.admitSource("users", lapsed); !ok {
		t.Fatal("a released trial should be handed to the next call")
	}
}

func TestBreakerSuccessResets(t *testing.T) {
	svc := NewService(nil, time.Second)
	now := time.Now()
	for i := 0; i < svc.breaker.Threshold; i++ {
		svc.recordSourceResult("users", "joe", fmt.Errorf("fail %d", i), 0, now)
	}
	svc.recordSourceResult("users", "joe", nil, 5*time.Millisecond, now)
	if ok, _ := svc.admitSource("users", now); !ok {
		t.Fatal("success should clear the block")
	}
	if diag := svc.SourceDiagnostics(); diag != nil {
		t.Fatalf("service without sources has no diagnostics, got %+v", diag)
	}
}

func TestBreakerIgnoresCancellationAndQueryRejections(t *testing.T) {
	svc := NewService(nil, time.Second)
	now := time.Now()
	for i := 0; i < 5; i++ {
		svc.recordSourceResult("studios", "bath", context.Canceled, 0, now)
		svc.recordSourceResult("studios", "bath", &HTTPStatusError{Upstream: "directory", Code: 400}, 0, now)
	}
	if ok, _ := svc.admitSource("studios", now); !ok {
		t.Fatal("cancellation and rejected queries must never trip the breaker")
	}
	if failures := svc.health["studios"].totalFailures; failures != 0 {
		t.Fatalf("expected no recorded failures, got %d", failures)
	}

	for i := 0; i < svc.breaker.Threshold; i++ {
		svc.recordSourceResult("studios", "bath", &HTTPStatusError{Upstream: "directory", Code: 429}, 0, now)
	}
	if ok, _ := svc.admitSource("studios", now); ok {
		t.Fatal("repeated 429s should block the source")
	}
}

func TestIsTimeoutLikeError(t *testing.T) {
	if !isTimeoutLikeError(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded is a timeout")
	}
	if !isTimeoutLikeError(errors.New("Client.Timeout exceeded while awaiting headers")) {
		t.Fatal("client timeout text is a timeout")
	}
	if isTimeoutLikeError(errors.New("http 400")) || isTimeoutLikeError(nil) {
		t.Fatal("unexpected timeout classification")
	}
}
