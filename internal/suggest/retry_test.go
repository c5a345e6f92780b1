package suggest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

func TestRetryWithBackoffRetriesTransient(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}, func() error {
		attempts++
		if attempts < 3 {
			return io.ErrUnexpectedEOF
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithBackoffStopsOnPermanentError(t *testing.T) {
	attempts := 0
	permanent := errors.New("http 400")
	err := RetryWithBackoff(context.Background(), RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) || attempts != 1 {
		t.Fatalf("expected one attempt with permanent error, got %d attempts, err=%v", attempts, err)
	}
}

func TestRetryWithBackoffHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func() error {
		attempts++
		cancel()
		return errors.New("connection reset by peer")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestRetryWithBackoffSkipsRetryWithoutBudget(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	attempts := 0
	err := RetryWithBackoff(ctx, RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond}, func() error {
		attempts++
		return io.ErrUnexpectedEOF
	})
	if !errors.Is(err, io.ErrUnexpectedEOF) || attempts != 1 {
		t.Fatalf("expected one attempt returning the source error, got %d attempts, err=%v", attempts, err)
	}
}

func TestIsTransientError(t *testing.T) {
	transient := []error{
		context.DeadlineExceeded,
		io.EOF,
		errors.New("dial tcp: connection refused"),
		&HTTPStatusError{Upstream: "places", Code: 503},
		fmt.Errorf("places: all type groups failed: %w", &HTTPStatusError{Upstream: "places", Code: 502}),
	}
	for _, err := range transient {
		if !isTransientError(err) {
			t.Errorf("expected %v to be transient", err)
		}
	}
	permanent := []error{
		nil,
		context.Canceled,
		&HTTPStatusError{Upstream: "directory", Code: 404},
		&HTTPStatusError{Upstream: "places", Code: 429},
		&HTTPStatusError{Upstream: "places", Code: 500, Body: "upstream timeout"},
	}
	for _, err := range permanent {
		if isTransientError(err) {
			t.Errorf("expected %v not to be transient", err)
		}
	}
}

func TestHTTPStatusErrorMessage(t *testing.T) {
	if got := (&HTTPStatusError{Upstream: "places", Code: 503, Body: "busy"}).Error(); got != "places http 503: busy" {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := (&HTTPStatusError{Upstream: "directory", Code: 502}).Error(); got != "directory http 502" {
		t.Fatalf("unexpected message: %q", got)
	}
}
