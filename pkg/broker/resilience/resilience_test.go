package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

func TestWithTimeout_CompletesInTime(t *testing.T) {
	t.Parallel()

	err := WithTimeout(context.Background(), OpSend, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("WithTimeout returned %v", err)
	}
}

func TestWithTimeout_PropagatesError(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	err := WithTimeout(context.Background(), OpSend, func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestWithTimeout_ParentCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, OpReceive, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatal("expected an error from the cancelled parent")
	}
}

func TestWithRetry_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithRetry(context.Background(), RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return sberr.NewConnectionError("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry returned %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithRetry(context.Background(), RetryPolicy{MaxRetries: 5, InitialBackoff: time.Millisecond}, func() error {
		calls++
		return sberr.NewEntityNotFound("queue", "orders")
	})
	if sberr.CodeOf(err) != sberr.CodeEntityNotFound {
		t.Fatalf("err = %v, want EntityNotFound", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retries on permanent errors)", calls)
	}
}

func TestWithRetry_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	err := WithRetry(context.Background(), RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond}, func() error {
		calls++
		return sberr.NewConnectionError("still down")
	})
	if sberr.CodeOf(err) != sberr.CodeConnectionError {
		t.Fatalf("err = %v, want the last ConnectionError", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want initial attempt plus 2 retries", calls)
	}
}

func TestBreaker_DomainErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	b := NewBreaker("domain", BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		HalfOpenMaxCalls: 1,
	})
	for i := 0; i < 5; i++ {
		err := b.Execute(func() error { return sberr.NewEntityNotFound("queue", "orders") })
		if sberr.CodeOf(err) != sberr.CodeEntityNotFound {
			t.Fatalf("call %d: err = %v, want EntityNotFound", i, err)
		}
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("breaker tripped on domain errors: %v", err)
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker("store", BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		HalfOpenMaxCalls: 1,
	})
	boom := errors.New("down")

	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	err := b.Execute(func() error { return nil })
	if sberr.CodeOf(err) != sberr.CodeCircuitBreakerOpen {
		t.Fatalf("err = %v, want CircuitBreakerOpen", err)
	}
	if b.State() != "open" {
		t.Fatalf("state = %q, want open", b.State())
	}
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	t.Parallel()

	b := NewBreaker("probe", BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     50 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})
	b.Execute(func() error { return errors.New("down") })

	time.Sleep(100 * time.Millisecond)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if b.State() != "closed" {
		t.Fatalf("state = %q, want closed after a successful probe", b.State())
	}
}

func TestRegistry_GetAndReset(t *testing.T) {
	t.Parallel()

	r := NewRegistry(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1})
	b := r.Get("store")
	if r.Get("store") != b {
		t.Fatal("Get must return the same breaker per name")
	}

	b.Execute(func() error { return errors.New("down") })
	if b.State() != "open" {
		t.Fatalf("state = %q, want open", b.State())
	}

	r.Reset("store")
	if r.Get("store").State() != "closed" {
		t.Fatal("Reset should yield a fresh closed breaker")
	}
}
