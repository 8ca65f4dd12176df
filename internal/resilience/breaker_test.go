package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failN(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := b.Execute(context.Background(), func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	failN(t, b, 3)

	if got := b.State(); got != "open" {
		t.Fatalf("expected open, got %s", got)
	}
	err := b.Execute(context.Background(), func() error {
		t.Error("call dispatched through an open circuit")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	failN(t, b, 2)
	if err := b.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	failN(t, b, 2)

	if got := b.State(); got != "closed" {
		t.Fatalf("expected closed after reset, got %s", got)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	clock := time.Now()
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return clock }

	failN(t, b, 1)
	if got := b.State(); got != "open" {
		t.Fatalf("expected open, got %s", got)
	}

	clock = clock.Add(31 * time.Second)

	// First probe fails, circuit snaps back open.
	if err := b.Execute(context.Background(), func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected probe to run, got %v", err)
	}
	if got := b.State(); got != "open" {
		t.Fatalf("expected re-open after failed probe, got %s", got)
	}

	clock = clock.Add(31 * time.Second)

	// Successful probe closes the circuit.
	if err := b.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Fatalf("expected closed after successful probe, got %s", got)
	}
}

func TestBreakerCancelledContext(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func() error {
		t.Error("call dispatched with cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Fatalf("caller cancellation must not trip the breaker, got %s", got)
	}
}
