package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"gigflow/apperr"
	"gigflow/store"
)

func fast() Policy {
	return Policy{Attempts: 3, Timeout: time.Second, Initial: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := fast().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanentErrors(t *testing.T) {
	for _, perm := range []error{store.ErrSlotFull, apperr.ErrJobNotOpen} {
		calls := 0
		err := fast().Do(context.Background(), func(context.Context) error {
			calls++
			return perm
		})
		if !errors.Is(err, perm) {
			t.Fatalf("expected %v, got %v", perm, err)
		}
		if calls != 1 {
			t.Fatalf("%v: expected a single call, got %d", perm, calls)
		}
	}
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("timeout")
	err := fast().Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestAttemptTimeoutIsApplied(t *testing.T) {
	p := Policy{Attempts: 1, Timeout: 10 * time.Millisecond}
	err := p.Once(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGetReturnsValue(t *testing.T) {
	v, err := Get(context.Background(), fast(), func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("expected 7, got %d %v", v, err)
	}
}
