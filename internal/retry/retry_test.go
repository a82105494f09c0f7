package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keystone-labs/propsync-core/internal/core/domain"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return domain.ErrRateLimited
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_DoesNotRetryPermanent(t *testing.T) {
	calls := 0
	mapErr := domain.NewMappingError("S-1", "listed_date", "unparseable")
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return mapErr
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for permanent failure, got %d", calls)
	}
	var target *domain.MappingError
	if !errors.As(err, &target) {
		t.Error("expected MappingError to survive wrapping")
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return domain.ErrWriteConflict
	})
	if !errors.Is(err, domain.ErrWriteConflict) {
		t.Fatalf("expected wrapped ErrWriteConflict, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(), func(ctx context.Context) error {
		t.Error("operation should not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoValue_ReturnsResult(t *testing.T) {
	got, err := DoValue(context.Background(), fastConfig(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestTransient_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", domain.ErrRateLimited, true},
		{"write conflict", domain.ErrWriteConflict, true},
		{"source unavailable", domain.ErrSourceUnavailable, true},
		{"store unavailable", domain.ErrStoreUnavailable, true},
		{"deadline", context.DeadlineExceeded, true},
		{"validation", domain.ErrValidationFailed, false},
		{"mapping", domain.NewMappingError("k", "f", "r"), false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		if got := Transient(tt.err); got != tt.want {
			t.Errorf("%s: Transient = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBackoffDelay_Capped(t *testing.T) {
	maxDelay := 10 * time.Millisecond
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffDelay(attempt, time.Millisecond, maxDelay)
		if d > maxDelay {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, d, maxDelay)
		}
	}
}
