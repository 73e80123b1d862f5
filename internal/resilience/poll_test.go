package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoll_ReturnsWhenDone(t *testing.T) {
	var calls int
	got, err := Poll(context.Background(), PollConfig{Interval: time.Millisecond, MaxPolls: 10}, func(_ context.Context) (string, bool, error) {
		calls++
		return "ended", calls == 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ended" || calls != 3 {
		t.Errorf("got (%q, %d calls), want (ended, 3)", got, calls)
	}
}

func TestPoll_MaxPollsGuard(t *testing.T) {
	var calls int
	_, err := Poll(context.Background(), PollConfig{Interval: time.Millisecond, MaxPolls: 4}, func(_ context.Context) (int, bool, error) {
		calls++
		return calls, false, nil
	})
	if !errors.Is(err, ErrPollLimit) {
		t.Fatalf("expected ErrPollLimit, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected exactly 4 polls, got %d", calls)
	}
}

func TestPoll_PropagatesError(t *testing.T) {
	boom := errors.New("provider down")
	_, err := Poll(context.Background(), PollConfig{Interval: time.Millisecond}, func(_ context.Context) (int, bool, error) {
		return 0, false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestPoll_StopsOnContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Poll(ctx, PollConfig{Interval: 5 * time.Millisecond}, func(_ context.Context) (int, bool, error) {
		return 0, false, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("poll did not stop promptly: %v", elapsed)
	}
}
