package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestCalculateDelay(t *testing.T) {
	c := NewConfig(5, 100*time.Millisecond, 2, 350*time.Millisecond)
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := c.CalculateDelay(i + 1); got != w {
			t.Errorf("attempt %d: expected %v, got %v", i+1, w, got)
		}
	}
}

func TestDefaultConfigDoesNotRetry(t *testing.T) {
	calls := 0
	outcome, err := DefaultConfig().Do(context.Background(), Hooks{After: immediate}, func(context.Context, int) error {
		calls++
		return errors.New("down")
	})
	if calls != 1 || outcome != OutcomeExhausted || err == nil {
		t.Fatalf("expected one exhausted call, got calls=%d outcome=%s err=%v", calls, outcome, err)
	}
}

func TestDoRecovers(t *testing.T) {
	var retries []int
	outcome, err := NewConfig(3, time.Millisecond, 2, time.Second).Do(context.Background(), Hooks{
		After:   immediate,
		OnRetry: func(retry int, _ time.Duration, _ error) { retries = append(retries, retry) },
	}, func(_ context.Context, attempt int) error {
		if attempt < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || outcome != OutcomeRecovered {
		t.Fatalf("expected recovery, got %s %v", outcome, err)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("unexpected retry callbacks %v", retries)
	}

	var stats Statistics
	stats.Record(outcome, len(retries))
	stats.Record(OutcomeExhausted, 3)
	if s := stats.Snapshot(); s.Retries != 5 || s.Recovered != 1 || s.Exhausted != 1 {
		t.Errorf("unexpected statistics %+v", s)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("timeout")
	calls := 0
	outcome, err := NewConfig(3, time.Millisecond, 1, 0).Do(context.Background(), Hooks{
		After:     immediate,
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
	}, func(context.Context, int) error {
		calls++
		return fatal
	})
	if calls != 1 || outcome != OutcomeAbandoned || !errors.Is(err, fatal) {
		t.Fatalf("expected abandoned after one call, got calls=%d %s %v", calls, outcome, err)
	}
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, _ := NewConfig(3, time.Hour, 1, 0).Do(ctx, Hooks{}, func(context.Context, int) error {
		return errors.New("down")
	})
	if outcome != OutcomeAbandoned {
		t.Fatalf("expected abandoned on cancelled context, got %s", outcome)
	}
}
