package ratelimit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

type grantLog struct {
	mu    sync.Mutex
	times map[string][]time.Time
}

func (g *grantLog) record(key string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.times[key] = append(g.times[key], at)
}

func newRecordedLimiter(interval time.Duration, overrides map[string]time.Duration) (*Limiter, *grantLog) {
	l := New(interval, overrides)
	log := &grantLog{times: make(map[string][]time.Time)}
	l.onGrant = log.record
	return l, log
}

func TestLimiter_FirstAcquireIsImmediate(t *testing.T) {
	l := New(time.Hour, nil)

	start := time.Now()
	if err := l.Acquire(context.Background(), "a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first acquisition should not wait, took %v", elapsed)
	}
}

func TestLimiter_ConcurrentGrantsAreSpaced(t *testing.T) {
	for _, workers := range []int{1, 4, 16} {
		interval := 15 * time.Millisecond
		l, log := newRecordedLimiter(interval, nil)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 3; j++ {
					if err := l.Acquire(context.Background(), "shared"); err != nil {
						t.Errorf("Acquire failed: %v", err)
					}
				}
			}()
		}
		wg.Wait()

		grants := log.times["shared"]
		if len(grants) != workers*3 {
			t.Fatalf("workers=%d: expected %d grants, got %d", workers, workers*3, len(grants))
		}
		sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })
		for i := 1; i < len(grants); i++ {
			if gap := grants[i].Sub(grants[i-1]); gap < interval {
				t.Errorf("workers=%d: gap %d = %v, want >= %v", workers, i, gap, interval)
			}
		}
	}
}

func TestLimiter_BucketsAreIndependent(t *testing.T) {
	l := New(200*time.Millisecond, nil)
	ctx := context.Background()

	if err := l.Acquire(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.Acquire(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("bucket b should not wait for bucket a, took %v", elapsed)
	}
}

func TestLimiter_Override(t *testing.T) {
	l := New(time.Hour, map[string]time.Duration{"fast": 0})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "fast"); err != nil {
			t.Fatal(err)
		}
	}
	if got := l.Interval("fast"); got != 0 {
		t.Errorf("expected override 0, got %v", got)
	}
	if got := l.Interval("other"); got != time.Hour {
		t.Errorf("expected default interval, got %v", got)
	}
}

func TestLimiter_ContextCancelledWhileWaiting(t *testing.T) {
	l, log := newRecordedLimiter(time.Hour, nil)

	if err := l.Acquire(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, "a")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if n := len(log.times["a"]); n != 1 {
		t.Errorf("cancelled acquisition must not be recorded, got %d grants", n)
	}

	// The slot must have been released.
	l.overrides["a"] = 0
	if err := l.Acquire(context.Background(), "a"); err != nil {
		t.Errorf("Acquire after cancellation failed: %v", err)
	}
}

func TestIntervalFromRPM(t *testing.T) {
	tests := []struct {
		rpm  int
		want time.Duration
	}{
		{0, 0},
		{-5, 0},
		{60, time.Second},
		{1000, 60 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := IntervalFromRPM(tt.rpm); got != tt.want {
			t.Errorf("IntervalFromRPM(%d) = %v, want %v", tt.rpm, got, tt.want)
		}
	}
}
