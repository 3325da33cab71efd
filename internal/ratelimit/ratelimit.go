// Package ratelimit spaces outbound calls per rate bucket. Every backend
// identity names a bucket; concurrent callers targeting the same bucket are
// serialized so that consecutive grants are at least the bucket's interval
// apart, while different buckets proceed independently.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter hands out grants per bucket key. The zero value is not usable;
// construct it with New.
type Limiter struct {
	interval  time.Duration
	overrides map[string]time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	// onGrant, when set, observes every grant with its recorded time.
	onGrant func(key string, at time.Time)
}

type bucket struct {
	// slot is a one-element semaphore; holding it means owning the bucket.
	slot    chan struct{}
	last    time.Time
	granted bool
}

// New creates a limiter with a default interval applied to every bucket that
// has no explicit override. A zero interval never waits.
func New(interval time.Duration, overrides map[string]time.Duration) *Limiter {
	o := make(map[string]time.Duration, len(overrides))
	for k, v := range overrides {
		o[k] = v
	}
	return &Limiter{
		interval:  interval,
		overrides: o,
		buckets:   make(map[string]*bucket),
	}
}

// IntervalFromRPM converts a requests-per-minute ceiling into the minimum
// spacing between two requests. rpm <= 0 means unlimited.
func IntervalFromRPM(rpm int) time.Duration {
	if rpm <= 0 {
		return 0
	}
	return time.Minute / time.Duration(rpm)
}

// Interval returns the spacing enforced for key.
func (l *Limiter) Interval(key string) time.Duration {
	if d, ok := l.overrides[key]; ok {
		return d
	}
	return l.interval
}

func (l *Limiter) bucket(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{slot: make(chan struct{}, 1)}
		l.buckets[key] = b
	}
	return b
}

// Acquire blocks until key's interval has elapsed since its previous grant,
// then records a new grant. It returns ctx.Err() if ctx ends first; in that
// case no grant is recorded.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	b := l.bucket(key)

	select {
	case b.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.slot }()

	if interval := l.Interval(key); b.granted && interval > 0 {
		if wait := time.Until(b.last.Add(interval)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	b.last = time.Now()
	b.granted = true
	if l.onGrant != nil {
		l.onGrant(key, b.last)
	}
	return nil
}
