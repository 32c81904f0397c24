package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter keeps one x/time/rate bucket per identity in process. It is
// used when no Redis address is configured, so limits are per instance.
type MemoryLimiter struct {
	policy  Policy
	every   rate.Limit
	burst   int
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewMemory(policy Policy) (*MemoryLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	var every rate.Limit
	switch policy.Kind {
	case KindSlidingWindow:
		every = rate.Every(policy.Window / time.Duration(policy.Limit))
	default:
		every = rate.Every(policy.Interval / time.Duration(policy.Refill))
	}
	return &MemoryLimiter{
		policy:  policy,
		every:   every,
		burst:   policy.Limit,
		now:     time.Now,
		buckets: make(map[string]*rate.Limiter),
	}, nil
}

func (l *MemoryLimiter) Limit(_ context.Context, identity string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[identity]
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
		l.buckets[identity] = b
	}
	now := l.now()
	allowed := b.AllowN(now, 1)
	remaining := int(b.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	reset := now
	if remaining < l.burst {
		reset = now.Add(time.Duration(float64(time.Second) / float64(l.every)))
	}
	return Result{Success: allowed, Remaining: remaining, Reset: reset}, nil
}
