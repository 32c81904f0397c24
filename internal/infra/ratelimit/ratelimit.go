// Package ratelimit implements per-identity admission control. Each named
// policy keeps its own key space under the configured prefix.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/go-redis/redis/v8"
)

const (
	KindSlidingWindow = "sliding_window"
	KindTokenBucket   = "token_bucket"
)

type Result struct {
	Success   bool
	Remaining int
	Reset     time.Time
}

type Limiter interface {
	Limit(ctx context.Context, identity string) (Result, error)
}

// Policy is a named limiter configuration.
type Policy struct {
	Name     string
	Kind     string
	Limit    int
	Window   time.Duration
	Refill   int
	Interval time.Duration
	Message  string
}

func PolicyFrom(name string, cfg config.Policy) Policy {
	return Policy{
		Name:     name,
		Kind:     cfg.Kind,
		Limit:    cfg.Limit,
		Window:   cfg.Window,
		Refill:   cfg.Refill,
		Interval: cfg.Interval,
		Message:  cfg.Message,
	}
}

func (p Policy) Validate() error {
	switch p.Kind {
	case KindSlidingWindow:
		if p.Limit <= 0 || p.Window <= 0 {
			return fmt.Errorf("ratelimit %s: limit and window must be positive", p.Name)
		}
	case KindTokenBucket:
		if p.Limit <= 0 || p.Refill <= 0 || p.Interval <= 0 {
			return fmt.Errorf("ratelimit %s: limit, refill and interval must be positive", p.Name)
		}
	default:
		return fmt.Errorf("ratelimit %s: unknown kind %q", p.Name, p.Kind)
	}
	return nil
}

func key(prefix, policy, identity string) string {
	return prefix + ":" + policy + ":" + identity
}

// New returns a Redis backed limiter shared across instances, or an in-process
// one when client is nil.
func New(client *redis.Client, prefix string, policy Policy) (Limiter, error) {
	if client == nil {
		return NewMemory(policy)
	}
	return NewRedis(client, prefix, policy)
}
