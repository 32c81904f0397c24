package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// slidingWindowScript weights the previous fixed window by how much of it
// still overlaps the sliding window.
var slidingWindowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local previous = tonumber(redis.call('GET', KEYS[2]) or '0')
local elapsed = now % window
local weighted = math.floor(previous * (1 - elapsed / window)) + current
if weighted >= limit then
  return {0, 0}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], window * 2 + 1000)
end
return {1, limit - weighted - 1}
`)

var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local bucket = redis.call('HMGET', KEYS[1], 'refilled_at', 'tokens')
local refilled_at = now
local tokens = capacity
if bucket[1] then
  refilled_at = tonumber(bucket[1])
  tokens = tonumber(bucket[2])
end
if now >= refilled_at + interval then
  local periods = math.floor((now - refilled_at) / interval)
  tokens = math.min(capacity, tokens + periods * refill)
  refilled_at = refilled_at + periods * interval
end
if tokens <= 0 then
  return {0, 0, refilled_at + interval}
end
tokens = tokens - 1
redis.call('HSET', KEYS[1], 'refilled_at', refilled_at, 'tokens', tokens)
redis.call('PEXPIRE', KEYS[1], math.ceil(capacity / refill) * interval + interval)
return {1, tokens, refilled_at + interval}
`)

type RedisLimiter struct {
	client *redis.Client
	prefix string
	policy Policy
	now    func() time.Time
}

func NewRedis(client *redis.Client, prefix string, policy Policy) (*RedisLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, prefix: prefix, policy: policy, now: time.Now}, nil
}

func (l *RedisLimiter) Limit(ctx context.Context, identity string) (Result, error) {
	base := key(l.prefix, l.policy.Name, identity)
	nowMs := l.now().UnixMilli()

	switch l.policy.Kind {
	case KindSlidingWindow:
		window := l.policy.Window.Milliseconds()
		idx := nowMs / window
		keys := []string{base + ":" + strconv.FormatInt(idx, 10), base + ":" + strconv.FormatInt(idx-1, 10)}
		res, err := slidingWindowScript.Run(ctx, l.client, keys, l.policy.Limit, nowMs, window).Int64Slice()
		if err != nil {
			return Result{}, err
		}
		if len(res) != 2 {
			return Result{}, fmt.Errorf("ratelimit: unexpected reply %v", res)
		}
		return Result{
			Success:   res[0] == 1,
			Remaining: int(res[1]),
			Reset:     time.UnixMilli((idx + 1) * window),
		}, nil
	default:
		interval := l.policy.Interval.Milliseconds()
		res, err := tokenBucketScript.Run(ctx, l.client, []string{base}, l.policy.Limit, interval, l.policy.Refill, nowMs).Int64Slice()
		if err != nil {
			return Result{}, err
		}
		if len(res) != 3 {
			return Result{}, fmt.Errorf("ratelimit: unexpected reply %v", res)
		}
		return Result{
			Success:   res[0] == 1,
			Remaining: int(res[1]),
			Reset:     time.UnixMilli(res[2]),
		}, nil
	}
}
