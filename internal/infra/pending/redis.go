// Package pending keeps relay requests in Redis between publish and callback.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/entity"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/go-redis/redis/v8"
)

// claimScript flips waiting to processing in one step and returns
// {claimed, previous value}.
var claimScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return {0, false}
end
local ok, state = pcall(cjson.decode, raw)
if not ok or state['status'] ~= 'waiting' then
  return {0, raw}
end
state['status'] = 'processing'
redis.call('SET', KEYS[1], cjson.encode(state), 'PX', ARGV[1])
return {1, raw}
`)

type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ repository.PendingStore = (*Store)(nil)

func New(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(id string) string {
	return fmt.Sprintf("%s:request:%s", s.prefix, id)
}

func (s *Store) channel(id string) string {
	return fmt.Sprintf("%s:events:%s", s.prefix, id)
}

func (s *Store) Put(ctx context.Context, messageID string, req entity.PendingRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(messageID), data, s.ttl).Err()
}

func (s *Store) Get(ctx context.Context, messageID string) (entity.PendingRequest, bool, error) {
	raw, err := s.client.Get(ctx, s.key(messageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.PendingRequest{}, false, nil
	}
	if err != nil {
		return entity.PendingRequest{}, false, err
	}
	var req entity.PendingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return entity.PendingRequest{}, false, fmt.Errorf("pending: decode %s: %w", messageID, err)
	}
	return req, true, nil
}

func (s *Store) Claim(ctx context.Context, messageID string) (entity.PendingRequest, bool, error) {
	res, err := claimScript.Run(ctx, s.client, []string{s.key(messageID)}, s.ttl.Milliseconds()).Slice()
	if err != nil {
		return entity.PendingRequest{}, false, err
	}
	if len(res) != 2 {
		return entity.PendingRequest{}, false, fmt.Errorf("pending: unexpected claim reply %v", res)
	}
	raw, _ := res[1].(string)
	var prev entity.PendingRequest
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &prev); err != nil {
			return entity.PendingRequest{}, false, fmt.Errorf("pending: decode %s: %w", messageID, err)
		}
	}
	claimed, _ := res[0].(int64)
	return prev, claimed == 1, nil
}

func (s *Store) Resolve(ctx context.Context, messageID string, req entity.PendingRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(messageID), data, s.ttl).Err(); err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel(messageID), data).Err()
}

func (s *Store) Delete(ctx context.Context, messageID string) error {
	return s.client.Del(ctx, s.key(messageID)).Err()
}

func (s *Store) Watch(ctx context.Context, messageID string) (<-chan entity.PendingRequest, func(), error) {
	sub := s.client.Subscribe(ctx, s.channel(messageID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan entity.PendingRequest, 1)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var req entity.PendingRequest
			if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
				continue
			}
			if !req.Terminal() {
				continue
			}
			select {
			case out <- req:
			case <-ctx.Done():
			}
			return
		}
	}()
	return out, func() { _ = sub.Close() }, nil
}
