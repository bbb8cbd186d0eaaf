package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a lease key only when the caller still owns it.
// Owner verification and deletion must be one atomic step, otherwise a
// holder whose lease expired could delete a successor's lease.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`

// RedisStore implements domain.LeaseStore on SET NX EX plus a Lua
// compare-and-delete for release. TTL is the crash-recovery bound: an
// unreleased lease becomes acquirable again once it expires.
type RedisStore struct {
	client  *redis.Client
	release *redis.Script
}

// NewRedisStore constructs the lease store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, release: redis.NewScript(releaseScript)}
}

// Acquire attempts to take the lease, reporting false when it is held.
func (s *RedisStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Get returns the current owner token, if any.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

// Release deletes the lease when token matches the stored owner value.
func (s *RedisStore) Release(ctx context.Context, key, token string) (bool, error) {
	deleted, err := s.release.Run(ctx, s.client, []string{key}, token).Int()
	if err != nil {
		return false, fmt.Errorf("redis release script: %w", err)
	}
	return deleted == 1, nil
}
