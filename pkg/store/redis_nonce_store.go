package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisNonceSetScript atomically checks-and-marks a nonce used, the
// Redis-side equivalent of NonceStore.MarkUsed: a SETNX with a TTL, done
// in one round trip so two callers racing on the same nonce can never
// both observe it as available.
// KEYS[1] = nonce key ("nonce:<federate_id>:<nonce>")
// ARGV[1] = ttl seconds
var redisNonceSetScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])
local existed = redis.call("EXISTS", key)
if existed == 1 then
    return 0
end
redis.call("SET", key, "1", "EX", ttl)
return 1
`)

// RedisNonceStore keeps nonce state in Redis so that several cell
// processes can share one nonce namespace. Its methods take a context
// and return errors, so it does not satisfy crypto.NonceGuard, and no
// component in this module constructs it. Grounded on
// pkg/kernel/limiter_redis.go's Lua-script token-bucket adapter.
type RedisNonceStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisNonceStore returns a RedisNonceStore backed by addr.
func NewRedisNonceStore(addr, password string, db int, ttl time.Duration) *RedisNonceStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisNonceStore{client: rdb, ttl: ttl}
}

func (s *RedisNonceStore) key(federateID, nonce string) string {
	return fmt.Sprintf("nonce:%s:%s", federateID, nonce)
}

// Available reports whether nonce has not yet been marked used. It does
// not itself consume the nonce; only MarkUsed does (mirrors
// NonceStore.Available's read-only semantics).
func (s *RedisNonceStore) Available(ctx context.Context, federateID, nonce string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(federateID, nonce)).Result()
	if err != nil {
		return false, fmt.Errorf("redis nonce store: %w", err)
	}
	return n == 0, nil
}

// MarkUsed atomically marks nonce used, returning ErrDuplicateID if a
// concurrent caller already claimed it (single commit
// point).
func (s *RedisNonceStore) MarkUsed(ctx context.Context, federateID, nonce string) error {
	res, err := redisNonceSetScript.Run(ctx, s.client, []string{s.key(federateID, nonce)}, int64(s.ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("redis nonce store: %w", err)
	}
	set, _ := res.(int64)
	if set != 1 {
		return ErrDuplicateID
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *RedisNonceStore) Close() error {
	return s.client.Close()
}
