package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims and conditionally appends to a sorted-set hit
// log in one round trip.
// KEYS[1] = hit log key
// ARGV[1] = now (unix microseconds)
// ARGV[2] = window (microseconds)
// ARGV[3] = limit
// ARGV[4] = unique member for this hit
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local allowed = 0
if count < limit then
    redis.call("ZADD", key, now, ARGV[4])
    count = count + 1
    allowed = 1
end
redis.call("PEXPIRE", key, math.ceil(window / 1000))

local oldest = now
local first = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if first[2] then
    oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// RedisStore shares hit logs across instances through Redis sorted sets.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. Keys are stored under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "bizflow:ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis creates a client for addr.
func DialRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (int, time.Time, bool, error) {
	res, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.prefix + ":" + key},
		now.UnixMicro(), window.Microseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(res) != 3 {
		return 0, time.Time{}, false, fmt.Errorf("redis sliding window: unexpected reply length %d", len(res))
	}
	return int(res[1]), time.UnixMicro(res[2]), res[0] == 1, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
