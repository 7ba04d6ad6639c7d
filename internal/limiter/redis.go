package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpiry increments the key and, on the first hit of a window, sets
// its TTL. Running as a Lua script keeps the increment and the expiry set
// atomic, so a crash between them can never leave an immortal counter.
var incrWithExpiry = redis.NewScript(`
local value = redis.call("INCR", KEYS[1])
if value == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return value
`)

// RedisStore counts in the shared Redis instance so every pushgate replica
// sees the same windows.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisStore wraps an open client. timeout bounds each counting call so a
// wedged Redis degrades to the fallback instead of stalling requests.
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	return &RedisStore{client: client, timeout: timeout}
}

// Incr implements CounterStore.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, err := incrWithExpiry.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, err
	}
	return value, nil
}

// Ping reports whether the shared store is currently reachable; used by the
// health endpoint to flag degraded mode.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}
