package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease serialises sweeps across replicas.
type Lease interface {
	// TryAcquire returns a token when the lease was free, or ok=false when held elsewhere.
	TryAcquire(ctx context.Context, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, token string) error
}

// ErrLeaseLost is returned by Release when the lease expired or changed owner.
var ErrLeaseLost = errors.New("lease no longer held")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease is a single-key SET NX lease in Redis.
type RedisLease struct {
	redis *redis.Client
	key   string
}

// NewRedisLease creates a lease stored under key.
func NewRedisLease(redisClient *redis.Client, key string) *RedisLease {
	return &RedisLease{redis: redisClient, key: key}
}

func (l *RedisLease) TryAcquire(ctx context.Context, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := l.redis.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lease in Redis: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLease) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, l.redis, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lease in Redis: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Holder returns the token currently holding the lease, or "" when free.
func (l *RedisLease) Holder(ctx context.Context) (string, error) {
	token, err := l.redis.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read lease from Redis: %w", err)
	}
	return token, nil
}
