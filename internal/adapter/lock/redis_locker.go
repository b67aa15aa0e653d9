package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

const keyPrefix = "cardguard:lock:card:"

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements domain.CardLocker with SET NX PX leases in Redis,
// for deployments running more than one instance.
type RedisLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder can block a card.
func NewRedisLocker(client redis.UniversalClient, ttl, retryInterval time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryInterval <= 0 {
		retryInterval = 25 * time.Millisecond
	}
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		logger:        logger,
	}
}

// Lock polls until the lease is taken, ctx ends, or one ttl has passed
func (l *RedisLocker) Lock(ctx context.Context, cardID uuid.UUID) (func(), error) {
	key := keyPrefix + cardID.String()
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire card lock: %w", err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: card %s: %v", domain.ErrLockNotAcquired, cardID, ctx.Err())
		case <-time.After(l.retryInterval):
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	// The caller's context may already be done; release must still reach Redis
	ctx, cancel := context.WithTimeout(context.Background(), l.ttl)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("failed to release card lock", zap.String("key", key), zap.Error(err))
	}
}
