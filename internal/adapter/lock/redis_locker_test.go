package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

// newTestRedis connects to CARDGUARD_TEST_REDIS_ADDR or skips the test
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CARDGUARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CARDGUARD_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())

	return client
}

func TestRedisLocker(t *testing.T) {
	client := newTestRedis(t)
	locker := NewRedisLocker(client, 500*time.Millisecond, 10*time.Millisecond, zaptest.NewLogger(t))
	cardID := uuid.New()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, cardID)
	require.NoError(t, err)

	exists, err := client.Exists(ctx, keyPrefix+cardID.String()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, cardID)
	assert.True(t, errors.Is(err, domain.ErrLockNotAcquired))

	unlock()

	exists, err = client.Exists(ctx, keyPrefix+cardID.String()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestRedisLocker_ReleaseKeepsForeignLease(t *testing.T) {
	client := newTestRedis(t)
	locker := NewRedisLocker(client, time.Second, 10*time.Millisecond, zaptest.NewLogger(t))
	cardID := uuid.New()
	key := keyPrefix + cardID.String()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, cardID)
	require.NoError(t, err)

	// Simulate expiry followed by another holder
	require.NoError(t, client.Set(ctx, key, "someone-else", time.Second).Err())
	unlock()

	value, err := client.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
	require.NoError(t, client.Del(ctx, key).Err())
}
