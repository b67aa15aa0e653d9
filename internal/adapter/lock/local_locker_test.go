package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

func TestLocalLocker_SerializesPerCard(t *testing.T) {
	locker := NewLocalLocker()
	cardID := uuid.New()

	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), cardID)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Equal(t, 0, locker.held())
}

func TestLocalLocker_DifferentCardsDoNotBlock(t *testing.T) {
	locker := NewLocalLocker()

	unlockA, err := locker.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlockB, err := locker.Lock(ctx, uuid.New())
	require.NoError(t, err)
	unlockB()

	assert.Equal(t, 1, locker.held())
}

func TestLocalLocker_ContextEnds(t *testing.T) {
	locker := NewLocalLocker()
	cardID := uuid.New()

	unlock, err := locker.Lock(context.Background(), cardID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, cardID)
	assert.True(t, errors.Is(err, domain.ErrLockNotAcquired))
	assert.Equal(t, 1, locker.held(), "the waiter must drop its reference")

	unlock()
	assert.Equal(t, 0, locker.held())
}

func TestLocalLocker_UnlockIsIdempotent(t *testing.T) {
	locker := NewLocalLocker()
	cardID := uuid.New()

	unlock, err := locker.Lock(context.Background(), cardID)
	require.NoError(t, err)
	unlock()
	unlock()

	// A second holder is not released by the stale unlock
	unlock2, err := locker.Lock(context.Background(), cardID)
	require.NoError(t, err)
	unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, cardID)
	assert.True(t, errors.Is(err, domain.ErrLockNotAcquired))

	unlock2()
	assert.Equal(t, 0, locker.held())
}
