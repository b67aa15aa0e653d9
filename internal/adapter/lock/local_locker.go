package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/simaogato/cardguard-backend/internal/domain"
)

// LocalLocker implements domain.CardLocker inside a single process.
// Entries are dropped once no goroutine holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	cards map[uuid.UUID]*cardLock
}

type cardLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker creates an empty LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{cards: make(map[uuid.UUID]*cardLock)}
}

// Lock blocks until the card is free or ctx ends
func (l *LocalLocker) Lock(ctx context.Context, cardID uuid.UUID) (func(), error) {
	l.mu.Lock()
	cl, ok := l.cards[cardID]
	if !ok {
		cl = &cardLock{sem: make(chan struct{}, 1)}
		l.cards[cardID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	select {
	case cl.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-cl.sem
				l.release(cardID, cl)
			})
		}, nil
	case <-ctx.Done():
		l.release(cardID, cl)
		return nil, fmt.Errorf("%w: card %s: %v", domain.ErrLockNotAcquired, cardID, ctx.Err())
	}
}

func (l *LocalLocker) release(cardID uuid.UUID, cl *cardLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl.refs--
	if cl.refs == 0 {
		delete(l.cards, cardID)
	}
}

// held reports how many card entries are live
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cards)
}
