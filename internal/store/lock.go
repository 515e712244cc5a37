package store

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SessionLocker serialises work per session ID. Distinct IDs never block each other.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  *semaphore.Weighted
	refs int
}

// NewSessionLocker creates an empty locker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{locks: make(map[string]*sessionLock)}
}

// Lock blocks until the session is free or ctx is done. The returned func
// releases the lock and is safe to call more than once.
func (l *SessionLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[sessionID]
	if !ok {
		sl = &sessionLock{sem: semaphore.NewWeighted(1)}
		l.locks[sessionID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	if err := sl.sem.Acquire(ctx, 1); err != nil {
		l.release(sessionID, sl)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			sl.sem.Release(1)
			l.release(sessionID, sl)
		})
	}, nil
}

func (l *SessionLocker) release(sessionID string, sl *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, sessionID)
	}
}

// Len returns the number of sessions currently locked or waiting.
func (l *SessionLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
