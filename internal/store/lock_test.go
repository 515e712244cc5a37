package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/interview-probe/internal/domain"
)

func TestSessionLockerSerialisesSameSession(t *testing.T) {
	locker := NewSessionLocker()
	var inside, maxInside atomic.Int32

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			unlock, err := locker.Lock(ctx, "s1")
			if err != nil {
				return err
			}
			defer unlock()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, maxInside.Load())
	assert.Zero(t, locker.Len())
}

func TestSessionLockerDistinctSessionsDoNotBlock(t *testing.T) {
	locker := NewSessionLocker()
	unlockA, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
	unlockB()

	assert.Equal(t, 1, locker.Len())
}

func TestSessionLockerCancelledWait(t *testing.T) {
	locker := NewSessionLocker()
	unlock, err := locker.Lock(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Zero(t, locker.Len())
}

func TestSweeperEvictsIdleSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := clock.NewMock()
	repo := NewMemoryStore(mock)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.NewSession("old", mock.Now())))
	mock.Add(2 * time.Hour)
	require.NoError(t, repo.Save(ctx, domain.NewSession("fresh", mock.Now())))

	sweepCtx, cancel := context.WithCancel(ctx)
	evicted := make(chan []string, 1)
	done := StartSweeper(sweepCtx, repo, SweeperConfig{
		TTL:      time.Hour,
		Interval: time.Minute,
		Clock:    mock,
		OnEvict:  func(ids []string) { evicted <- ids },
	})

	mock.Add(time.Minute)
	select {
	case ids := <-evicted:
		assert.Equal(t, []string{"old"}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run")
	}

	cancel()
	<-done
	assert.Equal(t, 1, repo.Len())
}
