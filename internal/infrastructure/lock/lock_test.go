package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bibbank/realizer/internal/domain/port"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("second acquire is busy until release", func(t *testing.T) {
		l := NewLocalLocker()

		release, err := l.Acquire(ctx, "pos", time.Minute)
		require.NoError(t, err)

		_, err = l.Acquire(ctx, "pos", time.Minute)
		assert.ErrorIs(t, err, port.ErrPositionBusy)

		other, err := l.Acquire(ctx, "other", time.Minute)
		require.NoError(t, err)
		require.NoError(t, other(ctx))

		require.NoError(t, release(ctx))
		_, err = l.Acquire(ctx, "pos", time.Minute)
		assert.NoError(t, err)
	})

	t.Run("expired lock can be taken and stale release keeps it", func(t *testing.T) {
		l := NewLocalLocker()
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		l.now = func() time.Time { return now }

		stale, err := l.Acquire(ctx, "pos", time.Minute)
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		_, err = l.Acquire(ctx, "pos", time.Minute)
		require.NoError(t, err)

		require.NoError(t, stale(ctx))
		_, err = l.Acquire(ctx, "pos", time.Minute)
		assert.ErrorIs(t, err, port.ErrPositionBusy)
	})

	t.Run("concurrent acquires grant one holder", func(t *testing.T) {
		l := NewLocalLocker()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := l.Acquire(ctx, "pos", 0); err == nil {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, granted)
	})
}

func TestRedisLocker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLocker(client)

	_, err := l.Acquire(context.Background(), "pos", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, port.ErrPositionBusy)
	assert.Contains(t, err.Error(), "failed to acquire lock pos")
	assert.Error(t, l.Ping(context.Background()))
}
