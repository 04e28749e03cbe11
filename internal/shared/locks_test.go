package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*OrderLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewOrderLocker(client, time.Second)
	locker.retries = 2
	locker.backoff = 5 * time.Millisecond
	return locker, mr
}

func TestOrderLockerAcquireRelease(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	release, err := locker.Acquire(ctx, 42)
	require.NoError(t, err)
	require.True(t, mr.Exists(OrderLockKey(42)))

	release()
	require.False(t, mr.Exists(OrderLockKey(42)))

	// Re-acquisition after release succeeds immediately.
	release, err = locker.Acquire(ctx, 42)
	require.NoError(t, err)
	release()
}

func TestOrderLockerContention(t *testing.T) {
	ctx := context.Background()
	locker, _ := newTestLocker(t)

	release, err := locker.Acquire(ctx, 42)
	require.NoError(t, err)
	defer release()

	_, err = locker.Acquire(ctx, 42)
	require.ErrorIs(t, err, ErrLockBusy)

	// A different order is unaffected.
	other, err := locker.Acquire(ctx, 43)
	require.NoError(t, err)
	other()
}

func TestOrderLockerReleaseIgnoresLostLock(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	release, err := locker.Acquire(ctx, 42)
	require.NoError(t, err)

	// Simulate expiry and takeover by another holder.
	mr.FastForward(2 * time.Second)
	takeover, err := locker.Acquire(ctx, 42)
	require.NoError(t, err)

	// The stale release must not free the new holder's lock.
	release()
	require.True(t, mr.Exists(OrderLockKey(42)))
	takeover()
}

func TestOrderLockerNilClient(t *testing.T) {
	var locker *OrderLocker
	release, err := locker.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release()
}

func TestFormatCents(t *testing.T) {
	require.Equal(t, "$12,345.67", FormatCents(1234567))
	require.Equal(t, "$0.05", FormatCents(5))
	require.Equal(t, "-$1.00", FormatCents(-100))
}
