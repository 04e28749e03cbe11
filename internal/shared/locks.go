package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OrderLockKey builds redis keys for per-order critical sections.
func OrderLockKey(orderID int64) string {
	return fmt.Sprintf("ledger:order:%d:lock", orderID)
}

// ErrLockBusy indicates the critical section is held by another caller.
var ErrLockBusy = errors.New("shared: lock busy")

// OrderLocker serialises lifecycle transitions per order so two concurrent
// requests cannot double-consume inventory before either posts its
// idempotency-guarding entry.
type OrderLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewOrderLocker constructs an OrderLocker with sane defaults.
func NewOrderLocker(client *redis.Client, ttl time.Duration) *OrderLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &OrderLocker{client: client, ttl: ttl, retries: 20, backoff: 50 * time.Millisecond}
}

// Acquire takes the per-order lock, waiting briefly if contended. The
// returned release func is safe to call exactly once.
func (l *OrderLocker) Acquire(ctx context.Context, orderID int64) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := OrderLockKey(orderID)
	token := uuid.NewString()
	for attempt := 0; attempt <= l.retries; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// Release only if we still own the lock.
				const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
				_ = l.client.Eval(context.Background(), script, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	return nil, fmt.Errorf("%w: order %d", ErrLockBusy, orderID)
}
