package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired means another instance holds the booking lock.
var ErrLockNotAcquired = errors.New("booking lock not acquired")

// BookingLocker serializes booking writes across instances with a per-key
// Redis lock. It only narrows the window of the check-then-write race; the
// database exclusion constraint is what makes double booking impossible.
type BookingLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookingLocker creates a Redis-backed locker with the given hold TTL.
func NewBookingLocker(rdb *redis.Client, ttl time.Duration) *BookingLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &BookingLocker{rdb: rdb, ttl: ttl}
}

// WithLock runs fn while holding the named lock. The token guard ensures an
// instance never releases a lock that expired and was re-acquired elsewhere.
func (l *BookingLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := "lock:" + key
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire booking lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}
	defer func() {
		_ = l.release(ctx, lockKey, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *BookingLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.rdb, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}
