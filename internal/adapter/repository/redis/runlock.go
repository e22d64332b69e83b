package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/trafficlens/trafficlens/internal/domain"
)

// releaseScript deletes the lock only when the caller still owns it, so a
// run that outlived the lock TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock implements domain.RunLock with a Redis SET NX lock. The TTL bounds
// how long a crashed run can block its successors.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRunLock creates a lock on the given key, one key per site set.
func NewRunLock(client *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *RunLock {
	return &RunLock{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.With("component", "run_lock"),
	}
}

// Acquire takes the lock, returning domain.ErrLockHeld when another run owns
// it. The release function is safe to call after the TTL has expired.
func (l *RunLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock %q: %w", l.key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	release := func() {
		// Best effort: the TTL reclaims the lock if this fails.
		if err := releaseScript.Run(context.Background(), l.client, []string{l.key}, token).Err(); err != nil {
			l.logger.Warn("failed to release run lock", "key", l.key, "error", err)
		}
	}
	return release, nil
}
