package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "lock:sweeper"

// releaseLockScript deletes the key only while it still holds our token.
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// SweepLock is a Redis lease that keeps replicas from sweeping at the same
// time.
type SweepLock struct {
	redis    redis.Cmdable
	ttl      time.Duration
	newToken func() string
}

// NewSweepLock constructs SweepLock.
func NewSweepLock(client redis.Cmdable, ttl time.Duration) *SweepLock {
	return &SweepLock{redis: client, ttl: ttl, newToken: uuid.NewString}
}

// Acquire takes the lease. ok is false when another holder has it. release
// must be called once the pass is done.
func (l *SweepLock) Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error) {
	token := l.newToken()
	acquired, err := l.redis.SetNX(ctx, sweepLockKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		return l.redis.Eval(ctx, releaseLockScript, []string{sweepLockKey}, token).Err()
	}
	return release, true, nil
}
