package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AngeKano/repfi/config"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// RedisClientLocker holds comptable:<clientId> while a batch is assembled or triggered.
// Redis being unavailable degrades to running unlocked; the database guards still apply.
type RedisClientLocker struct {
	Locker *redislock.Client
	TTL    time.Duration
	Logger *logrus.Logger
}

func NewRedisClientLocker(locker *redislock.Client, ttl time.Duration, logger *logrus.Logger) *RedisClientLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisClientLocker{Locker: locker, TTL: ttl, Logger: logger}
}

func clientLockKey(clientId string) string {
	return fmt.Sprintf("comptable:%s", clientId)
}

func (l *RedisClientLocker) Lock(ctx context.Context, clientId string) (func(), error) {
	noop := func() {}
	if l == nil || l.Locker == nil {
		return noop, nil
	}
	key := clientLockKey(clientId)
	lock, err := l.Locker.Obtain(ctx, key, l.TTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(200*time.Millisecond), 25),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, conflictError(CodeAlreadyProcessing, "another request for this client is in progress",
			map[string]any{"clientId": clientId})
	}
	if err != nil {
		if l.Logger != nil {
			config.LogError(l.Logger, "Workflow", "RedisClientLocker.Lock", "proceeding without client lock", key, err)
		}
		return noop, nil
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}
