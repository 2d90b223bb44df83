package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type locker interface {
	Key(parts ...string) string
	Lock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, owner string) (bool, error)
}

// RedisLease is a Lease backed by a Redis key that names its owner. The TTL
// bounds how long a crashed holder can block the others.
type RedisLease struct {
	store    locker
	key      string
	ttl      time.Duration
	instance string
}

func NewRedisLease(store locker, env, instance string, ttl time.Duration) (*RedisLease, error) {
	if store == nil {
		return nil, errors.New("redis client is required for the cron lease")
	}
	if ttl <= 0 {
		return nil, errors.New("lease ttl must be positive")
	}
	if env == "" {
		env = "local"
	}
	return &RedisLease{store: store, key: store.Key("cron", env, "lease"), ttl: ttl, instance: instance}, nil
}

func (l *RedisLease) Hold(ctx context.Context, fn func(context.Context) error) (bool, error) {
	owner := l.instance + "/" + uuid.NewString()
	ok, err := l.store.Lock(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("take cron lease: %w", err)
	}
	if !ok {
		return false, nil
	}
	runErr := fn(ctx)
	// Release even when ctx was cancelled mid-run.
	if _, err := l.store.Unlock(context.WithoutCancel(ctx), l.key, owner); err != nil {
		return true, errors.Join(runErr, fmt.Errorf("release cron lease: %w", err))
	}
	return true, runErr
}
