package lock

import (
	"context"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Unlock 释放锁
type Unlock func(ctx context.Context) error

// Locker 按 key 加互斥锁
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

type redisLocker struct {
	rs  *redsync.Redsync
	ttl time.Duration
}

// NewRedisLocker 基于 redsync 的分布式锁，多实例部署时使用
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	pool := goredis.NewPool(client)
	return &redisLocker{rs: redsync.New(pool), ttl: ttl}
}

func (l *redisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(16),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		_, err := mutex.UnlockContext(ctx)
		return err
	}, nil
}

// LocalLocker 进程内锁，单实例或测试使用
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) Lock(_ context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return func(context.Context) error {
		m.Unlock()
		return nil
	}, nil
}
