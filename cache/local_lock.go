package cache

import (
	"context"
	"sync"
	"time"
)

// LocalLocker 进程内的按名字加锁，未配置Redis时代替分布式锁
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

// WithLock 与 DistributedLockService.WithLock 语义一致，expiry 仅用作等待上限
func (l *LocalLocker) WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error {
	lock := l.acquireRef(name)
	defer l.releaseRef(name, lock)

	timer := time.NewTimer(expiry)
	defer timer.Stop()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrLockNotAcquired
	}
	defer func() { <-lock.ch }()

	return action()
}

func (l *LocalLocker) acquireRef(name string) *localLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[name]
	if !ok {
		lock = &localLock{ch: make(chan struct{}, 1)}
		l.locks[name] = lock
	}
	lock.refs++
	return lock
}

func (l *LocalLocker) releaseRef(name string, lock *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, name)
	}
}
