package cache

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DistributedLockService 基于redsync的分布式锁
type DistributedLockService struct {
	rs *redsync.Redsync
}

// NewDistributedLockService 使用现有的Redis客户端创建分布式锁服务
func NewDistributedLockService(client *redis.Client) *DistributedLockService {
	pool := goredis.NewPool(client)
	log.Println("分布式锁初始化成功")
	return &DistributedLockService{rs: redsync.New(pool)}
}

func (s *DistributedLockService) newMutex(name string, expiry time.Duration) *redsync.Mutex {
	return s.rs.NewMutex(name,
		redsync.WithExpiry(expiry),
		redsync.WithTries(5),
		redsync.WithRetryDelay(50*time.Millisecond),
		redsync.WithDriftFactor(0.01),
	)
}

// WithLock 在锁内执行 action，重试用尽仍未拿到锁时返回 ErrLockNotAcquired
func (s *DistributedLockService) WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error {
	mutex := s.newMutex(name, expiry)
	if err := mutex.LockContext(ctx); err != nil {
		var taken redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return ErrLockNotAcquired
		}
		return err
	}
	defer func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			log.Printf("释放锁 %s 失败: %v", name, err)
		}
	}()

	return action()
}
