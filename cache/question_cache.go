package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"polls-backend/models"
	"polls-backend/repository"

	"github.com/redis/go-redis/v9"
)

const nullValue = "NULL"

// Locker 按名字互斥执行，DistributedLockService 和 LocalLocker 都实现了它
type Locker interface {
	WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error
}

// QuestionCache 问题详情（题干、时间窗口、选项）的Redis缓存。
// 票数不进缓存，资格判断总是用当前时间重新计算
type QuestionCache struct {
	client *redis.Client
	locker Locker
	ttl    time.Duration
}

// NewQuestionCache 创建问题缓存
func NewQuestionCache(client *redis.Client, locker Locker, ttl time.Duration) *QuestionCache {
	return &QuestionCache{client: client, locker: locker, ttl: ttl}
}

func questionKey(id uint) string {
	return fmt.Sprintf("polls:question:%d", id)
}

// GetQuestion 读缓存，未命中时在锁内调用 load 回源（防击穿），
// 不存在的问题缓存空值（防穿透），过期时间加随机抖动（防雪崩）
func (c *QuestionCache) GetQuestion(ctx context.Context, id uint, load func(ctx context.Context) (*models.Question, error)) (*models.Question, error) {
	key := questionKey(id)

	if q, hit, err := c.read(ctx, key); hit {
		return q, err
	}

	var result *models.Question
	err := c.locker.WithLock(ctx, "cache_lock:"+key, 5*time.Second, func() error {
		// 双重检查，其他实例可能已经回填
		if q, hit, err := c.read(ctx, key); hit {
			result = q
			return err
		}

		q, err := load(ctx)
		if errors.Is(err, repository.ErrQuestionNotFound) {
			if setErr := c.client.Set(ctx, key, nullValue, c.ttl/4).Err(); setErr != nil {
				log.Printf("设置空值缓存失败: %v", setErr)
			}
			return err
		}
		if err != nil {
			return err
		}

		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal question: %w", err)
		}
		if err := c.client.Set(ctx, key, data, c.jitter()).Err(); err != nil {
			log.Printf("设置缓存失败: %v", err)
		}
		result = q
		return nil
	})
	if errors.Is(err, ErrLockNotAcquired) {
		// 拿不到锁时直接回源，不阻塞请求
		return load(ctx)
	}
	return result, err
}

// InvalidateQuestion 删除缓存，管理员修改问题后调用
func (c *QuestionCache) InvalidateQuestion(ctx context.Context, id uint) error {
	return c.client.Del(ctx, questionKey(id)).Err()
}

func (c *QuestionCache) read(ctx context.Context, key string) (*models.Question, bool, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("查询缓存失败: %v", err)
		}
		return nil, false, nil
	}
	if data == nullValue {
		return nil, true, repository.ErrQuestionNotFound
	}

	var q models.Question
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		log.Printf("解析缓存数据失败: %v", err)
		return nil, false, nil
	}
	return &q, true, nil
}

func (c *QuestionCache) jitter() time.Duration {
	spread := int64(c.ttl / 10)
	if spread <= 0 {
		return c.ttl
	}
	return c.ttl + time.Duration(rand.Int63n(spread))
}
