package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter 限流器接口，key 通常是投票人ID或客户端IP
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// 令牌桶Lua脚本，时间单位毫秒
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1] .. ":tokens"
local timestamp_key = KEYS[1] .. ":ts"
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])

local tokens = tonumber(redis.call("get", tokens_key) or burst)
local last_update = tonumber(redis.call("get", timestamp_key) or 0)

local elapsed = math.max(0, now - last_update)
local new_tokens = math.min(burst, tokens + elapsed * rate / 1000)

if new_tokens < 1 then
	return 0
end

new_tokens = new_tokens - 1
redis.call("set", tokens_key, new_tokens, "PX", 2000)
redis.call("set", timestamp_key, now, "PX", 2000)
return 1
`)

// RedisRateLimiter 基于Redis令牌桶的限流器，先过全局桶再过用户桶，多实例共享额度
type RedisRateLimiter struct {
	client      *redis.Client
	keyPrefix   string
	globalRate  int
	globalBurst int
	userRate    int
	userBurst   int
}

// NewRedisRateLimiter 创建Redis限流器
func NewRedisRateLimiter(client *redis.Client, keyPrefix string, globalRate, globalBurst, userRate, userBurst int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:      client,
		keyPrefix:   fmt.Sprintf("rate_limit:%s", keyPrefix),
		globalRate:  globalRate,
		globalBurst: globalBurst,
		userRate:    userRate,
		userBurst:   userBurst,
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := l.take(ctx, l.keyPrefix+":global", l.globalRate, l.globalBurst)
	if err != nil || !ok {
		return ok, err
	}
	return l.take(ctx, l.keyPrefix+":user:"+key, l.userRate, l.userBurst)
}

func (l *RedisRateLimiter) take(ctx context.Context, key string, ratePerSec, burst int) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := tokenBucketScript.Run(ctx, l.client, []string{key}, now, ratePerSec, burst).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// LocalRateLimiter 进程内限流器，未配置Redis时使用
type LocalRateLimiter struct {
	global    *rate.Limiter
	userRate  rate.Limit
	userBurst int

	mu    sync.Mutex
	users map[string]*userLimiter
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalRateLimiter 创建进程内限流器
func NewLocalRateLimiter(globalRate, globalBurst, userRate, userBurst int) *LocalRateLimiter {
	return &LocalRateLimiter{
		global:    rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		userRate:  rate.Limit(userRate),
		userBurst: userBurst,
		users:     make(map[string]*userLimiter),
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	if !l.global.Allow() {
		return false, nil
	}

	l.mu.Lock()
	u, ok := l.users[key]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(l.userRate, l.userBurst)}
		l.users[key] = u
	}
	u.lastSeen = time.Now()
	l.mu.Unlock()

	return u.limiter.Allow(), nil
}

// Sweep 清理长时间未出现的用户限流器
func (l *LocalRateLimiter) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, u := range l.users {
		if u.lastSeen.Before(cutoff) {
			delete(l.users, key)
			removed++
		}
	}
	return removed
}
