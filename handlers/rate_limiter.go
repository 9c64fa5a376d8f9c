package handlers

import (
	"log"
	"net/http"
	"sync/atomic"

	"polls-backend/cache"

	"github.com/gin-gonic/gin"
)

// RateLimiterStats 限流统计信息
type RateLimiterStats struct {
	Enabled          bool  `json:"enabled"`
	TotalRequests    int64 `json:"totalRequests"`
	AllowedRequests  int64 `json:"allowedRequests"`
	RejectedRequests int64 `json:"rejectedRequests"`
}

// RateLimit 限流中间件及其统计
type RateLimit struct {
	limiter  cache.RateLimiter
	total    atomic.Int64
	allowed  atomic.Int64
	rejected atomic.Int64
}

// NewRateLimit 创建限流中间件，limiter 为 nil 时不限流
func NewRateLimit(limiter cache.RateLimiter) *RateLimit {
	return &RateLimit{limiter: limiter}
}

// Middleware 按投票人ID限流，未识别投票人时按客户端IP
func (r *RateLimit) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.limiter == nil {
			c.Next()
			return
		}
		r.total.Add(1)

		key := VoterID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		allowed, err := r.limiter.Allow(c.Request.Context(), key)
		if err != nil {
			// 限流器不可用时放行
			log.Printf("限流检查失败: %v", err)
			allowed = true
		}
		if !allowed {
			r.rejected.Add(1)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please try again later",
			})
			return
		}

		r.allowed.Add(1)
		c.Next()
	}
}

// Stats 当前统计
func (r *RateLimit) Stats() RateLimiterStats {
	return RateLimiterStats{
		Enabled:          r.limiter != nil,
		TotalRequests:    r.total.Load(),
		AllowedRequests:  r.allowed.Load(),
		RejectedRequests: r.rejected.Load(),
	}
}
