package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"polls-backend/mq"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status       string                 `json:"status"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
	StartTime    time.Time              `json:"start_time"`
	CurrentTime  time.Time              `json:"current_time"`
	GoVersion    string                 `json:"go_version"`
	NumGoroutine int                    `json:"num_goroutine"`
	NumCPU       int                    `json:"num_cpu"`
	DBStatus     string                 `json:"db_status"`
	RedisStatus  string                 `json:"redis_status"`
	Queue        map[string]interface{} `json:"queue,omitempty"`
	RateLimit    RateLimiterStats       `json:"rate_limit"`
}

var (
	startTime = time.Now()
	version   = "0.1.0" // 应用版本，可通过构建参数注入
)

// Pinger 可探活的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler 健康检查和系统状态
type HealthHandler struct {
	db        Pinger
	redis     *redis.Client
	queue     mq.Queue
	rateLimit *RateLimit
}

// NewHealthHandler 创建健康检查处理程序，redis、queue、rateLimit 都可以为 nil
func NewHealthHandler(db Pinger, redisClient *redis.Client, queue mq.Queue, rateLimit *RateLimit) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, queue: queue, rateLimit: rateLimit}
}

// HealthCheck 提供基本健康检查端点
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息，数据库不可用时返回503
func (h *HealthHandler) SystemStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	info := SystemInfo{
		Status:       "ok",
		Version:      version,
		Uptime:       time.Since(startTime).String(),
		StartTime:    startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     "ok",
		RedisStatus:  "disabled",
	}

	if err := h.db.Ping(ctx); err != nil {
		info.DBStatus = "error"
		info.Status = "degraded"
	}
	if h.redis != nil {
		info.RedisStatus = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			info.RedisStatus = "error"
			info.Status = "degraded"
		}
	}
	if h.queue != nil {
		info.Queue = h.queue.Stats(ctx)
	}
	if h.rateLimit != nil {
		info.RateLimit = h.rateLimit.Stats()
	}

	status := http.StatusOK
	if info.DBStatus != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, info)
}
