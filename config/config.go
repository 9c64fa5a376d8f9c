package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 服务运行配置，全部来自环境变量
type Config struct {
	ServerPort  string
	Environment string
	AdminToken  string
	CORSOrigins []string

	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	RateLimit RateLimitConfig

	// 题目缓存过期时间，0 表示不使用缓存
	QuestionCacheTTL time.Duration
}

// DatabaseConfig 数据库连接配置
type DatabaseConfig struct {
	Driver   string // mysql 或 sqlite
	DSN      string // 显式DSN，sqlite时为文件路径
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	LogLevel string // silent, error, warn, info
}

// RedisConfig Redis连接配置，Addr为空时不启用Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// QueueConfig 投票事件队列配置
type QueueConfig struct {
	Driver         string // memory, redis, rocketmq
	NameServerAddr string
	GroupName      string
}

// RateLimitConfig 限流配置，单位为每秒请求数
type RateLimitConfig struct {
	Enabled     bool
	GlobalRate  int
	GlobalBurst int
	UserRate    int
	UserBurst   int
}

// IsDevelopment 是否开发环境
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load 从环境变量加载配置
func Load() (Config, error) {
	cfg := Config{
		ServerPort:  getEnv("SERVER_PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		AdminToken:  strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		CORSOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", "*")),
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "mysql")),
			DSN:      strings.TrimSpace(os.Getenv("DB_DSN")),
			User:     getEnv("DB_USER", "voteuser"),
			Password: getEnv("DB_PASSWORD", "votepassword"),
			Host:     getEnv("DB_HOST", "mysql"),
			Port:     getEnv("DB_PORT", "3306"),
			Name:     getEnv("DB_NAME", "pollsdb"),
			LogLevel: strings.ToLower(getEnv("DB_LOG_LEVEL", "warn")),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Queue: QueueConfig{
			Driver:         strings.ToLower(getEnv("QUEUE_DRIVER", "memory")),
			NameServerAddr: getEnv("ROCKETMQ_NAMESRV_ADDR", "localhost:9876"),
			GroupName:      getEnv("ROCKETMQ_GROUP", "polls"),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getEnv("ENABLE_RATE_LIMIT", "false") == "true",
			GlobalRate:  100,
			GlobalBurst: 200,
			UserRate:    10,
			UserBurst:   20,
		},
	}

	var err error
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if rate, err := getInt("GLOBAL_RATE_LIMIT", 0); err != nil {
		return Config{}, err
	} else if rate > 0 {
		cfg.RateLimit.GlobalRate = rate
		cfg.RateLimit.GlobalBurst = rate * 2
	}
	if rate, err := getInt("USER_RATE_LIMIT", 0); err != nil {
		return Config{}, err
	} else if rate > 0 {
		cfg.RateLimit.UserRate = rate
		cfg.RateLimit.UserBurst = rate * 2
	}

	ttl := getEnv("QUESTION_CACHE_TTL", "5m")
	if cfg.QuestionCacheTTL, err = time.ParseDuration(ttl); err != nil {
		return Config{}, fmt.Errorf("invalid QUESTION_CACHE_TTL: %w", err)
	}

	switch cfg.Database.Driver {
	case "mysql", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	switch cfg.Queue.Driver {
	case "memory", "redis", "rocketmq":
	default:
		return Config{}, fmt.Errorf("unsupported QUEUE_DRIVER %q", cfg.Queue.Driver)
	}
	if cfg.Queue.Driver == "redis" && cfg.Redis.Addr == "" {
		return Config{}, fmt.Errorf("QUEUE_DRIVER=redis requires REDIS_ADDR")
	}

	return cfg, nil
}

// MySQLDSN 构建MySQL连接串
func (d DatabaseConfig) MySQLDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// getEnv 获取环境变量，不存在时返回默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
