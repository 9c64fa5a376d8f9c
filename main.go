package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polls-backend/cache"
	"polls-backend/config"
	"polls-backend/database"
	"polls-backend/mq"
	"polls-backend/repository"
	"polls-backend/routes"
	"polls-backend/service"
	"polls-backend/websocket"

	"github.com/redis/go-redis/v9"
)

// 本地限流器清理周期
const limiterSweepInterval = 5 * time.Minute

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// initCacheAndLimiter 有Redis时使用分布式锁、问题缓存和Redis限流，否则退回进程内实现
func initCacheAndLimiter(ctx context.Context, cfg config.Config, redisClient *redis.Client) (service.Locker, service.QuestionCache, cache.RateLimiter) {
	var locker service.Locker = cache.NewLocalLocker()
	var questionCache service.QuestionCache
	var limiter cache.RateLimiter

	if redisClient != nil {
		lockService := cache.NewDistributedLockService(redisClient)
		locker = lockService
		if cfg.QuestionCacheTTL > 0 {
			questionCache = cache.NewQuestionCache(redisClient, lockService, cfg.QuestionCacheTTL)
			log.Println("问题缓存初始化成功")
		}
	}

	if !cfg.RateLimit.Enabled {
		return locker, questionCache, nil
	}
	rl := cfg.RateLimit
	if redisClient != nil {
		limiter = cache.NewRedisRateLimiter(redisClient, "polls_api", rl.GlobalRate, rl.GlobalBurst, rl.UserRate, rl.UserBurst)
	} else {
		local := cache.NewLocalRateLimiter(rl.GlobalRate, rl.GlobalBurst, rl.UserRate, rl.UserBurst)
		go sweepLimiter(ctx, local)
		limiter = local
	}
	log.Printf("限流器已初始化：全局速率=%d/秒，用户速率=%d/秒", rl.GlobalRate, rl.UserRate)
	return locker, questionCache, limiter
}

func sweepLimiter(ctx context.Context, limiter *cache.LocalRateLimiter) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := limiter.Sweep(limiterSweepInterval); removed > 0 {
				log.Printf("清理空闲用户限流器 %d 个", removed)
			}
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 初始化数据库连接
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	if cfg.IsDevelopment() {
		if err := database.SeedSampleData(db, time.Now().UTC()); err != nil {
			log.Printf("警告: 示例数据创建失败: %v", err)
		}
	}

	// 初始化Redis连接，不可用时继续运行
	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("警告: Redis初始化失败，使用进程内锁和限流: %v", err)
	}

	locker, questionCache, limiter := initCacheAndLimiter(ctx, cfg, redisClient)

	// 初始化消息队列（按配置选择RocketMQ、Redis或内存队列）
	queue := mq.NewQueue(cfg.Queue, redisClient)

	hub := websocket.NewHub()
	go hub.Run(ctx)

	repo := repository.NewPollRepository(db)
	svc := service.NewPollService(service.Dependencies{
		Repo:   repo,
		Locker: locker,
		Cache:  questionCache,
		Events: queue,
		Logger: logger,
	})

	// 投票事件触发结果重算并推送给订阅者
	if err := queue.Start(broadcastResults(svc, hub)); err != nil {
		log.Printf("警告: 消息队列消费者启动失败: %v", err)
	}
	log.Printf("消息队列状态: %v", queue.Stats(ctx))

	router := routes.SetupRouter(routes.Dependencies{
		Config:  cfg,
		Service: svc,
		DB:      repo,
		Redis:   redisClient,
		Queue:   queue,
		Hub:     hub,
		Results: func(ctx context.Context, questionID uint) (interface{}, error) {
			return svc.Results(ctx, questionID)
		},
		Limiter: limiter,
	})
	srv := routes.StartServer(router, cfg.ServerPort)

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务器强制关闭: %v", err)
	}

	stop()
	queue.Close()
	cache.CloseRedis(redisClient)
	database.Close(db)

	log.Println("服务器优雅关闭")
}

// broadcastResults 处理投票消息：重新统计并广播结果
func broadcastResults(svc *service.PollService, hub *websocket.Hub) mq.Handler {
	return func(ctx context.Context, msg mq.VoteMessage) error {
		results, err := svc.Results(ctx, msg.QuestionID)
		if err != nil {
			log.Printf("错误: 无法获取问题 %d 的结果: %v", msg.QuestionID, err)
			return err
		}
		hub.BroadcastToQuestion(msg.QuestionID, websocket.NewResultsMessage(msg.QuestionID, results))
		return nil
	}
}
