package routes

import (
	"log"
	"net/http"
	"time"

	"polls-backend/cache"
	"polls-backend/config"
	"polls-backend/handlers"
	"polls-backend/mq"
	"polls-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// Dependencies 路由需要的组件，Redis、Queue、Limiter 可以为 nil
type Dependencies struct {
	Config  config.Config
	Service handlers.PollService
	DB      handlers.Pinger
	Redis   *redis.Client
	Queue   mq.Queue
	Hub     *websocket.Hub
	Results websocket.ResultsSource
	Limiter cache.RateLimiter
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(deps Dependencies) *gin.Engine {
	if !deps.Config.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// 配置CORS中间件
	origins := deps.Config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", handlers.VoterHeader, handlers.AdminTokenHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowsAnyOrigin(origins),
		MaxAge:           12 * time.Hour,
	}))
	router.SetHTMLTemplate(handlers.LoadTemplates())
	router.Use(handlers.VoterIdentity(deps.Config.IsDevelopment()))

	rateLimit := handlers.NewRateLimit(deps.Limiter)

	// 页面路由
	pages := handlers.NewPageHandler(deps.Service)
	router.GET("/", pages.Root)
	polls := router.Group("/polls")
	{
		polls.GET("/", pages.Index)
		polls.GET("/:id/", pages.Detail)
		polls.POST("/:id/vote/", rateLimit.Middleware(), pages.Vote)
		polls.GET("/:id/results/", pages.Results)
	}

	// 定义API路由
	health := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.Queue, rateLimit)
	pollAPI := handlers.NewPollHandler(deps.Service)
	admin := handlers.NewAdminHandler(deps.Service, deps.Queue)
	ws := websocket.NewHandler(deps.Hub, deps.Results)

	api := router.Group("/api")
	{
		// 健康检查端点
		api.GET("/health", health.HealthCheck)
		api.GET("/status", health.SystemStatus)

		questions := api.Group("/questions")
		{
			questions.GET("", pollAPI.GetQuestions)
			questions.GET("/:id", pollAPI.GetQuestion)
			questions.POST("/:id/votes", rateLimit.Middleware(), pollAPI.SubmitVote)
			questions.GET("/:id/results", pollAPI.GetResults)
			questions.GET("/:id/ws", ws.HandleConnection)
		}

		// 管理员相关API
		adminGroup := api.Group("/admin", handlers.AdminAuth(deps.Config.AdminToken))
		{
			adminGroup.GET("/questions", admin.ListQuestions)
			adminGroup.POST("/questions", admin.CreateQuestion)
			adminGroup.PATCH("/questions/:id", admin.UpdateQuestion)
			adminGroup.POST("/questions/:id/choices", admin.AddChoice)
			adminGroup.GET("/queue", admin.QueueStats)
			adminGroup.POST("/queue/retry", admin.RetryDeadLetters)
		}
	}

	return router
}

func allowsAnyOrigin(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine, port string) *Server {
	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	// 在单独的goroutine中启动服务器
	go func() {
		log.Printf("服务器启动在 %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务器启动失败: %v", err)
		}
	}()

	return srv
}
