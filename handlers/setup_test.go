package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"polls-backend/database"
	"polls-backend/models"
	"polls-backend/mq"
	"polls-backend/repository"
	"polls-backend/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "test-admin-token"

type testEnv struct {
	router *gin.Engine
	svc    *service.PollService
	repo   *repository.GormPollRepository
	queue  *mq.LocalQueue
}

// SetupTestEnvironment sets up the Gin router and an in-memory SQLite database for testing.
func SetupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	queue := mq.NewLocalQueue(64)
	t.Cleanup(queue.Close)

	repo := repository.NewPollRepository(db)
	svc := service.NewPollService(service.Dependencies{
		Repo:   repo,
		Events: queue,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	router := gin.New()
	router.Use(gin.Recovery())
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowHeaders = []string{"Origin", "Content-Type", VoterHeader, AdminTokenHeader}
	router.Use(cors.New(config))
	router.SetHTMLTemplate(LoadTemplates())
	router.Use(VoterIdentity(true))

	// Setup Routes (same as in routes.SetupRouter)
	pages := NewPageHandler(svc)
	router.GET("/", pages.Root)
	router.GET("/polls/", pages.Index)
	router.GET("/polls/:id/", pages.Detail)
	router.POST("/polls/:id/vote/", pages.Vote)
	router.GET("/polls/:id/results/", pages.Results)

	health := NewHealthHandler(repo, nil, queue, NewRateLimit(nil))
	polls := NewPollHandler(svc)
	admin := NewAdminHandler(svc, queue)
	api := router.Group("/api")
	{
		api.GET("/health", health.HealthCheck)
		api.GET("/status", health.SystemStatus)
		api.GET("/questions", polls.GetQuestions)
		api.GET("/questions/:id", polls.GetQuestion)
		api.POST("/questions/:id/votes", polls.SubmitVote)
		api.GET("/questions/:id/results", polls.GetResults)

		adminGroup := api.Group("/admin", AdminAuth(testAdminToken))
		{
			adminGroup.GET("/questions", admin.ListQuestions)
			adminGroup.POST("/questions", admin.CreateQuestion)
			adminGroup.PATCH("/questions/:id", admin.UpdateQuestion)
			adminGroup.POST("/questions/:id/choices", admin.AddChoice)
			adminGroup.GET("/queue", admin.QueueStats)
			adminGroup.POST("/queue/retry", admin.RetryDeadLetters)
		}
	}

	return &testEnv{router: router, svc: svc, repo: repo, queue: queue}
}

// createQuestion 创建一个发布时间相对当前时间偏移的问题
func (e *testEnv) createQuestion(t *testing.T, text string, pubOffset time.Duration, choices ...string) *models.Question {
	t.Helper()
	pub := time.Now().UTC().Add(pubOffset)
	q, err := e.svc.CreateQuestion(context.Background(), service.CreateQuestionInput{
		Text:    text,
		PubDate: &pub,
		Choices: choices,
	})
	require.NoError(t, err)
	return q
}
