package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"polls-backend/models"
	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

// PollService 处理程序依赖的投票服务，*service.PollService 实现
type PollService interface {
	Index(ctx context.Context) ([]service.QuestionSummary, error)
	Detail(ctx context.Context, questionID uint) (*models.Question, error)
	CastVote(ctx context.Context, cmd service.VoteCommand) (*service.VoteReceipt, error)
	Results(ctx context.Context, questionID uint) (*service.Results, error)
	CurrentChoice(ctx context.Context, questionID uint, voterID string) (uint, error)

	AdminList(ctx context.Context) ([]service.QuestionSummary, error)
	CreateQuestion(ctx context.Context, in service.CreateQuestionInput) (*models.Question, error)
	AddChoice(ctx context.Context, questionID uint, text string) (*models.Choice, error)
	UpdateQuestion(ctx context.Context, questionID uint, in service.UpdateQuestionInput) (*models.Question, error)
}

// statusFor 业务错误到HTTP状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNoChoice), errors.Is(err, service.ErrInvalidQuestion):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrVoterRequired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError 以 {"error": "..."} 返回错误，内部错误不暴露细节
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("请求处理失败 %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
