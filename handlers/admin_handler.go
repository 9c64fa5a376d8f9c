package handlers

import (
	"crypto/subtle"
	"log"
	"net/http"

	"polls-backend/mq"
	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader 管理接口的令牌请求头
const AdminTokenHeader = "X-Admin-Token"

// AdminAuth 校验管理令牌，未配置令牌时管理接口全部关闭
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin API is disabled"})
			return
		}
		given := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin token"})
			return
		}
		c.Next()
	}
}

// AdminHandler 问题管理和队列运维接口
type AdminHandler struct {
	svc   PollService
	queue mq.Queue
}

// NewAdminHandler 创建管理处理程序，queue 可以为 nil
func NewAdminHandler(svc PollService, queue mq.Queue) *AdminHandler {
	return &AdminHandler{svc: svc, queue: queue}
}

// AddChoiceInput 添加选项请求体
type AddChoiceInput struct {
	Text string `json:"choice_text" binding:"required"`
}

// ListQuestions 所有问题，包括未发布的
func (h *AdminHandler) ListQuestions(c *gin.Context) {
	questions, err := h.svc.AdminList(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

// CreateQuestion 创建问题和初始选项
func (h *AdminHandler) CreateQuestion(c *gin.Context) {
	var input service.CreateQuestionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := h.svc.CreateQuestion(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("管理员创建问题: ID=%d, Choices=%d", q.ID, len(q.Choices))
	c.JSON(http.StatusCreated, q)
}

// UpdateQuestion 修改可投票标记或截止时间
func (h *AdminHandler) UpdateQuestion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	var input service.UpdateQuestionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := h.svc.UpdateQuestion(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// AddChoice 给问题添加选项
func (h *AdminHandler) AddChoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	var input AddChoiceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	choice, err := h.svc.AddChoice(c.Request.Context(), id, input.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, choice)
}

// QueueStats 投票事件队列的状态
func (h *AdminHandler) QueueStats(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Queue is not configured"})
		return
	}
	c.JSON(http.StatusOK, h.queue.Stats(c.Request.Context()))
}

// RetryDeadLetters 把死信队列的消息重新投递，只有Redis队列支持
func (h *AdminHandler) RetryDeadLetters(c *gin.Context) {
	retrier, ok := h.queue.(mq.DeadLetterRetrier)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Queue does not keep dead letters"})
		return
	}
	count, err := retrier.RetryDeadLetters(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("重新投递死信消息 %d 条", count)
	c.JSON(http.StatusOK, gin.H{"retried": count})
}
