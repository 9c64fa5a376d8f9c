package handlers

import (
	"log"
	"net/http"

	"polls-backend/models"
	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

// PollHandler 投票JSON API
type PollHandler struct {
	svc PollService
}

// NewPollHandler 创建投票API处理程序
func NewPollHandler(svc PollService) *PollHandler {
	return &PollHandler{svc: svc}
}

// SubmitVoteInput 投票请求体，choice_id 缺省视为没有选择
type SubmitVoteInput struct {
	ChoiceID *uint `json:"choice_id"`
}

// QuestionDetail 问题详情响应
type QuestionDetail struct {
	*models.Question
	CanVote       bool `json:"can_vote"`
	CurrentChoice uint `json:"current_choice,omitempty"`
}

// GetQuestions 最新发布的问题
func (h *PollHandler) GetQuestions(c *gin.Context) {
	questions, err := h.svc.Index(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

// GetQuestion 可投票问题的详情
func (h *PollHandler) GetQuestion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	ctx := c.Request.Context()
	q, err := h.svc.Detail(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	current, err := h.svc.CurrentChoice(ctx, id, VoterID(c))
	if err != nil {
		log.Printf("读取投票人当前选择失败: %v", err)
	}
	c.JSON(http.StatusOK, QuestionDetail{Question: q, CanVote: true, CurrentChoice: current})
}

// SubmitVote 投票或改票
func (h *PollHandler) SubmitVote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	var input SubmitVoteInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	receipt, err := h.svc.CastVote(c.Request.Context(), service.VoteCommand{
		QuestionID: id,
		VoterID:    VoterID(c),
		ChoiceID:   input.ChoiceID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if receipt.Created {
		status = http.StatusCreated
	}
	c.JSON(status, receipt)
}

// GetResults 已发布问题的计票结果
func (h *PollHandler) GetResults(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}
	results, err := h.svc.Results(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
