package handlers

import (
	"embed"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"

	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

// LoadTemplates 解析内嵌的页面模板，供 router.SetHTMLTemplate 使用
func LoadTemplates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
}

// PageHandler 服务端渲染的投票页面
type PageHandler struct {
	svc PollService
}

// NewPageHandler 创建页面处理程序
func NewPageHandler(svc PollService) *PageHandler {
	return &PageHandler{svc: svc}
}

// Root 重定向到问题列表
func (h *PageHandler) Root(c *gin.Context) {
	c.Redirect(http.StatusFound, "/polls/")
}

// Index 最新的问题列表
func (h *PageHandler) Index(c *gin.Context) {
	questions, err := h.svc.Index(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":     "Polls",
		"Notice":    popNotice(c),
		"Questions": questions,
	})
}

// Detail 投票表单，不可投票时带提示跳回列表
func (h *PageHandler) Detail(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.renderError(c, service.ErrNotFound)
		return
	}
	h.renderDetail(c, id, "")
}

// Vote 处理表单投票，成功后跳转到结果页
func (h *PageHandler) Vote(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.renderError(c, service.ErrNotFound)
		return
	}

	cmd := service.VoteCommand{QuestionID: id, VoterID: VoterID(c)}
	if raw := strings.TrimSpace(c.PostForm("choice")); raw != "" {
		if choiceID, err := strconv.ParseUint(raw, 10, 64); err == nil {
			picked := uint(choiceID)
			cmd.ChoiceID = &picked
		}
	}

	_, err := h.svc.CastVote(c.Request.Context(), cmd)
	switch {
	case err == nil:
		c.Redirect(http.StatusFound, "/polls/"+strconv.FormatUint(uint64(id), 10)+"/results/")
	case errors.Is(err, service.ErrNoChoice):
		h.renderDetail(c, id, NoticeNoChoice)
	case errors.Is(err, service.ErrForbidden):
		setNotice(c, NoticeNotAllowed)
		c.Redirect(http.StatusFound, "/polls/")
	case errors.Is(err, service.ErrBusy):
		setNotice(c, NoticeVoteInProcess)
		c.Redirect(http.StatusFound, "/polls/"+strconv.FormatUint(uint64(id), 10)+"/")
	default:
		h.renderError(c, err)
	}
}

// Results 结果页
func (h *PageHandler) Results(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.renderError(c, service.ErrNotFound)
		return
	}
	results, err := h.svc.Results(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.HTML(http.StatusOK, "results.html", gin.H{
		"Title":   results.Text,
		"Notice":  popNotice(c),
		"Results": results,
	})
}

func (h *PageHandler) renderDetail(c *gin.Context, id uint, errorMessage string) {
	ctx := c.Request.Context()
	q, err := h.svc.Detail(ctx, id)
	if errors.Is(err, service.ErrForbidden) {
		setNotice(c, NoticeNotOpen)
		c.Redirect(http.StatusFound, "/polls/")
		return
	}
	if err != nil {
		h.renderError(c, err)
		return
	}

	current, err := h.svc.CurrentChoice(ctx, id, VoterID(c))
	if err != nil {
		log.Printf("读取投票人当前选择失败: %v", err)
	}
	c.HTML(http.StatusOK, "detail.html", gin.H{
		"Title":         q.Text,
		"Notice":        popNotice(c),
		"Question":      q,
		"CurrentChoice": current,
		"ErrorMessage":  errorMessage,
	})
}

func (h *PageHandler) renderError(c *gin.Context, err error) {
	status := statusFor(err)
	title := http.StatusText(status)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("页面渲染失败 %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		message = "Something went wrong, please try again later."
	}
	c.HTML(status, "error.html", gin.H{
		"Title":   title,
		"Notice":  "",
		"Message": message,
	})
}
