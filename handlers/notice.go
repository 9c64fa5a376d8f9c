package handlers

import (
	"github.com/gin-gonic/gin"
)

const noticeCookie = "polls_notice"

const (
	NoticeNotOpen       = "This question is not open for voting right now."
	NoticeNotAllowed    = "You are not allowed to vote on this question."
	NoticeVoteInProcess = "Your previous vote is still being recorded, please try again."
	NoticeNoChoice      = "You did not select a choice."
)

// setNotice 给下一个页面留一条一次性提示，gin负责cookie值的转义
func setNotice(c *gin.Context, message string) {
	c.SetCookie(noticeCookie, message, 60, "/", "", false, true)
}

// popNotice 读取并清除提示
func popNotice(c *gin.Context) string {
	message, err := c.Cookie(noticeCookie)
	if err != nil || message == "" {
		return ""
	}
	c.SetCookie(noticeCookie, "", -1, "/", "", false, true)
	return message
}
