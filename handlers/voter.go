package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// VoterHeader 身份提供方注入的投票人ID
	VoterHeader = "X-User-ID"
	// VoterCookie 没有请求头时使用的cookie
	VoterCookie = "voter_id"

	voterContextKey = "voter_id"
)

// VoterIdentity 解析投票人ID放入上下文。
// 请求头由前置的身份提供方注入并被信任；cookie 可以被任意浏览器伪造，
// 只有 allowCookie 为 true（开发环境）时才作为后备
func VoterIdentity(allowCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		voterID := strings.TrimSpace(c.GetHeader(VoterHeader))
		if voterID == "" && allowCookie {
			if cookie, err := c.Cookie(VoterCookie); err == nil {
				voterID = strings.TrimSpace(cookie)
			}
		}
		if voterID != "" {
			c.Set(voterContextKey, voterID)
		}
		c.Next()
	}
}

// VoterID 当前请求的投票人ID，未识别时为空
func VoterID(c *gin.Context) string {
	return c.GetString(voterContextKey)
}
