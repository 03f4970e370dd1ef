package middleware

import (
	"context"
	"net/http"
	"strings"

	"Hope_Community/internal/pkg"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

// Authenticator 校验 token 并返回其中的用户信息
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*pkg.Claims, error)
}

// AuthMiddleware 优先读取 HttpOnly cookie，其次 Authorization: Bearer
func AuthMiddleware(auth Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extractToken(c, cookieName)
		if tokenStr == "" {
			abort(c, http.StatusUnauthorized, "请先登录")
			return
		}
		claims, err := auth.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			if appErr, ok := pkg.AsAppError(err); ok {
				abort(c, pkg.HTTPStatus(appErr.Code), appErr.Message)
				return
			}
			abort(c, http.StatusInternalServerError, "服务器内部错误")
			return
		}

		// 注入 user_id
		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

// OptionalAuth 有合法 token 时注入用户，否则按匿名继续
func OptionalAuth(auth Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenStr := extractToken(c, cookieName); tokenStr != "" {
			if claims, err := auth.Authenticate(c.Request.Context(), tokenStr); err == nil {
				c.Set(ContextUserIDKey, claims.UserID)
				c.Set(ContextUsernameKey, claims.Username)
			}
		}
		c.Next()
	}
}

// UserID 未登录时返回 0, false
func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}

func Username(c *gin.Context) string {
	return c.GetString(ContextUsernameKey)
}

func extractToken(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
