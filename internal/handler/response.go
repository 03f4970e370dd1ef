package handler

import (
	"net/http"
	"strconv"

	"Hope_Community/internal/middleware"
	"Hope_Community/internal/pkg"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 所有接口统一的返回结构
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type base struct {
	log *zap.Logger
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// fail AppError 按错误码返回；其他错误记日志后统一返回 500
func (b base) fail(c *gin.Context, err error) {
	if appErr, ok := pkg.AsAppError(err); ok {
		status := pkg.HTTPStatus(appErr.Code)
		if status == http.StatusInternalServerError {
			middleware.Logger(c, b.log).Error("request failed", zap.Error(err))
			c.JSON(status, Response{Success: false, Error: "服务器内部错误"})
			return
		}
		c.JSON(status, Response{Success: false, Error: appErr.Message})
		return
	}
	middleware.Logger(c, b.log).Error("request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "服务器内部错误"})
}

// pathID 解析失败时已写好 400
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "无效的 "+name)
		return 0, false
	}
	return id, true
}

// currentUser 只在 AuthMiddleware 之后调用
func currentUser(c *gin.Context) uint64 {
	id, _ := middleware.UserID(c)
	return id
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func queryUint(c *gin.Context, key string) (uint64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		badRequest(c, "无效的 "+key)
		return 0, false
	}
	return v, true
}
