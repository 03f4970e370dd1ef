package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader  = "X-Request-ID"
	ContextLoggerKey = "logger"
)

// RequestLogger 每个请求分配 request id，并把带 id 的 logger 放进上下文
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(RequestIDHeader, reqID)
		reqLog := log.With(zap.String("request_id", reqID))
		c.Set(ContextLoggerKey, reqLog)

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id, ok := UserID(c); ok {
			fields = append(fields, zap.Uint64("user_id", id))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			reqLog.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			reqLog.Warn("request", fields...)
		default:
			reqLog.Info("request", fields...)
		}
	}
}

// Recovery panic 时记录堆栈并返回 500
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				Logger(c, log).Error("panic recovered", zap.Any("panic", r), zap.Stack("stack"))
				abort(c, http.StatusInternalServerError, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// Logger 取请求级 logger，没有时退回 fallback
func Logger(c *gin.Context, fallback *zap.Logger) *zap.Logger {
	if v, ok := c.Get(ContextLoggerKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return fallback
}
