package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

func DefaultCORSConfig(allowedOrigins []string) *CORSConfig {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &CORSConfig{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type", RequestIDHeader},
		MaxAge:           86400,
		AllowCredentials: true,
	}
}

// CORS 会话走 cookie，所以回写具体的 Origin 而不是 *
func CORS(config *CORSConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultCORSConfig(nil)
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !(slices.Contains(config.AllowedOrigins, "*") || slices.Contains(config.AllowedOrigins, origin)) {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
		h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
		h.Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
		h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
		h.Add("Vary", "Origin")
		if config.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
