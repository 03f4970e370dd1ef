package router

import (
	"context"
	"net/http"
	"time"

	"Hope_Community/internal/handler"
	"Hope_Community/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Deps struct {
	Community      *handler.CommunityHandler
	User           *handler.UserHandler
	Search         *handler.SearchHandler
	Thread         *handler.ThreadHandler
	Guru           *handler.GuruHandler
	Auth           middleware.Authenticator
	CookieName     string
	AllowedOrigins []string
	Health         func(ctx context.Context) error
	Log            *zap.Logger
}

func InitRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(d.Log), middleware.Recovery(d.Log))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(d.AllowedOrigins)))

	auth := middleware.AuthMiddleware(d.Auth, d.CookieName)
	optional := middleware.OptionalAuth(d.Auth, d.CookieName)

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if d.Health != nil {
			if err := d.Health(ctx); err != nil {
				d.Log.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, handler.Response{Success: false, Error: "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, handler.Response{Success: true, Data: gin.H{"status": "ok"}})
	})

	// 社区相关接口
	communityGroup := r.Group("/api/communities")
	{
		communityGroup.GET("", d.Community.List)
		communityGroup.POST("", auth, d.Community.Create)
		communityGroup.GET("/:id", optional, d.Community.Detail)
		communityGroup.POST("/:id/join", auth, d.Community.Join)
		communityGroup.DELETE("/:id/leave", auth, d.Community.Leave)
	}

	userGroup := r.Group("/api/user")
	userGroup.Use(auth)
	{
		userGroup.GET("/communities", d.Community.MyCommunities)
	}

	// 账号与资料
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/signup", d.User.Signup)
		authGroup.POST("/login", d.User.Login)
		authGroup.POST("/logout", auth, d.User.Logout)
		authGroup.GET("/me", auth, d.User.Me)
		authGroup.POST("/change-password", auth, d.User.ChangePassword)
		authGroup.GET("/profile", auth, d.User.Profile)
		authGroup.PUT("/profile", auth, d.User.UpdateProfile)
		authGroup.GET("/profile/:username", d.User.PublicProfile)
		authGroup.GET("/users/search", d.Search.SearchUsers)
	}

	// 帖子与回复
	threadGroup := r.Group("/api/threads")
	{
		threadGroup.GET("", d.Thread.List)
		threadGroup.POST("", auth, d.Thread.Create)
		threadGroup.GET("/:id", d.Thread.Get)
		threadGroup.PUT("/:id", auth, d.Thread.Update)
		threadGroup.DELETE("/:id", auth, d.Thread.Delete)
		threadGroup.GET("/:id/replies", d.Thread.ListReplies)
		threadGroup.POST("/:id/replies", auth, d.Thread.CreateReply)
		threadGroup.PUT("/:id/replies/:replyId", auth, d.Thread.UpdateReply)
		threadGroup.DELETE("/:id/replies/:replyId", auth, d.Thread.DeleteReply)
	}

	// 达人问答
	guruGroup := r.Group("/api/gurus")
	{
		guruGroup.GET("", d.Guru.List)
		guruGroup.GET("/:id", d.Guru.Get)
		guruGroup.GET("/:id/questions", d.Guru.ListQuestions)
		guruGroup.POST("/:id/questions", auth, d.Guru.Ask)
		guruGroup.GET("/questions/:qid", d.Guru.GetQuestion)
		guruGroup.DELETE("/questions/:qid", auth, d.Guru.DeleteQuestion)
		guruGroup.POST("/questions/:qid/replies", auth, d.Guru.Reply)
	}

	return r
}
