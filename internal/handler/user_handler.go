package handler

import (
	"net/http"

	"Hope_Community/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandler struct {
	base
	svc          *service.UserService
	cookieName   string
	cookieSecure bool
}

// CredentialsReq 注册与登录共用
type CredentialsReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func NewUserHandler(svc *service.UserService, cookieName string, cookieSecure bool, log *zap.Logger) *UserHandler {
	return &UserHandler{base: base{log: log}, svc: svc, cookieName: cookieName, cookieSecure: cookieSecure}
}

// Signup 注册接口
func (h *UserHandler) Signup(c *gin.Context) {
	var req CredentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "用户名和密码不能为空")
		return
	}
	user, err := h.svc.Signup(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, user)
}

// Login 登录接口，token 写入 HttpOnly cookie，同时在 body 中返回
func (h *UserHandler) Login(c *gin.Context) {
	var req CredentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "用户名和密码不能为空")
		return
	}
	user, token, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, h.svc.TokenTTLSeconds(), "/", "", h.cookieSecure, true)
	ok(c, gin.H{"user": user, "token": token})
}

func (h *UserHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), currentUser(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.cookieSecure, true)
	ok(c, gin.H{"message": "已退出登录"})
}

func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.svc.Me(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, user)
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误")
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), currentUser(c), req.OldPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.SetCookie(h.cookieName, "", -1, "/", "", h.cookieSecure, true)
	ok(c, gin.H{"message": "密码已修改，请重新登录"})
}

func (h *UserHandler) Profile(c *gin.Context) {
	p, err := h.svc.Profile(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, p)
}

func (h *UserHandler) PublicProfile(c *gin.Context) {
	p, err := h.svc.PublicProfile(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, p)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req service.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误")
		return
	}
	p, err := h.svc.UpdateProfile(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, p)
}
