package handler

import (
	"errors"
	"io"

	"Hope_Community/internal/middleware"
	"Hope_Community/internal/model"
	"Hope_Community/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CommunityHandler struct {
	base
	communities *service.CommunityService
	memberships *service.MembershipService
}

type CommunityCreateReq struct {
	Name        string           `json:"name" binding:"required"`
	Description string           `json:"description"`
	Dimensions  model.Dimensions `json:"dimensions"`
}

type JoinReq struct {
	Stage string `json:"stage"`
	Type  string `json:"type"`
}

func NewCommunityHandler(communities *service.CommunityService, memberships *service.MembershipService, log *zap.Logger) *CommunityHandler {
	return &CommunityHandler{base: base{log: log}, communities: communities, memberships: memberships}
}

func (h *CommunityHandler) List(c *gin.Context) {
	page, err := h.communities.List(c.Request.Context(), c.Query("q"), queryInt(c, "page", 1), queryInt(c, "size", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, page)
}

func (h *CommunityHandler) Create(c *gin.Context) {
	var req CommunityCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误")
		return
	}
	community, err := h.communities.Create(c.Request.Context(), req.Name, req.Description, req.Dimensions)
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, community)
}

// Detail 登录时额外返回当前用户在该社区的成员关系
func (h *CommunityHandler) Detail(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	viewer, _ := middleware.UserID(c)
	detail, err := h.communities.Detail(c.Request.Context(), id, viewer, c.Query("stage"), c.Query("type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, detail)
}

func (h *CommunityHandler) Join(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req JoinReq
	// body 可以为空，表示加入一级社区
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "参数错误")
		return
	}
	res, err := h.memberships.Join(c.Request.Context(), currentUser(c), id, req.Stage, req.Type)
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := "已经是成员"
	if res.Changed {
		msg = "加入成功"
	}
	ok(c, gin.H{"level": res.Level, "changed": res.Changed, "message": msg})
}

func (h *CommunityHandler) Leave(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	left, err := h.memberships.Leave(c.Request.Context(), currentUser(c), id, c.Query("stage"), c.Query("type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := "不是该社区成员"
	if left {
		msg = "已退出"
	}
	ok(c, gin.H{"left": left, "message": msg})
}

// MyCommunities GET /api/user/communities?details=true&community_id=
func (h *CommunityHandler) MyCommunities(c *gin.Context) {
	communityID, valid := queryUint(c, "community_id")
	if !valid {
		return
	}
	list, err := h.memberships.ListUserMemberships(c.Request.Context(), currentUser(c), communityID, c.Query("details") == "true")
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, list)
}
