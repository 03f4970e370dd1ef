package handler

import (
	"Hope_Community/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ThreadHandler struct {
	base
	threads *service.ThreadService
	replies *service.ReplyService
}

type ThreadReq struct {
	Title       string               `json:"title" binding:"required"`
	Content     string               `json:"content" binding:"required"`
	Communities []service.ThreadLink `json:"communities"`
}

type ReplyReq struct {
	Content       string  `json:"content" binding:"required"`
	ParentReplyID *uint64 `json:"parent_reply_id"`
}

func NewThreadHandler(threads *service.ThreadService, replies *service.ReplyService, log *zap.Logger) *ThreadHandler {
	return &ThreadHandler{base: base{log: log}, threads: threads, replies: replies}
}

// List GET /api/threads?community_id=&stage=&type=&user_id=&page=&size=
func (h *ThreadHandler) List(c *gin.Context) {
	communityID, valid := queryUint(c, "community_id")
	if !valid {
		return
	}
	userID, valid := queryUint(c, "user_id")
	if !valid {
		return
	}
	page, err := h.threads.List(c.Request.Context(), service.ThreadListQuery{
		CommunityID: communityID,
		Stage:       c.Query("stage"),
		Type:        c.Query("type"),
		UserID:      userID,
		Page:        queryInt(c, "page", 1),
		Size:        queryInt(c, "size", 0),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, page)
}

func (h *ThreadHandler) Create(c *gin.Context) {
	var req ThreadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "标题和内容不能为空")
		return
	}
	t, err := h.threads.Create(c.Request.Context(), currentUser(c), req.Title, req.Content, req.Communities)
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, t)
}

func (h *ThreadHandler) Get(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	t, err := h.threads.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, t)
}

func (h *ThreadHandler) Update(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req ThreadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "标题和内容不能为空")
		return
	}
	t, err := h.threads.Update(c.Request.Context(), currentUser(c), id, req.Title, req.Content, req.Communities)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, t)
}

func (h *ThreadHandler) Delete(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.threads.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"message": "已删除"})
}

func (h *ThreadHandler) ListReplies(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	groups, err := h.replies.List(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, groups)
}

func (h *ThreadHandler) CreateReply(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req ReplyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "回复内容不能为空")
		return
	}
	reply, err := h.replies.Create(c.Request.Context(), currentUser(c), id, req.Content, req.ParentReplyID)
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, reply)
}

func (h *ThreadHandler) UpdateReply(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	replyID, valid := pathID(c, "replyId")
	if !valid {
		return
	}
	var req ReplyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "回复内容不能为空")
		return
	}
	reply, err := h.replies.Update(c.Request.Context(), currentUser(c), id, replyID, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, reply)
}

func (h *ThreadHandler) DeleteReply(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	replyID, valid := pathID(c, "replyId")
	if !valid {
		return
	}
	n, err := h.replies.Delete(c.Request.Context(), currentUser(c), id, replyID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"deleted": n})
}
