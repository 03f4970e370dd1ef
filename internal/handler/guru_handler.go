package handler

import (
	"Hope_Community/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GuruHandler struct {
	base
	svc *service.GuruService
}

type QuestionReq struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

type QuestionReplyReq struct {
	Content string `json:"content" binding:"required"`
}

func NewGuruHandler(svc *service.GuruService, log *zap.Logger) *GuruHandler {
	return &GuruHandler{base: base{log: log}, svc: svc}
}

func (h *GuruHandler) List(c *gin.Context) {
	page, err := h.svc.ListGurus(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "size", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, page)
}

func (h *GuruHandler) Get(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	guru, err := h.svc.GetGuru(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, guru)
}

func (h *GuruHandler) ListQuestions(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	page, err := h.svc.ListQuestions(c.Request.Context(), id, queryInt(c, "page", 1), queryInt(c, "size", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, page)
}

func (h *GuruHandler) Ask(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req QuestionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "标题和内容不能为空")
		return
	}
	q, err := h.svc.Ask(c.Request.Context(), currentUser(c), id, req.Title, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, q)
}

func (h *GuruHandler) GetQuestion(c *gin.Context) {
	qid, valid := pathID(c, "qid")
	if !valid {
		return
	}
	detail, err := h.svc.GetQuestion(c.Request.Context(), qid)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, detail)
}

func (h *GuruHandler) DeleteQuestion(c *gin.Context) {
	qid, valid := pathID(c, "qid")
	if !valid {
		return
	}
	if err := h.svc.DeleteQuestion(c.Request.Context(), currentUser(c), qid); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"message": "已删除"})
}

func (h *GuruHandler) Reply(c *gin.Context) {
	qid, valid := pathID(c, "qid")
	if !valid {
		return
	}
	var req QuestionReplyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "回复内容不能为空")
		return
	}
	reply, err := h.svc.Reply(c.Request.Context(), currentUser(c), qid, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, reply)
}
