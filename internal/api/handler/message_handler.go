package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Vasilion/UnyX-Social/internal/api/middleware"
	"github.com/Vasilion/UnyX-Social/pkg/response"
)

type sendRequest struct {
	ItemID     string `json:"item_id" binding:"required"`
	ReceiverID string `json:"receiver_id" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids" binding:"required"`
}

// SendMessage 发送消息
// @Summary 发送消息
// @Tags 消息
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body sendRequest true "消息内容"
// @Success 201 {object} response.Response{data=model.Message}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 429 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/marketplace/messages [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	msg, err := h.msgService.Send(c.Request.Context(), middleware.Caller(c), req.ItemID, req.ReceiverID, req.Message)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// GetThread 查询与某用户关于某商品的全部消息（时间升序）
// @Summary 会话消息历史
// @Tags 消息
// @Produce json
// @Security BearerAuth
// @Param item_id query string true "商品ID"
// @Param counterpart_id query string true "对方用户ID"
// @Success 200 {object} response.Response{data=[]model.Message}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/marketplace/messages/thread [get]
func (h *Handler) GetThread(c *gin.Context) {
	caller := middleware.Caller(c)
	msgs, err := h.msgService.History(c.Request.Context(), caller, c.Query("item_id"), caller.UserID, c.Query("counterpart_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, msgs)
}

// MarkRead 标记消息已读；非本人接收的消息会被忽略
// @Summary 标记已读
// @Tags 消息
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body markReadRequest true "消息ID列表"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/marketplace/messages/read [post]
func (h *Handler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	caller := middleware.Caller(c)
	if err := h.msgService.MarkRead(c.Request.Context(), caller, req.MessageIDs, caller.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListConversations 会话列表（按最后一条消息时间倒序）
// @Summary 会话列表
// @Tags 消息
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]model.Conversation}
// @Failure 401 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/marketplace/conversations [get]
func (h *Handler) ListConversations(c *gin.Context) {
	caller := middleware.Caller(c)
	convs, err := h.convService.ListConversations(c.Request.Context(), caller, caller.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, convs)
}

// UnreadCount 未读消息总数
// @Summary 未读消息数
// @Tags 消息
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=map[string]int64}
// @Failure 401 {object} response.Response
// @Router /api/v1/marketplace/messages/unread-count [get]
func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.convService.UnreadTotal(c.Request.Context(), middleware.Caller(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"unread": n})
}
