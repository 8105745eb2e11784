package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/internal/api/middleware"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
	"github.com/Vasilion/UnyX-Social/pkg/response"
)

const keepAlive = 25 * time.Second

// Stream 以 SSE 推送会话列表与当前打开会话的新消息
// @Summary 实时消息流（SSE）
// @Description 事件类型：conversations / thread / message。传入 item_id 与 counterpart_id 时同时打开该会话。
// @Tags 消息
// @Produce text/event-stream
// @Security BearerAuth
// @Param item_id query string false "打开的会话：商品ID"
// @Param counterpart_id query string false "打开的会话：对方用户ID"
// @Param access_token query string false "EventSource 无法设置请求头时使用"
// @Success 200 {string} string "event stream"
// @Failure 401 {object} response.Response
// @Router /api/v1/marketplace/messages/stream [get]
func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	sess, err := h.bridge.Open(ctx, middleware.Caller(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer sess.Close()

	if itemID, counterpart := c.Query("item_id"), c.Query("counterpart_id"); itemID != "" && counterpart != "" {
		if _, err := sess.Open(ctx, itemID, counterpart); err != nil {
			response.Error(c, err)
			return
		}
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case u, ok := <-sess.Updates():
			if !ok {
				return false
			}
			c.SSEvent(string(u.Kind), u)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
	logger.Debug("stream finished", zap.String("session", sess.ID))
}
