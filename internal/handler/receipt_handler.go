package handler

import (
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/service"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/jwt"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// ReceiptHandler 已读回执与未读数处理器
type ReceiptHandler struct {
	receipts *service.ReceiptService
	unread   *service.UnreadService
	messages *service.MessageService
}

// NewReceiptHandler 创建ReceiptHandler实例
func NewReceiptHandler(receipts *service.ReceiptService, unread *service.UnreadService, messages *service.MessageService) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts, unread: unread, messages: messages}
}

// GetReceipts 会话内其他成员的已读时间
func (h *ReceiptHandler) GetReceipts(c *gin.Context) {
	ctx := c.Request.Context()
	memberID := jwt.GetMemberID(c)
	threadID := c.Param("thread_id")
	if err := h.messages.CheckAccess(ctx, memberID, threadID); err != nil {
		respondError(c, err)
		return
	}

	receipts, err := h.receipts.GetReceipts(ctx, threadID, memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, receipts)
}

// MarkRead 把会话标记为已读
func (h *ReceiptHandler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	memberID := jwt.GetMemberID(c)
	threadID := c.Param("thread_id")
	if err := h.messages.CheckAccess(ctx, memberID, threadID); err != nil {
		respondError(c, err)
		return
	}

	at, err := h.receipts.MarkThreadRead(ctx, threadID, memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"thread_id": threadID, "last_read_at": at})
}

// UnreadCount 所有会话的未读消息总数
func (h *ReceiptHandler) UnreadCount(c *gin.Context) {
	n, err := h.unread.UnreadCount(c.Request.Context(), jwt.GetMemberID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"count": n})
}
