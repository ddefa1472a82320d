package handler

import (
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/service"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/jwt"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// ThreadHandler 会话目录处理器
type ThreadHandler struct {
	threads  *service.ThreadService
	messages *service.MessageService
}

// NewThreadHandler 创建ThreadHandler实例
func NewThreadHandler(threads *service.ThreadService, messages *service.MessageService) *ThreadHandler {
	return &ThreadHandler{threads: threads, messages: messages}
}

// ListThreads 当前成员的会话列表
func (h *ThreadHandler) ListThreads(c *gin.Context) {
	threads, err := h.threads.ListThreads(c.Request.Context(), jwt.GetMemberID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, threads)
}

// OpenDirect 打开（必要时创建）与指定成员的单聊
func (h *ThreadHandler) OpenDirect(c *gin.Context) {
	var req struct {
		MemberID string `json:"member_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	thread, err := h.threads.FindOrCreateDirect(c.Request.Context(), jwt.GetMemberID(c), req.MemberID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, thread)
}

// EnsureGroup 加入家庭群聊，不存在时创建
func (h *ThreadHandler) EnsureGroup(c *gin.Context) {
	thread, err := h.threads.EnsureGroupThread(c.Request.Context(), jwt.GetMemberID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, thread)
}

// AddMember 把成员加入会话，调用者必须是会话成员
func (h *ThreadHandler) AddMember(c *gin.Context) {
	var req struct {
		MemberID string `json:"member_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	threadID := c.Param("thread_id")
	if err := h.messages.CheckAccess(ctx, jwt.GetMemberID(c), threadID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.threads.AddMember(ctx, threadID, req.MemberID); err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已加入会话", nil)
}
