package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/service"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/jwt"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// multipart 表单中除文件以外的开销
const multipartOverhead = 1 << 20

// MessageHandler 消息处理器
type MessageHandler struct {
	service       *service.MessageService
	maxAttachment int64
}

// NewMessageHandler 创建MessageHandler实例
func NewMessageHandler(s *service.MessageService, maxAttachment int64) *MessageHandler {
	return &MessageHandler{service: s, maxAttachment: maxAttachment}
}

// ListMessages 会话内的消息，按时间升序
func (h *MessageHandler) ListMessages(c *gin.Context) {
	messages, err := h.service.ListMessages(c.Request.Context(), jwt.GetMemberID(c), c.Param("thread_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, messages)
}

// SendMessage 发送消息
// JSON: {"content": "..."}；带附件时使用 multipart，字段 content / file / attachment_type
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var (
		content string
		upload  *service.AttachmentUpload
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if h.maxAttachment > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxAttachment+multipartOverhead)
		}
		fh, err := c.FormFile("file")
		switch {
		case err == nil:
			f, err := fh.Open()
			if err != nil {
				response.BadRequest(c, "读取附件失败")
				return
			}
			defer f.Close()

			contentType := fh.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			upload = &service.AttachmentUpload{
				Name:        fh.Filename,
				ContentType: contentType,
				Type:        model.AttachmentType(c.PostForm("attachment_type")),
				Size:        fh.Size,
				Body:        f,
			}
		case errors.Is(err, http.ErrMissingFile):
		default:
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(c, 413, service.ErrAttachmentTooLarge.Error())
				return
			}
			response.BadRequest(c, "表单格式错误")
			return
		}
		content = c.PostForm("content")
	} else {
		var req struct {
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		content = req.Content
	}

	message, err := h.service.SendMessage(c.Request.Context(), jwt.GetMemberID(c), c.Param("thread_id"), content, upload)
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMessage(c, "消息发送成功", message)
}

// EditMessage 编辑自己发送的消息
func (h *MessageHandler) EditMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	message, err := h.service.EditMessage(c.Request.Context(), jwt.GetMemberID(c), c.Param("message_id"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMessage(c, "消息已编辑", message)
}

// DeleteMessage 删除自己发送的消息（软删除）
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	if err := h.service.DeleteMessage(c.Request.Context(), jwt.GetMemberID(c), c.Param("message_id")); err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMessage(c, "消息已删除", nil)
}
