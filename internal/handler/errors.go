package handler

import (
	"errors"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/service"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError 把服务层错误映射为统一响应
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrInvalidAttachmentType),
		errors.Is(err, service.ErrSelfDirectThread),
		errors.Is(err, service.ErrDirectThreadMembers):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrAttachmentTooLarge):
		response.Error(c, 413, err.Error())
	case errors.Is(err, service.ErrNotThreadMember),
		errors.Is(err, service.ErrNotMessageAuthor):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrThreadNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrProfileNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrMessageDeleted):
		response.Conflict(c, err.Error())
	default:
		logger.Error("请求处理失败",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		response.ErrorWithDetails(c, 500, "服务器内部错误", err)
	}
}
