package handler

import (
	"strings"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/service"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// 单次最多查询的成员数
const maxLastSeenIDs = 100

// PresenceHandler 在线状态处理器
type PresenceHandler struct {
	service *service.PresenceService
}

// NewPresenceHandler 创建PresenceHandler实例
func NewPresenceHandler(s *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{service: s}
}

// LastSeen 批量查询最近在线时间 ?ids=a,b
func (h *PresenceHandler) LastSeen(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		response.BadRequest(c, "ids is required")
		return
	}
	if len(ids) > maxLastSeenIDs {
		response.BadRequest(c, "ids 数量超过上限")
		return
	}

	seen, err := h.service.LastSeen(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, seen)
}
