package handler

import (
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/notify"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/jwt"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 提醒偏好处理器
// 开启系统通知需要浏览器授权，走 WebSocket 的 enable_push；这里只做持久化
type NotificationHandler struct {
	store notify.PreferenceStore
}

// NewNotificationHandler 创建NotificationHandler实例
func NewNotificationHandler(store notify.PreferenceStore) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// GetPreferences 读取提醒偏好
func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	prefs, err := notify.LoadPreferences(c.Request.Context(), h.store, jwt.GetMemberID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, prefs)
}

// UpdatePreferences 部分更新提醒偏好
func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	var req notify.PreferenceUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	prefs, err := notify.SavePreferences(c.Request.Context(), h.store, jwt.GetMemberID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMessage(c, "提醒偏好已保存", prefs)
}
