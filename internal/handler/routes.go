package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers 所有 REST 处理器
type Handlers struct {
	Threads       *ThreadHandler
	Messages      *MessageHandler
	Receipts      *ReceiptHandler
	Presence      *PresenceHandler
	Notifications *NotificationHandler
}

// Register 绑定 /api/v1 下的路由
// auth 为JWT认证中间件，sendLimit 为发送消息的限流中间件（可为 nil）
func Register(v1 *gin.RouterGroup, auth gin.HandlerFunc, sendLimit gin.HandlerFunc, h *Handlers) {
	api := v1.Group("")
	api.Use(auth)

	// 会话
	threads := api.Group("/threads")
	{
		threads.GET("", h.Threads.ListThreads)                       // 会话列表
		threads.POST("/direct", h.Threads.OpenDirect)                // 打开单聊
		threads.POST("/group", h.Threads.EnsureGroup)                // 加入家庭群聊
		threads.POST("/:thread_id/members", h.Threads.AddMember)     // 添加成员
		threads.GET("/:thread_id/messages", h.Messages.ListMessages) // 消息列表
		threads.GET("/:thread_id/receipts", h.Receipts.GetReceipts)  // 已读回执
		threads.POST("/:thread_id/read", h.Receipts.MarkRead)        // 标记已读
		if sendLimit != nil {
			threads.POST("/:thread_id/messages", sendLimit, h.Messages.SendMessage) // 发送消息
		} else {
			threads.POST("/:thread_id/messages", h.Messages.SendMessage)
		}
	}

	// 消息
	messages := api.Group("/messages")
	{
		messages.PATCH("/:message_id", h.Messages.EditMessage)    // 编辑消息
		messages.DELETE("/:message_id", h.Messages.DeleteMessage) // 删除消息
	}

	api.GET("/unread/count", h.Receipts.UnreadCount)    // 未读总数
	api.GET("/presence/last-seen", h.Presence.LastSeen) // 最近在线时间

	notifications := api.Group("/notifications")
	{
		notifications.GET("/preferences", h.Notifications.GetPreferences)    // 读取提醒偏好
		notifications.PUT("/preferences", h.Notifications.UpdatePreferences) // 保存提醒偏好
	}
}
