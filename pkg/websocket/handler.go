package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/jwt"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// Handler WebSocket 入口
type Handler struct {
	jwt     *jwt.JWTService
	cfg     config.WebSocketConfig
	svc     Services
	manager *Manager
}

// NewHandler 创建 WebSocket 处理器
func NewHandler(jwtSvc *jwt.JWTService, cfg config.WebSocketConfig, svc Services, manager *Manager) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 3 * cfg.PingInterval
	}
	return &Handler{jwt: jwtSvc, cfg: cfg, svc: svc, manager: manager}
}

// ServeWS Gin路由处理函数
// token 通过查询参数或 Sec-WebSocket-Protocol 传递
func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Sec-WebSocket-Protocol"), "Bearer ")
	}
	if token == "" {
		response.Unauthorized(c, "缺少token")
		return
	}

	memberID, err := h.jwt.MemberIDFromToken(token)
	if err != nil {
		response.Unauthorized(c, "token无效或已过期")
		return
	}

	// 回显子协议，避免客户端提示 "Server sent no subprotocol"
	respHeader := http.Header{}
	if protocol := c.GetHeader("Sec-WebSocket-Protocol"); protocol != "" {
		respHeader.Set("Sec-WebSocket-Protocol", protocol)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		return
	}

	client := newClient(uuid.NewString(), memberID, conn)
	h.manager.AddClient(client)
	defer h.manager.RemoveClient(client)
	defer client.Close()

	go client.writePump(h.cfg.PingInterval)

	session := NewSession(memberID, h.svc, client.Send)
	if err := session.Start(client.Context()); err != nil {
		logger.Error("初始化实时会话失败", zap.Error(err), zap.String("member_id", memberID))
		client.Send(errorFrame("初始化实时会话失败"))
		return
	}
	defer session.Close()

	logger.Info("WebSocket 连接建立",
		zap.String("member_id", memberID),
		zap.String("session_id", client.ID),
	)

	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("WebSocket 连接异常断开", zap.Error(err), zap.String("session_id", client.ID))
			}
			break
		}
		// 任意上行数据都视为存活
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))

		in, err := ParseInbound(payload)
		if err != nil {
			client.Send(errorFrame("消息格式错误"))
			continue
		}
		session.Handle(in)
	}

	logger.Info("WebSocket 连接关闭",
		zap.String("member_id", memberID),
		zap.String("session_id", client.ID),
	)
}
