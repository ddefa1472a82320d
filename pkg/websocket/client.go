package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client 代表一个WebSocket连接
// 只有写协程向连接写数据；Send 在缓冲区满时丢弃帧

type Client struct {
	ID       string
	MemberID string
	conn     *websocket.Conn
	send     chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
}

func newClient(id, memberID string, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:       id,
		MemberID: memberID,
		conn:     conn,
		send:     make(chan []byte, 256),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context 连接关闭时取消
func (c *Client) Context() context.Context { return c.ctx }

// Send 发送一帧
func (c *Client) Send(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Warn("序列化下行帧失败", zap.Error(err), zap.String("type", frame.Type))
		return
	}
	select {
	case <-c.ctx.Done():
	case c.send <- data:
	default:
		logger.Warn("下行缓冲区已满，丢弃帧",
			zap.String("session_id", c.ID),
			zap.String("type", frame.Type),
		)
	}
}

// Close 关闭连接，读循环随之退出
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
}

// writePump 写协程 + 定时发送ping心跳
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
