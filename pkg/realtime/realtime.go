// Package realtime 定义变更事件流与在线状态频道两种实时通道
// 实现有内存版（单机与测试）和 redis 版（pkg/redis）
package realtime

import (
	"context"
	"encoding/json"
	"time"
)

// Op 变更类型
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// TableMessage 消息表的事件名
const TableMessage = "message"

// ChangeEvent 行级变更事件
// 投递语义为至少一次，接收方需要容忍重复

type ChangeEvent struct {
	Table     string          `json:"table"`
	Op        Op              `json:"op"`
	RowID     string          `json:"row_id"`
	ThreadID  string          `json:"thread_id,omitempty"`
	SenderID  string          `json:"sender_id,omitempty"`
	Deleted   bool            `json:"deleted,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Filter 订阅过滤条件，空字段表示不过滤
type Filter struct {
	Table    string
	Op       Op
	ThreadID string
}

// Match 事件是否满足过滤条件
func (f Filter) Match(e ChangeEvent) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if f.Op != "" && f.Op != e.Op {
		return false
	}
	if f.ThreadID != "" && f.ThreadID != e.ThreadID {
		return false
	}
	return true
}

// Handler 事件回调
type Handler func(ChangeEvent)

// Subscription 订阅句柄，Close 可重复调用
type Subscription interface {
	Close() error
}

// ChangeFeed 变更事件流
type ChangeFeed interface {
	Publish(ctx context.Context, event ChangeEvent) error
	// Subscribe 在订阅确认后返回
	Subscribe(ctx context.Context, filter Filter, handler Handler) (Subscription, error)
}

// PresenceMeta 一个在线会话的元数据
type PresenceMeta struct {
	SessionID   string    `json:"session_id"`
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	OnlineAt    time.Time `json:"online_at"`
}

// PresenceState 频道快照：成员ID -> 该成员每个会话的元数据
type PresenceState map[string][]PresenceMeta

// SyncHandler 收到完整快照时的回调
type SyncHandler func(PresenceState)

// PresenceSubscription 频道订阅
type PresenceSubscription interface {
	Track(ctx context.Context, meta PresenceMeta) error
	Untrack(ctx context.Context) error
	// Close 会先 Untrack
	Close() error
}

// PresenceChannel 在线状态频道，任意成员加入/离开时向所有订阅者广播完整快照
type PresenceChannel interface {
	Subscribe(ctx context.Context, onSync SyncHandler) (PresenceSubscription, error)
}

// MessagePayload 消息插入事件携带的内容摘要
type MessagePayload struct {
	Content       string `json:"content"`
	HasAttachment bool   `json:"has_attachment"`
}

// EncodeMessagePayload 序列化消息摘要
func EncodeMessagePayload(p MessagePayload) json.RawMessage {
	data, _ := json.Marshal(p)
	return data
}

// DecodeMessagePayload 解析事件中的消息摘要，缺失时返回零值
func (e ChangeEvent) DecodeMessagePayload() MessagePayload {
	var p MessagePayload
	if len(e.Payload) > 0 {
		_ = json.Unmarshal(e.Payload, &p)
	}
	return p
}
