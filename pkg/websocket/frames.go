package websocket

import (
	"encoding/json"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/notify"
)

// 下行帧类型
const (
	FramePresence            = "presence"
	FrameUnreadCount         = "unread_count"
	FrameChime               = "chime"
	FrameNotify              = "notify"
	FrameDismissNotification = "dismiss_notification"
	FrameRequestPermission   = "request_permission"
	FrameInvalidate          = "invalidate"
	FrameReceipts            = "receipts"
	FramePushStatus          = "push_status"
	FrameError               = "error"
)

// 上行帧类型
const (
	FrameOpenThread  = "open_thread"
	FrameLeaveThread = "leave_thread"
	FrameMarkRead    = "mark_read"
	FrameFocus       = "focus"
	FrameBlur        = "blur"
	FramePermission  = "permission"
	FrameEnablePush  = "enable_push"
	FrameDisablePush = "disable_push"
	FrameSetSound    = "set_sound"
	FrameHeartbeat   = "heartbeat"
)

// Frame 下行帧
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Inbound 上行帧
// permission 帧的 State 为浏览器的 Notification.permission（granted/denied/default）
type Inbound struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id,omitempty"`
	State    string `json:"state,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

// ParseInbound 解析上行帧
func ParseInbound(payload []byte) (Inbound, error) {
	var in Inbound
	err := json.Unmarshal(payload, &in)
	return in, err
}

type toneFrame struct {
	FrequencyHz float64 `json:"frequency_hz"`
	OffsetMs    int64   `json:"offset_ms"`
	DurationMs  int64   `json:"duration_ms"`
}

func chimeFrame(tones []notify.Tone) Frame {
	out := make([]toneFrame, 0, len(tones))
	for _, t := range tones {
		out = append(out, toneFrame{
			FrequencyHz: t.FrequencyHz,
			OffsetMs:    t.Offset.Milliseconds(),
			DurationMs:  t.Duration.Milliseconds(),
		})
	}
	return Frame{Type: FrameChime, Data: map[string]interface{}{"tones": out}}
}

type notifyFrame struct {
	Tag            string `json:"tag"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	ThreadID       string `json:"thread_id"`
	DismissAfterMs int64  `json:"dismiss_after_ms"`
	RefocusOnClick bool   `json:"refocus_on_click"`
}

func notificationFrame(n notify.Notification) Frame {
	return Frame{Type: FrameNotify, Data: notifyFrame{
		Tag:            n.Tag,
		Title:          n.Title,
		Body:           n.Body,
		ThreadID:       n.ThreadID,
		DismissAfterMs: n.DismissAfter.Milliseconds(),
		RefocusOnClick: n.RefocusOnClick,
	}}
}

func errorFrame(message string) Frame {
	return Frame{Type: FrameError, Data: map[string]string{"message": message}}
}

func pushStatusFrame(enabled bool, permission notify.Permission, err error) Frame {
	data := map[string]interface{}{
		"enabled":    enabled,
		"permission": permission,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return Frame{Type: FramePushStatus, Data: data}
}

// 下行写超时
const writeWait = 5 * time.Second
