package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/notify"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/service"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/realtime"

	"go.uber.org/zap"
)

// Services 浏览器会话依赖的服务
type Services struct {
	Presence     *service.PresenceService
	Unread       *service.UnreadService
	Receipts     *service.ReceiptService
	Messages     *service.MessageService
	Feed         realtime.ChangeFeed
	Preferences  notify.PreferenceStore
	Profiles     notify.ProfileLookup
	Notification config.NotificationConfig
}

// Session 一个浏览器标签页的实时状态：
// 在线状态、未读数、新消息提醒，以及当前打开的会话的失效通知和已读回执
type Session struct {
	memberID string
	svc      Services
	send     func(Frame)

	ctx        context.Context
	cancel     context.CancelFunc
	dispatcher *notify.Dispatcher
	presence   *service.PresenceSession
	unread     *service.UnreadWatcher
	background sync.WaitGroup

	mu      sync.Mutex
	thread  *threadWatch
	focused bool
	closed  bool
}

type threadWatch struct {
	id       string
	sub      realtime.Subscription
	receipts *service.Poller
}

func (w *threadWatch) stop() {
	if w.sub != nil {
		_ = w.sub.Close()
	}
	if w.receipts != nil {
		w.receipts.Stop()
	}
}

// NewSession 创建会话，send 负责把帧写给浏览器
func NewSession(memberID string, svc Services, send func(Frame)) *Session {
	s := &Session{memberID: memberID, svc: svc, send: send, focused: true}
	s.dispatcher = notify.NewDispatcher(notify.ConfigFrom(memberID, svc.Notification), svc.Preferences, svc.Profiles, s, s)
	return s
}

// Dispatcher 本会话的提醒分发器
func (s *Session) Dispatcher() *notify.Dispatcher { return s.dispatcher }

// Start 加入在线频道、开始推送未读数并订阅新消息提醒
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.dispatcher.Start(s.ctx, s.svc.Feed); err != nil {
		s.Close()
		return err
	}

	presence, err := s.svc.Presence.Start(s.ctx, s.memberID, func(online []service.OnlineMember) {
		s.send(Frame{Type: FramePresence, Data: map[string]interface{}{"online": online}})
	})
	if err != nil {
		s.Close()
		return err
	}
	s.presence = presence

	unread, err := s.svc.Unread.WatchUnread(s.ctx, s.memberID, func(n int64) {
		s.send(Frame{Type: FrameUnreadCount, Data: map[string]int64{"count": n}})
	})
	if err != nil {
		s.Close()
		return err
	}
	s.unread = unread
	return nil
}

// Handle 处理一条上行帧
func (s *Session) Handle(in Inbound) {
	ctx := s.ctx
	switch in.Type {
	case FrameOpenThread:
		if err := s.openThread(ctx, in.ThreadID); err != nil {
			s.send(errorFrame(err.Error()))
		}
	case FrameLeaveThread:
		s.leaveThread()
	case FrameMarkRead:
		if err := s.markRead(ctx, in.ThreadID); err != nil {
			s.send(errorFrame(err.Error()))
		}
	case FrameFocus:
		s.setFocused(true)
	case FrameBlur:
		s.setFocused(false)
	case FramePermission:
		switch notify.Permission(in.State) {
		case notify.PermissionGranted:
			s.dispatcher.ResolvePermission(true)
		case notify.PermissionDenied:
			s.dispatcher.ResolvePermission(false)
		default:
			s.dispatcher.DismissPermission()
		}
	case FrameEnablePush:
		// 需要等待浏览器回复 permission 帧，不能阻塞读循环
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			err := s.dispatcher.EnablePush(ctx)
			s.send(pushStatusFrame(err == nil, s.dispatcher.Permission(), err))
		}()
	case FrameDisablePush:
		err := s.dispatcher.DisablePush(ctx)
		s.send(pushStatusFrame(false, s.dispatcher.Permission(), err))
	case FrameSetSound:
		if in.Enabled == nil {
			s.send(errorFrame("缺少 enabled 字段"))
			return
		}
		if err := s.dispatcher.SetSound(ctx, *in.Enabled); err != nil {
			s.send(errorFrame(err.Error()))
		}
	case FrameHeartbeat:
	default:
		logger.Debug("未知的上行帧类型", zap.String("type", in.Type), zap.String("member_id", s.memberID))
	}
}

func (s *Session) openThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return errors.New("缺少 thread_id")
	}
	if err := s.svc.Messages.CheckAccess(ctx, s.memberID, threadID); err != nil {
		return err
	}

	w := &threadWatch{id: threadID}
	sub, err := s.svc.Messages.WatchThread(ctx, threadID, func(inv service.ViewInvalidation) {
		s.send(Frame{Type: FrameInvalidate, Data: inv})
		if s.isFocused() {
			if err := s.markRead(ctx, threadID); err != nil && ctx.Err() == nil {
				logger.Warn("标记已读失败", zap.Error(err), zap.String("thread_id", threadID))
			}
		}
	})
	if err != nil {
		return err
	}
	w.sub = sub
	w.receipts = s.svc.Receipts.PollReceipts(ctx, threadID, s.memberID, func(receipts []service.Receipt) {
		s.send(Frame{Type: FrameReceipts, Data: map[string]interface{}{
			"thread_id": threadID,
			"receipts":  receipts,
		}})
	})

	s.mu.Lock()
	prev := s.thread
	closed := s.closed
	if !closed {
		s.thread = w
	}
	s.mu.Unlock()
	if prev != nil {
		prev.stop()
	}
	if closed {
		w.stop()
		return nil
	}

	s.dispatcher.SetActiveThread(threadID)
	return s.markRead(ctx, threadID)
}

func (s *Session) leaveThread() {
	s.mu.Lock()
	w := s.thread
	s.thread = nil
	s.mu.Unlock()
	if w != nil {
		w.stop()
	}
	s.dispatcher.SetActiveThread("")
}

func (s *Session) markRead(ctx context.Context, threadID string) error {
	if threadID == "" {
		return errors.New("缺少 thread_id")
	}
	if _, err := s.svc.Receipts.MarkThreadRead(ctx, threadID, s.memberID); err != nil {
		return err
	}
	if s.unread != nil {
		s.unread.Refresh()
	}
	return nil
}

func (s *Session) setFocused(focused bool) {
	s.mu.Lock()
	s.focused = focused
	w := s.thread
	s.mu.Unlock()
	s.dispatcher.SetFocused(focused)

	// 回到窗口时打开的会话视为已读
	if focused && w != nil {
		if err := s.markRead(s.ctx, w.id); err != nil && s.ctx.Err() == nil {
			logger.Warn("标记已读失败", zap.Error(err), zap.String("thread_id", w.id))
		}
	}
}

func (s *Session) isFocused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// Close 释放会话的所有订阅与定时任务，可重复调用
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	w := s.thread
	s.thread = nil
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if w != nil {
		w.stop()
	}
	if s.unread != nil {
		s.unread.Stop()
	}
	if s.presence != nil {
		// 会话 ctx 已取消，退出频道用独立的 ctx
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		s.presence.Stop(ctx)
		cancel()
	}
	if err := s.dispatcher.Close(); err != nil {
		logger.Warn("关闭提醒订阅失败", zap.Error(err), zap.String("member_id", s.memberID))
	}
	s.background.Wait()
}

// Play 实现 notify.Chime
func (s *Session) Play(_ context.Context, tones []notify.Tone) error {
	s.send(chimeFrame(tones))
	return nil
}

// Show 实现 notify.Notifier
func (s *Session) Show(_ context.Context, n notify.Notification) error {
	s.send(notificationFrame(n))
	return nil
}

// Dismiss 实现 notify.Notifier
func (s *Session) Dismiss(_ context.Context, tag string) error {
	s.send(Frame{Type: FrameDismissNotification, Data: map[string]string{"tag": tag}})
	return nil
}

// RequestPermission 实现 notify.Notifier，结果通过 permission 帧返回
func (s *Session) RequestPermission(context.Context) error {
	s.send(Frame{Type: FrameRequestPermission})
	return nil
}
