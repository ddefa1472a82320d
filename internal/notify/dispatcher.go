// Package notify 新消息提醒：提示音、系统通知与通知权限
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/metrics"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/realtime"

	"go.uber.org/zap"
)

const (
	maxBodyRunes   = 200
	attachmentBody = "Sent an attachment"
)

// PreferenceStore 提醒偏好的持久化
type PreferenceStore interface {
	Get(ctx context.Context, memberID string) (*model.NotificationPreference, error)
	SetSound(ctx context.Context, memberID string, enabled bool) error
	SetPush(ctx context.Context, memberID string, enabled bool) error
}

// ProfileLookup 查询发送者资料
type ProfileLookup interface {
	GetByID(ctx context.Context, id string) (*model.Profile, error)
}

// Notification 一条系统通知
type Notification struct {
	Tag            string        `json:"tag"`
	Title          string        `json:"title"`
	Body           string        `json:"body"`
	ThreadID       string        `json:"thread_id"`
	DismissAfter   time.Duration `json:"dismiss_after"`
	RefocusOnClick bool          `json:"refocus_on_click"`
}

// Notifier 展示/关闭系统通知并请求权限（由浏览器会话实现）
type Notifier interface {
	Show(ctx context.Context, n Notification) error
	Dismiss(ctx context.Context, tag string) error
	RequestPermission(ctx context.Context) error
}

// View 当前页面状态：正在查看的会话与窗口是否聚焦
type View struct {
	ActiveThreadID string
	Focused        bool
}

// 不提醒的原因
const (
	ReasonNotMessage   = "not_message"
	ReasonSelf         = "self"
	ReasonDeleted      = "deleted"
	ReasonDuplicate    = "duplicate"
	ReasonActiveThread = "active_thread"
)

// Outcome 一次事件的处理结果
type Outcome struct {
	Suppressed string
	Chimed     bool
	Notified   bool
}

// Label 指标标签
func (o Outcome) Label() string {
	switch {
	case o.Suppressed != "":
		return "suppressed_" + o.Suppressed
	case o.Chimed && o.Notified:
		return "chime_and_notify"
	case o.Notified:
		return "notify"
	case o.Chimed:
		return "chime"
	default:
		return "silent"
	}
}

// Config 每个会话的提醒配置
type Config struct {
	MemberID          string
	Tones             []Tone
	DismissAfter      time.Duration
	PermissionTimeout time.Duration
	DedupSize         int
}

// ConfigFrom 从服务配置构造
func ConfigFrom(memberID string, cfg config.NotificationConfig) Config {
	return Config{
		MemberID:          memberID,
		Tones:             TonesFrom(cfg),
		DismissAfter:      cfg.DismissAfter,
		PermissionTimeout: cfg.PermissionTimeout,
		DedupSize:         cfg.DedupSize,
	}
}

// Dispatcher 一个浏览器会话的新消息提醒
// 页面状态通过 Update 显式传入
type Dispatcher struct {
	cfg        Config
	prefs      PreferenceStore
	profiles   ProfileLookup
	chime      Chime
	notifier   Notifier
	seen       *seenSet
	permission *permissionState

	mu     sync.Mutex
	view   View
	timers map[string]*time.Timer
	closed bool
	sub    realtime.Subscription
}

// NewDispatcher 创建提醒分发器
func NewDispatcher(cfg Config, prefs PreferenceStore, profiles ProfileLookup, chime Chime, notifier Notifier) *Dispatcher {
	if len(cfg.Tones) == 0 {
		cfg.Tones = DefaultTones
	}
	if cfg.DismissAfter <= 0 {
		cfg.DismissAfter = 5 * time.Second
	}
	return &Dispatcher{
		cfg:        cfg,
		prefs:      prefs,
		profiles:   profiles,
		chime:      chime,
		notifier:   notifier,
		seen:       newSeenSet(cfg.DedupSize),
		permission: newPermissionState(),
		view:       View{Focused: true},
		timers:     make(map[string]*time.Timer),
	}
}

// Update 设置当前页面状态
func (d *Dispatcher) Update(v View) {
	d.mu.Lock()
	d.view = v
	d.mu.Unlock()
}

// SetActiveThread 只修改正在查看的会话
func (d *Dispatcher) SetActiveThread(threadID string) {
	d.mu.Lock()
	d.view.ActiveThreadID = threadID
	d.mu.Unlock()
}

// SetFocused 只修改窗口聚焦状态
func (d *Dispatcher) SetFocused(focused bool) {
	d.mu.Lock()
	d.view.Focused = focused
	d.mu.Unlock()
}

func (d *Dispatcher) currentView() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view
}

// Permission 当前通知权限
func (d *Dispatcher) Permission() Permission {
	return d.permission.Get()
}

// ResolvePermission 浏览器返回授权结果
func (d *Dispatcher) ResolvePermission(granted bool) {
	d.permission.Resolve(granted)
}

// DismissPermission 浏览器报告弹窗被关闭（权限仍为 default）
func (d *Dispatcher) DismissPermission() {
	d.permission.Dismiss()
}

// Start 订阅全系统的新消息事件
func (d *Dispatcher) Start(ctx context.Context, feed realtime.ChangeFeed) error {
	sub, err := feed.Subscribe(ctx, realtime.Filter{Table: realtime.TableMessage, Op: realtime.OpInsert}, func(e realtime.ChangeEvent) {
		d.HandleEvent(ctx, e)
	})
	if err != nil {
		return fmt.Errorf("订阅新消息事件失败: %w", err)
	}
	d.mu.Lock()
	d.sub = sub
	d.mu.Unlock()
	return nil
}

// HandleEvent 处理一条新消息事件
// 依次过滤：自己发送的、已删除的、已处理过的、正在查看的会话；
// 其余事件按偏好播放提示音，窗口未聚焦且已授权时再弹出系统通知
func (d *Dispatcher) HandleEvent(ctx context.Context, e realtime.ChangeEvent) Outcome {
	out := d.decide(ctx, e)
	metrics.NotificationOutcomes.WithLabelValues(out.Label()).Inc()
	return out
}

func (d *Dispatcher) decide(ctx context.Context, e realtime.ChangeEvent) Outcome {
	if e.Table != realtime.TableMessage || e.Op != realtime.OpInsert {
		return Outcome{Suppressed: ReasonNotMessage}
	}
	if e.SenderID == d.cfg.MemberID {
		return Outcome{Suppressed: ReasonSelf}
	}
	if e.Deleted {
		return Outcome{Suppressed: ReasonDeleted}
	}
	if !d.seen.Add(e.RowID) {
		return Outcome{Suppressed: ReasonDuplicate}
	}
	view := d.currentView()
	if view.ActiveThreadID != "" && view.ActiveThreadID == e.ThreadID {
		return Outcome{Suppressed: ReasonActiveThread}
	}

	pref, err := d.prefs.Get(ctx, d.cfg.MemberID)
	if err != nil {
		// 读取失败按默认（全部开启）处理
		logger.Warn("读取提醒偏好失败", zap.Error(err), zap.String("member_id", d.cfg.MemberID))
		pref = nil
	}

	var out Outcome
	if pref.Sound() {
		if err := d.chime.Play(ctx, d.cfg.Tones); err != nil {
			logger.Warn("播放提示音失败", zap.Error(err))
		} else {
			out.Chimed = true
		}
	}

	if !view.Focused && pref.Push() && d.permission.Get() == PermissionGranted {
		if err := d.notify(ctx, e); err != nil {
			logger.Warn("展示系统通知失败", zap.Error(err), zap.String("message_id", e.RowID))
		} else {
			out.Notified = true
		}
	}
	return out
}

func (d *Dispatcher) notify(ctx context.Context, e realtime.ChangeEvent) error {
	title := model.UnknownDisplayName
	if d.profiles != nil {
		p, err := d.profiles.GetByID(ctx, e.SenderID)
		if err == nil {
			title = p.Name()
		}
	}

	n := Notification{
		Tag:            e.RowID,
		Title:          title,
		Body:           NotificationBody(e.DecodeMessagePayload()),
		ThreadID:       e.ThreadID,
		DismissAfter:   d.cfg.DismissAfter,
		RefocusOnClick: true,
	}
	if err := d.notifier.Show(ctx, n); err != nil {
		return err
	}
	d.scheduleDismiss(n.Tag)
	return nil
}

func (d *Dispatcher) scheduleDismiss(tag string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if t, ok := d.timers[tag]; ok {
		t.Stop()
	}
	d.timers[tag] = time.AfterFunc(d.cfg.DismissAfter, func() {
		d.mu.Lock()
		delete(d.timers, tag)
		d.mu.Unlock()
		if err := d.notifier.Dismiss(context.Background(), tag); err != nil {
			logger.Debug("关闭系统通知失败", zap.Error(err), zap.String("tag", tag))
		}
	})
}

// NotificationBody 通知正文：截断到 200 个字符；只有附件时显示固定文案
func NotificationBody(p realtime.MessagePayload) string {
	if p.Content == "" {
		if p.HasAttachment {
			return attachmentBody
		}
		return ""
	}
	runes := []rune(p.Content)
	if len(runes) <= maxBodyRunes {
		return p.Content
	}
	return string(runes[:maxBodyRunes]) + "…"
}

// EnablePush 开启系统通知
// 未授权时发起一次权限请求（并发调用共享同一次请求），被拒绝时把偏好回滚为关闭
func (d *Dispatcher) EnablePush(ctx context.Context) error {
	if err := d.prefs.SetPush(ctx, d.cfg.MemberID, true); err != nil {
		return fmt.Errorf("保存通知偏好失败: %w", err)
	}

	perm, err := d.permission.Request(ctx, d.cfg.PermissionTimeout, d.notifier.RequestPermission)
	if err == nil && perm == PermissionGranted {
		return nil
	}

	cause := err
	switch {
	case perm == PermissionDenied:
		cause = ErrPermissionDenied
	case cause == nil && perm == PermissionUnrequested:
		cause = ErrPermissionDismissed
	case cause == nil:
		cause = ErrPermissionTimeout
	}

	// ctx 可能已经取消，回滚用独立的 ctx
	rollbackCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if rerr := d.prefs.SetPush(rollbackCtx, d.cfg.MemberID, false); rerr != nil {
		return errors.Join(cause, fmt.Errorf("回滚通知偏好失败: %w", rerr))
	}
	return cause
}

// DisablePush 关闭系统通知
func (d *Dispatcher) DisablePush(ctx context.Context) error {
	return d.prefs.SetPush(ctx, d.cfg.MemberID, false)
}

// SetSound 开关提示音
func (d *Dispatcher) SetSound(ctx context.Context, enabled bool) error {
	return d.prefs.SetSound(ctx, d.cfg.MemberID, enabled)
}

// Close 关闭订阅并取消尚未触发的自动关闭定时器
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	for tag, t := range d.timers {
		t.Stop()
		delete(d.timers, tag)
	}
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()

	if sub != nil {
		return sub.Close()
	}
	return nil
}
