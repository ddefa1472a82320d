package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/repository"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/metrics"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/realtime"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/storage"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttachmentUpload 待上传的附件
// Type 为空时按 ContentType 推断：image/* 为图片，其余为文件
type AttachmentUpload struct {
	Name        string
	ContentType string
	Type        model.AttachmentType
	Size        int64
	Body        io.Reader
}

// MessageView 带发送者资料的消息
type MessageView struct {
	ID             string                `json:"id"`
	ThreadID       string                `json:"thread_id"`
	SenderID       string                `json:"sender_id"`
	SenderName     string                `json:"sender_name"`
	SenderAvatar   *string               `json:"sender_avatar"`
	Content        string                `json:"content"`
	CreatedAt      time.Time             `json:"created_at"`
	EditedAt       *time.Time            `json:"edited_at"`
	IsDeleted      bool                  `json:"is_deleted"`
	AttachmentURL  *string               `json:"attachment_url"`
	AttachmentType *model.AttachmentType `json:"attachment_type"`
	AttachmentName *string               `json:"attachment_name"`
}

func newMessageView(m *model.Message, sender *model.Profile) MessageView {
	return MessageView{
		ID:             m.ID,
		ThreadID:       m.ThreadID,
		SenderID:       m.SenderID,
		SenderName:     sender.Name(),
		SenderAvatar:   sender.Avatar(),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		IsDeleted:      m.IsDeleted,
		AttachmentURL:  m.AttachmentURL,
		AttachmentType: m.AttachmentType,
		AttachmentName: m.AttachmentName,
	}
}

// ViewInvalidation 通知前端重新拉取的视图
type ViewInvalidation struct {
	ThreadID string   `json:"thread_id"`
	Views    []string `json:"views"`
}

// MessageService 消息服务
type MessageService struct {
	repos         *repository.Repositories
	feed          realtime.ChangeFeed
	attachments   AttachmentStore
	views         ViewCache
	unread        UnreadCache
	maxAttachment int64
	cacheTTL      time.Duration
	now           func() time.Time
}

// MessageServiceOptions 可选依赖
type MessageServiceOptions struct {
	Attachments   AttachmentStore
	Views         ViewCache
	Unread        UnreadCache
	MaxAttachment int64
	CacheTTL      time.Duration
}

// NewMessageService 创建MessageService实例
func NewMessageService(repos *repository.Repositories, feed realtime.ChangeFeed, opts MessageServiceOptions) *MessageService {
	return &MessageService{
		repos:         repos,
		feed:          feed,
		attachments:   opts.Attachments,
		views:         opts.Views,
		unread:        opts.Unread,
		maxAttachment: opts.MaxAttachment,
		cacheTTL:      opts.CacheTTL,
		now:           utcNow,
	}
}

// SetClock 替换时钟
func (s *MessageService) SetClock(now func() time.Time) { s.now = now }

// requireMember 会话不存在返回 ErrThreadNotFound，非成员返回 ErrNotThreadMember
func requireMember(ctx context.Context, repos *repository.Repositories, threadID, memberID string) error {
	if _, err := repos.Threads.GetByID(ctx, threadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrThreadNotFound
		}
		return fmt.Errorf("查询会话失败: %w", err)
	}
	ok, err := repos.Members.IsMember(ctx, threadID, memberID)
	if err != nil {
		return fmt.Errorf("查询会话成员失败: %w", err)
	}
	if !ok {
		return ErrNotThreadMember
	}
	return nil
}

// CheckAccess 校验成员能否访问会话
func (s *MessageService) CheckAccess(ctx context.Context, memberID, threadID string) error {
	return requireMember(ctx, s.repos, threadID, memberID)
}

// ListMessages 按创建时间升序返回会话内的消息，已删除的消息作为占位保留
func (s *MessageService) ListMessages(ctx context.Context, memberID, threadID string) ([]MessageView, error) {
	if err := requireMember(ctx, s.repos, threadID, memberID); err != nil {
		return nil, err
	}

	// 版本号必须在读库之前取得
	cached, version, ok := s.cachedMessages(ctx, threadID)
	if ok {
		return cached, nil
	}

	messages, err := s.repos.Messages.ListByThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("查询消息失败: %w", err)
	}

	senderIDs := make([]string, 0, len(messages))
	for _, m := range messages {
		senderIDs = append(senderIDs, m.SenderID)
	}
	profiles, err := s.repos.Profiles.GetByIDs(ctx, senderIDs)
	if err != nil {
		return nil, fmt.Errorf("查询发送者资料失败: %w", err)
	}

	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, newMessageView(m, profiles[m.SenderID]))
	}

	s.cacheMessages(ctx, threadID, version, views)
	return views, nil
}

// cachedMessages 读取失败时返回 version=-1，随后的写入会被跳过
func (s *MessageService) cachedMessages(ctx context.Context, threadID string) ([]MessageView, int64, bool) {
	if s.views == nil {
		return nil, -1, false
	}
	data, version, ok, err := s.views.Get(ctx, messagesKey(threadID))
	if err != nil {
		logger.Warn("读取消息列表缓存失败", zap.Error(err), zap.String("thread_id", threadID))
		return nil, -1, false
	}
	if !ok {
		return nil, version, false
	}
	var views []MessageView
	if err := json.Unmarshal(data, &views); err != nil {
		return nil, version, false
	}
	return views, version, true
}

func (s *MessageService) cacheMessages(ctx context.Context, threadID string, version int64, views []MessageView) {
	if s.views == nil || version < 0 {
		return
	}
	data, err := json.Marshal(views)
	if err != nil {
		return
	}
	if err := s.views.Set(ctx, messagesKey(threadID), version, data, s.cacheTTL); err != nil {
		logger.Warn("写入消息列表缓存失败", zap.Error(err), zap.String("thread_id", threadID))
	}
}

// SendMessage 发送消息
// 内容为空且没有附件、附件超限都在访问存储之前拒绝
func (s *MessageService) SendMessage(ctx context.Context, senderID, threadID, content string, upload *AttachmentUpload) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" && upload == nil {
		return nil, ErrEmptyMessage
	}

	var attachmentType model.AttachmentType
	if upload != nil {
		t, err := s.checkAttachment(upload)
		if err != nil {
			return nil, err
		}
		attachmentType = t
	}

	if err := requireMember(ctx, s.repos, threadID, senderID); err != nil {
		return nil, err
	}

	message := &model.Message{
		ID:       uuid.NewString(),
		ThreadID: threadID,
		SenderID: senderID,
		Content:  content,
	}

	if upload != nil {
		if s.attachments == nil {
			return nil, errors.New("附件存储未配置")
		}
		key := storage.AttachmentKey(threadID, uuid.NewString(), upload.Name)
		url, err := s.attachments.Put(ctx, key, upload.Body, upload.Size, upload.ContentType)
		if err != nil {
			return nil, fmt.Errorf("上传附件失败: %w", err)
		}
		name := upload.Name
		message.AttachmentURL = &url
		message.AttachmentType = &attachmentType
		message.AttachmentName = &name
	}

	message.CreatedAt = s.now()
	if err := s.repos.Messages.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("保存消息失败: %w", err)
	}
	metrics.MessagesSent.Inc()

	// 先失效缓存再发布事件，订阅者收到事件后读到的是新数据
	roster, err := s.repos.Members.ListByThread(ctx, threadID)
	if err != nil {
		logger.Warn("查询会话成员失败，跳过缓存失效", zap.Error(err), zap.String("thread_id", threadID))
	} else {
		keys := append(rosterThreadKeys(roster), messagesKey(threadID))
		invalidateViews(ctx, s.views, keys...)
		invalidateUnread(ctx, s.unread, othersOf(roster, senderID)...)
	}

	s.publish(ctx, message, realtime.OpInsert)

	view := newMessageView(message, s.senderProfile(ctx, senderID))
	return &view, nil
}

// senderProfile 资料缺失时返回 nil，由视图显示为未知成员
func (s *MessageService) senderProfile(ctx context.Context, memberID string) *model.Profile {
	sender, err := s.repos.Profiles.GetByID(ctx, memberID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Warn("查询发送者资料失败", zap.Error(err), zap.String("member_id", memberID))
		}
		return nil
	}
	return sender
}

func (s *MessageService) checkAttachment(upload *AttachmentUpload) (model.AttachmentType, error) {
	t := upload.Type
	if t == "" {
		t = model.AttachmentFile
		if strings.HasPrefix(upload.ContentType, "image/") {
			t = model.AttachmentImage
		}
	}
	if t != model.AttachmentImage && t != model.AttachmentFile {
		return "", ErrInvalidAttachmentType
	}
	if s.maxAttachment > 0 && upload.Size > s.maxAttachment {
		return "", fmt.Errorf("%w: %s > %s", ErrAttachmentTooLarge,
			humanize.IBytes(uint64(upload.Size)), humanize.IBytes(uint64(s.maxAttachment)))
	}
	return t, nil
}

// EditMessage 编辑消息内容，只有作者可以编辑，已删除的消息不能编辑
func (s *MessageService) EditMessage(ctx context.Context, editorID, messageID, content string) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != editorID {
		return nil, ErrNotMessageAuthor
	}
	if message.IsDeleted {
		return nil, ErrMessageDeleted
	}

	editedAt := s.now()
	if err := s.repos.Messages.UpdateContent(ctx, messageID, content, editedAt); err != nil {
		return nil, fmt.Errorf("编辑消息失败: %w", err)
	}
	message.Content = content
	message.EditedAt = &editedAt

	s.invalidateThread(ctx, message.ThreadID, false)
	s.publish(ctx, message, realtime.OpUpdate)

	view := newMessageView(message, s.senderProfile(ctx, editorID))
	return &view, nil
}

// DeleteMessage 软删除消息：标记删除并清空内容，附件对象不删除；重复删除无副作用
func (s *MessageService) DeleteMessage(ctx context.Context, memberID, messageID string) error {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != memberID {
		return ErrNotMessageAuthor
	}
	if message.IsDeleted {
		return nil
	}

	if err := s.repos.Messages.SoftDelete(ctx, messageID); err != nil {
		return fmt.Errorf("删除消息失败: %w", err)
	}
	message.IsDeleted = true
	message.Content = ""

	// 已删除的消息不再计入未读
	s.invalidateThread(ctx, message.ThreadID, true)
	s.publish(ctx, message, realtime.OpUpdate)
	return nil
}

// WatchThread 订阅会话的新消息，每条新消息回调一次视图失效通知
// 投递为至少一次，重复的失效通知无害；返回的订阅必须在页面离开时关闭
func (s *MessageService) WatchThread(ctx context.Context, threadID string, fn func(ViewInvalidation)) (realtime.Subscription, error) {
	filter := realtime.Filter{Table: realtime.TableMessage, Op: realtime.OpInsert, ThreadID: threadID}
	return s.feed.Subscribe(ctx, filter, func(realtime.ChangeEvent) {
		fn(ViewInvalidation{ThreadID: threadID, Views: []string{ViewMessages, ViewThreads}})
	})
}

func (s *MessageService) getMessage(ctx context.Context, messageID string) (*model.Message, error) {
	message, err := s.repos.Messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("查询消息失败: %w", err)
	}
	return message, nil
}

func (s *MessageService) invalidateThread(ctx context.Context, threadID string, unread bool) {
	roster, err := s.repos.Members.ListByThread(ctx, threadID)
	if err != nil {
		invalidateViews(ctx, s.views, messagesKey(threadID))
		return
	}
	invalidateViews(ctx, s.views, append(rosterThreadKeys(roster), messagesKey(threadID))...)
	if unread {
		invalidateUnread(ctx, s.unread, rosterIDs(roster)...)
	}
}

// publish 发布失败只记录日志：消息已经落库，订阅方会在下一次轮询时看到
func (s *MessageService) publish(ctx context.Context, m *model.Message, op realtime.Op) {
	if s.feed == nil {
		return
	}
	event := realtime.ChangeEvent{
		Table:     realtime.TableMessage,
		Op:        op,
		RowID:     m.ID,
		ThreadID:  m.ThreadID,
		SenderID:  m.SenderID,
		Deleted:   m.IsDeleted,
		CreatedAt: m.CreatedAt,
		Payload: realtime.EncodeMessagePayload(realtime.MessagePayload{
			Content:       m.Content,
			HasAttachment: m.HasAttachment(),
		}),
	}
	if err := s.feed.Publish(ctx, event); err != nil {
		logger.Warn("发布消息事件失败",
			zap.Error(err),
			zap.String("message_id", m.ID),
			zap.String("op", string(op)),
		)
	}
}

func othersOf(roster []*model.ThreadMember, memberID string) []string {
	ids := make([]string, 0, len(roster))
	for _, m := range roster {
		if m.MemberID != memberID {
			ids = append(ids, m.MemberID)
		}
	}
	return ids
}
