package repository

import (
	"context"
	"errors"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"

	"gorm.io/gorm"
)

// MessageRepository 消息数据仓储
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建MessageRepository实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 追加消息
func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// GetByID 根据ID获取消息
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &message, nil
}

// ListByThread 按创建时间升序列出会话内全部消息（含已删除的占位）
func (r *MessageRepository) ListByThread(ctx context.Context, threadID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// LatestVisibleByThreads 获取每个会话最近一条未删除的消息，返回 会话ID -> 消息
func (r *MessageRepository) LatestVisibleByThreads(ctx context.Context, threadIDs []string) (map[string]*model.Message, error) {
	result := make(map[string]*model.Message, len(threadIDs))
	if len(threadIDs) == 0 {
		return result, nil
	}

	latest := r.db.Table("message AS m2").
		Select("MAX(m2.created_at)").
		Where("m2.thread_id = m.thread_id AND m2.is_deleted = ?", false)

	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Table("message AS m").
		Where("m.thread_id IN ? AND m.is_deleted = ?", threadIDs, false).
		Where("m.created_at = (?)", latest).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// 同一时间戳可能有多条，按ID取最大的一条保证结果稳定
	for _, msg := range messages {
		if cur, ok := result[msg.ThreadID]; !ok || msg.ID > cur.ID {
			result[msg.ThreadID] = msg
		}
	}
	return result, nil
}

// UpdateContent 编辑消息内容并记录编辑时间
func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"edited_at": editedAt,
		}).Error
}

// SoftDelete 软删除：标记删除并清空内容，附件引用保留
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"content":    "",
		}).Error
}

// CountUnread 统计会话中某成员未读的消息数：他人发送、未删除、晚于 after
func (r *MessageRepository) CountUnread(ctx context.Context, threadID, memberID string, after time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("thread_id = ? AND sender_id <> ? AND is_deleted = ? AND created_at > ?",
			threadID, memberID, false, after).
		Count(&count).Error
	return count, err
}
