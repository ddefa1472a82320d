package repository

import (
	"context"
	"errors"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemberRepository 会话成员仓储
type MemberRepository struct {
	db *gorm.DB
}

// NewMemberRepository 创建MemberRepository实例
func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Add 添加成员，已存在时不做任何修改
func (r *MemberRepository) Add(ctx context.Context, member *model.ThreadMember) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(member).Error
}

// Get 获取某成员在某会话中的成员记录
func (r *MemberRepository) Get(ctx context.Context, threadID, memberID string) (*model.ThreadMember, error) {
	var m model.ThreadMember
	err := r.db.WithContext(ctx).
		Where("thread_id = ? AND member_id = ?", threadID, memberID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// IsMember 检查成员是否属于会话
func (r *MemberRepository) IsMember(ctx context.Context, threadID, memberID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ThreadMember{}).
		Where("thread_id = ? AND member_id = ?", threadID, memberID).
		Count(&count).Error
	return count > 0, err
}

// ListByMember 列出成员加入的所有会话成员记录
func (r *MemberRepository) ListByMember(ctx context.Context, memberID string) ([]*model.ThreadMember, error) {
	var members []*model.ThreadMember
	err := r.db.WithContext(ctx).Where("member_id = ?", memberID).Find(&members).Error
	return members, err
}

// ListByThread 列出会话的全部成员
func (r *MemberRepository) ListByThread(ctx context.Context, threadID string) ([]*model.ThreadMember, error) {
	var members []*model.ThreadMember
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}

// ListByThreads 批量列出多个会话的成员，返回 会话ID -> 成员列表
func (r *MemberRepository) ListByThreads(ctx context.Context, threadIDs []string) (map[string][]*model.ThreadMember, error) {
	result := make(map[string][]*model.ThreadMember, len(threadIDs))
	if len(threadIDs) == 0 {
		return result, nil
	}
	var members []*model.ThreadMember
	err := r.db.WithContext(ctx).
		Where("thread_id IN ?", threadIDs).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		result[m.ThreadID] = append(result[m.ThreadID], m)
	}
	return result, nil
}

// UpdateLastRead 更新成员在会话中的最后已读时间，返回是否命中成员记录
func (r *MemberRepository) UpdateLastRead(ctx context.Context, threadID, memberID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.ThreadMember{}).
		Where("thread_id = ? AND member_id = ?", threadID, memberID).
		Update("last_read_at", at)
	return res.RowsAffected > 0, res.Error
}
