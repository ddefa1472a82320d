package repository

import (
	"context"
	"errors"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThreadRepository 会话仓储
type ThreadRepository struct {
	db *gorm.DB
}

// NewThreadRepository 创建ThreadRepository实例
func NewThreadRepository(db *gorm.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

// Create 创建会话
func (r *ThreadRepository) Create(ctx context.Context, thread *model.Thread) error {
	return r.db.WithContext(ctx).Create(thread).Error
}

// CreateWithMembers 在一个事务中创建会话及其成员
func (r *ThreadRepository) CreateWithMembers(ctx context.Context, thread *model.Thread, members []*model.ThreadMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(thread).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	})
}

// CreateDirectIfAbsent 创建单聊；若该成员对已存在单聊（唯一键冲突），返回已存在的会话
func (r *ThreadRepository) CreateDirectIfAbsent(ctx context.Context, thread *model.Thread, members []*model.ThreadMember) (*model.Thread, error) {
	if thread.DirectKey == nil {
		return nil, errors.New("direct thread requires a direct key")
	}

	var result *model.Thread
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "direct_key"}},
			DoNothing: true,
		}).Create(thread)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 已被其他请求创建
			var existing model.Thread
			if err := tx.Where("direct_key = ?", *thread.DirectKey).First(&existing).Error; err != nil {
				return err
			}
			result = &existing
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error; err != nil {
			return err
		}
		result = thread
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetByID 根据ID获取会话
func (r *ThreadRepository) GetByID(ctx context.Context, id string) (*model.Thread, error) {
	var thread model.Thread
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &thread, nil
}

// FindByDirectKey 根据成员对查找单聊
func (r *ThreadRepository) FindByDirectKey(ctx context.Context, key string) (*model.Thread, error) {
	var thread model.Thread
	err := r.db.WithContext(ctx).Where("direct_key = ?", key).First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &thread, nil
}

// ListByIDs 批量获取会话
func (r *ThreadRepository) ListByIDs(ctx context.Context, ids []string) ([]*model.Thread, error) {
	var threads []*model.Thread
	if len(ids) == 0 {
		return threads, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&threads).Error
	return threads, err
}

// ListGroupsByTitle 按创建时间升序列出指定标题的群聊
func (r *ThreadRepository) ListGroupsByTitle(ctx context.Context, title string) ([]*model.Thread, error) {
	var threads []*model.Thread
	err := r.db.WithContext(ctx).
		Where("kind = ? AND title = ?", model.ThreadKindGroup, title).
		Order("created_at ASC").
		Order("id ASC").
		Find(&threads).Error
	return threads, err
}

// DeleteCascade 在一个事务中删除会话及其成员与消息
func (r *ThreadRepository) DeleteCascade(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("thread_id IN ?", ids).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("thread_id IN ?", ids).Delete(&model.ThreadMember{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&model.Thread{}).Error
	})
}
