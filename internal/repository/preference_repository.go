package repository

import (
	"context"
	"errors"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PreferenceRepository 提醒偏好仓储
type PreferenceRepository struct {
	db *gorm.DB
}

// NewPreferenceRepository 创建PreferenceRepository实例
func NewPreferenceRepository(db *gorm.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get 获取成员的提醒偏好，未设置过时返回 nil
func (r *PreferenceRepository) Get(ctx context.Context, memberID string) (*model.NotificationPreference, error) {
	var p model.NotificationPreference
	err := r.db.WithContext(ctx).Where("member_id = ?", memberID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// SetSound 持久化提示音开关
func (r *PreferenceRepository) SetSound(ctx context.Context, memberID string, enabled bool) error {
	return r.upsert(ctx, &model.NotificationPreference{MemberID: memberID, SoundEnabled: &enabled}, "sound_enabled")
}

// SetPush 持久化系统通知开关
func (r *PreferenceRepository) SetPush(ctx context.Context, memberID string, enabled bool) error {
	return r.upsert(ctx, &model.NotificationPreference{MemberID: memberID, PushEnabled: &enabled}, "push_enabled")
}

func (r *PreferenceRepository) upsert(ctx context.Context, p *model.NotificationPreference, column string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}},
		DoUpdates: clause.AssignmentColumns([]string{column, "updated_at"}),
	}).Create(p).Error
}
