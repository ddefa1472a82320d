package repository

import (
	"context"
	"errors"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// ProfileRepository 成员资料仓储
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建ProfileRepository实例
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert 写入或更新资料（资料由认证服务同步过来）
func (r *ProfileRepository) Upsert(ctx context.Context, p *model.Profile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "avatar_url", "updated_at"}),
	}).Create(p).Error
}

// GetByID 根据成员ID获取资料
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByIDs 批量获取资料，返回 成员ID -> 资料 的映射；缺失的成员不在映射中
func (r *ProfileRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*model.Profile, error) {
	result := make(map[string]*model.Profile, len(ids))
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return result, nil
	}

	var profiles []*model.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.ID] = p
	}
	return result, nil
}

// UpdateLastSeen 更新最近在线时间
func (r *ProfileRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Profile{}).
		Where("id = ?", id).
		Update("last_seen_at", at).Error
}

// uniqueStrings 去重并去掉空字符串，保持原顺序
func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
