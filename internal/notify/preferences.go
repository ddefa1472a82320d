package notify

import (
	"context"
	"fmt"
)

// Preferences 提醒偏好，未设置时均为开启
type Preferences struct {
	Sound bool `json:"sound"`
	Push  bool `json:"push"`
}

// PreferenceUpdate 部分更新，nil 字段不修改
type PreferenceUpdate struct {
	Sound *bool `json:"sound"`
	Push  *bool `json:"push"`
}

// LoadPreferences 读取成员的提醒偏好
func LoadPreferences(ctx context.Context, store PreferenceStore, memberID string) (Preferences, error) {
	p, err := store.Get(ctx, memberID)
	if err != nil {
		return Preferences{}, fmt.Errorf("读取提醒偏好失败: %w", err)
	}
	return Preferences{Sound: p.Sound(), Push: p.Push()}, nil
}

// SavePreferences 直接持久化偏好，不涉及浏览器授权
func SavePreferences(ctx context.Context, store PreferenceStore, memberID string, u PreferenceUpdate) (Preferences, error) {
	if u.Sound != nil {
		if err := store.SetSound(ctx, memberID, *u.Sound); err != nil {
			return Preferences{}, fmt.Errorf("保存提示音偏好失败: %w", err)
		}
	}
	if u.Push != nil {
		if err := store.SetPush(ctx, memberID, *u.Push); err != nil {
			return Preferences{}, fmt.Errorf("保存通知偏好失败: %w", err)
		}
	}
	return LoadPreferences(ctx, store, memberID)
}
