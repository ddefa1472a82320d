package model

import "time"

// Profile 成员资料
// 由外部认证服务维护，本服务只读取资料并更新 LastSeenAt
// LastSeenAt 为离线成员展示"最近在线"时间

type Profile struct {
	ID          string     `gorm:"type:varchar(36);primaryKey;comment:成员ID"`
	DisplayName string     `gorm:"type:varchar(128);not null;default:'';comment:显示名"`
	AvatarURL   *string    `gorm:"type:varchar(512);comment:头像URL"`
	LastSeenAt  *time.Time `gorm:"comment:最近在线时间"`
	CreatedAt   time.Time  `gorm:"comment:创建时间"`
	UpdatedAt   time.Time  `gorm:"comment:更新时间"`
}

func (Profile) TableName() string { return "profile" }

// UnknownDisplayName 资料缺失时的显示名
const UnknownDisplayName = "Unknown"

// Name 返回显示名，资料缺失或为空时返回 Unknown
func (p *Profile) Name() string {
	if p == nil || p.DisplayName == "" {
		return UnknownDisplayName
	}
	return p.DisplayName
}

// Avatar 返回头像地址，资料缺失时为 nil
func (p *Profile) Avatar() *string {
	if p == nil {
		return nil
	}
	return p.AvatarURL
}
