package model

import "time"

// NotificationPreference 新消息提醒偏好
// 字段为 nil 表示未设置，按开启处理

type NotificationPreference struct {
	MemberID     string    `gorm:"type:varchar(36);primaryKey;comment:成员ID"`
	SoundEnabled *bool     `gorm:"comment:提示音开关"`
	PushEnabled  *bool     `gorm:"comment:系统通知开关"`
	UpdatedAt    time.Time `gorm:"comment:更新时间"`
}

func (NotificationPreference) TableName() string { return "notification_preference" }

// Sound 提示音是否开启
func (p *NotificationPreference) Sound() bool {
	return p == nil || p.SoundEnabled == nil || *p.SoundEnabled
}

// Push 系统通知是否开启
func (p *NotificationPreference) Push() bool {
	return p == nil || p.PushEnabled == nil || *p.PushEnabled
}
