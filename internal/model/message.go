package model

import "time"

// AttachmentType 附件类型
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
)

// Message 消息
// CreatedAt 由服务端时钟写入且不可修改，决定会话内的全序
// 软删除：IsDeleted=true 且清空内容，行与位置保留
// 编辑：更新内容并设置 EditedAt，不改变 CreatedAt

type Message struct {
	ID             string          `gorm:"type:varchar(36);primaryKey;comment:消息ID"`
	ThreadID       string          `gorm:"type:varchar(36);not null;index:idx_message_thread_created,priority:1;comment:会话ID"`
	SenderID       string          `gorm:"type:varchar(36);not null;index;comment:发送者ID"`
	Content        string          `gorm:"type:text;not null;comment:消息内容"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_message_thread_created,priority:2;comment:创建时间"`
	EditedAt       *time.Time      `gorm:"comment:编辑时间"`
	IsDeleted      bool            `gorm:"not null;default:false;comment:是否已删除"`
	AttachmentURL  *string         `gorm:"type:varchar(1024);comment:附件地址"`
	AttachmentType *AttachmentType `gorm:"type:varchar(16);comment:附件类型"`
	AttachmentName *string         `gorm:"type:varchar(255);comment:附件名"`
}

func (Message) TableName() string { return "message" }

// HasAttachment 是否带附件
func (m *Message) HasAttachment() bool {
	return m.AttachmentURL != nil && *m.AttachmentURL != ""
}
