package model

import "time"

// ThreadKind 会话类型
type ThreadKind string

const (
	ThreadKindGroup  ThreadKind = "group"
	ThreadKindDirect ThreadKind = "direct"
)

// Thread 会话
// DirectKey: 单聊为 "<较小ID>:<较大ID>"，唯一索引保证每对成员只有一个单聊；群聊为 NULL
// Title: 群聊的标题；单聊标题由对方成员的显示名推导

type Thread struct {
	ID        string     `gorm:"type:varchar(36);primaryKey;comment:会话ID" json:"id"`
	Kind      ThreadKind `gorm:"type:varchar(16);not null;index;comment:会话类型(group/direct)" json:"kind"`
	Title     *string    `gorm:"type:varchar(128);index;comment:会话标题" json:"title"`
	DirectKey *string    `gorm:"type:varchar(80);uniqueIndex;comment:单聊成员对" json:"direct_key,omitempty"`
	CreatedBy string     `gorm:"type:varchar(36);not null;comment:创建者" json:"created_by"`
	CreatedAt time.Time  `gorm:"index;comment:创建时间" json:"created_at"`
}

func (Thread) TableName() string { return "thread" }

// ThreadMember 会话成员
// LastReadAt 为 nil 表示从未读过，只由成员本人更新

type ThreadMember struct {
	ThreadID   string     `gorm:"type:varchar(36);primaryKey;comment:会话ID"`
	MemberID   string     `gorm:"type:varchar(36);primaryKey;index;comment:成员ID"`
	JoinedAt   time.Time  `gorm:"comment:加入时间"`
	LastReadAt *time.Time `gorm:"comment:最后已读时间"`
}

func (ThreadMember) TableName() string { return "thread_member" }

// DirectKeyFor 计算两名成员的单聊唯一键（与顺序无关）
func DirectKeyFor(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
