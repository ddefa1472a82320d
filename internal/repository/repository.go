package repository

import "gorm.io/gorm"

// Repositories 聚合所有仓储，便于在 main 和测试中一次性构造
type Repositories struct {
	Profiles    *ProfileRepository
	Threads     *ThreadRepository
	Members     *MemberRepository
	Messages    *MessageRepository
	Preferences *PreferenceRepository
}

// New 基于同一个数据库连接创建全部仓储
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		Profiles:    NewProfileRepository(db),
		Threads:     NewThreadRepository(db),
		Members:     NewMemberRepository(db),
		Messages:    NewMessageRepository(db),
		Preferences: NewPreferenceRepository(db),
	}
}
