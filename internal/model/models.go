package model

// All 返回需要自动迁移的模型
func All() []interface{} {
	return []interface{}{
		&Profile{},
		&Thread{},
		&ThreadMember{},
		&Message{},
		&NotificationPreference{},
	}
}
