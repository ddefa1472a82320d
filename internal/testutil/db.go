// Package testutil 测试辅助：临时 sqlite 数据库与种子数据
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB 在临时目录中创建并迁移 sqlite 数据库
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := db.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// sqlite 单连接，避免并发写入时 database is locked
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(gdb, model.All()...))
	return gdb
}

// CreateProfile 写入一个成员资料
func CreateProfile(t *testing.T, gdb *gorm.DB, name string) *model.Profile {
	t.Helper()
	p := &model.Profile{ID: uuid.NewString(), DisplayName: name}
	require.NoError(t, gdb.WithContext(context.Background()).Create(p).Error)
	return p
}

// Clock 可手动推进的时钟，并发安全
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock 从固定时间开始的时钟
func NewClock() *Clock {
	return &Clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

// Now 当前时间
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance 推进时钟
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}
