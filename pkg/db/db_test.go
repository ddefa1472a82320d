package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type captureWriter struct{ lines []string }

func (w *captureWriter) Printf(format string, args ...interface{}) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func TestGormLoggerIgnoresRecordNotFound(t *testing.T) {
	w := &captureWriter{}
	l := newGormLogger(w, false)
	sql := func() (string, int64) { return "SELECT * FROM `profile` WHERE id = 'x'", 0 }

	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Empty(t, w.lines)

	l.Trace(context.Background(), time.Now(), sql, errors.New("connection refused"))
	require.Len(t, w.lines, 1)
	assert.Contains(t, w.lines[0], "connection refused")
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(config.DatabaseConfig{
		Host:     "db.local",
		Port:     3306,
		Username: "hub",
		Password: "secret",
		Database: "family",
		Charset:  "utf8mb4",
	})

	assert.True(t, strings.HasPrefix(dsn, "hub:secret@tcp(db.local:3306)/family?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestOpenSQLite(t *testing.T) {
	gdb, err := Open(config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "hub.db"),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	assert.NoError(t, sqlDB.Ping())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
