package logger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorLoggerMiddlewareRecoversPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	router := gin.New()
	router.Use(ErrorLoggerMiddleware())
	router.GET("/boom", func(c *gin.Context) { panic(assert.AnError) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	entries := logs.FilterMessage("HTTP请求发生panic").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "/boom", entries[0].ContextMap()["path"])
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestInitLoggerWritesJSONFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "logs", "app.log")
	l := InitLogger(config.LogConfig{Level: "debug", Filename: filename, MaxSize: 1})
	t.Cleanup(func() { SetLogger(nil) })

	Info("会话已打开", zap.String("thread_id", "t-1"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"thread_id":"t-1"`)
	assert.Contains(t, string(data), `"service":"family-hub"`)
}

func TestLoggerMiddlewareAddsMemberID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	router := gin.New()
	router.Use(LoggerMiddleware())
	router.GET("/threads", func(c *gin.Context) {
		c.Set("member_id", "member-1")
		c.Status(http.StatusOK)
	})
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/threads", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.FilterMessage("HTTP请求").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "member-1", entries[0].ContextMap()["member_id"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}
