package logger

import (
	"os"
	"path/filepath"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 服务名，写入每条日志
const serviceName = "family-hub"

// 未初始化时使用空日志，测试与工具可以直接调用
var log = zap.NewNop()

// InitLogger 初始化日志系统
// 文件输出为JSON并按大小轮转；Console 为 true 时同时输出到标准输出
func InitLogger(cfg config.LogConfig) *zap.Logger {
	level := parseLevel(cfg.Level)
	encoderConfig := newEncoderConfig()

	var cores []zapcore.Core
	if cfg.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0755); err != nil {
			panic("无法创建日志目录: " + err.Error())
		}
		writer := &lumberjack.Logger{
			Filename:   cfg.Filename,   // 日志文件路径
			MaxSize:    cfg.MaxSize,    // 单个文件最大大小(MB)
			MaxBackups: cfg.MaxBackups, // 最大备份文件数
			MaxAge:     cfg.MaxAge,     // 最大保存天数
			Compress:   cfg.Compress,   // 是否压缩
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(writer), level))
	}
	if cfg.Console || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stdout), level))
	}

	log = zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("service", serviceName)),
	)
	zap.ReplaceGlobals(log)
	return log
}

func newEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return encoderConfig
}

// SetLogger 替换当前日志记录器（测试中注入 observer）
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	log = l
}

// parseLevel 无法识别的级别按 info 处理
func parseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// Debug 调试日志
func Debug(msg string, fields ...zap.Field) {
	log.Debug(msg, fields...)
}

// Info 信息日志
func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

// Warn 警告日志
func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

// Error 错误日志
func Error(msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
}

// Fatal 致命错误日志
func Fatal(msg string, fields ...zap.Field) {
	log.Fatal(msg, fields...)
}

// Sync 同步日志到磁盘
func Sync() error {
	return log.Sync()
}
