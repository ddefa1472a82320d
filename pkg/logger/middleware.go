package logger

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 探活与指标抓取只记 debug
var quietPaths = map[string]bool{"/health": true, "/metrics": true}

// LoggerMiddleware 请求日志，已认证的请求附带成员ID
func LoggerMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		fields := []zap.Field{
			zap.String("method", param.Method),
			zap.String("path", param.Path),
			zap.String("ip", param.ClientIP),
			zap.Int("status", param.StatusCode),
			zap.Duration("latency", param.Latency),
			zap.String("user_agent", param.Request.UserAgent()),
		}
		if param.ErrorMessage != "" {
			fields = append(fields, zap.String("error", param.ErrorMessage))
		}
		// 键名与 jwt.ContextMemberIDKey 一致
		if id, ok := param.Keys["member_id"].(string); ok && id != "" {
			fields = append(fields, zap.String("member_id", id))
		}

		if quietPaths[param.Path] {
			Debug("HTTP请求", fields...)
		} else {
			Info("HTTP请求", fields...)
		}
		return ""
	})
}

// ErrorLoggerMiddleware 捕获 panic 并记录
func ErrorLoggerMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		Error("HTTP请求发生panic",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
			zap.String("error", fmt.Sprint(recovered)),
		)
		c.AbortWithStatus(500)
	})
}
