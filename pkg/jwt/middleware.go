package jwt

import (
	"strings"

	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ContextMemberIDKey 成员ID在gin.Context中的键名
	ContextMemberIDKey = "member_id"
	// ContextClaimsKey JWT声明在gin.Context中的键名
	ContextClaimsKey = "jwt_claims"
)

// AuthMiddleware JWT认证中间件
// 从请求头中提取Authorization: Bearer <token>
// 验证token并将成员信息存入gin.Context
func (s *JWTService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从请求头获取Authorization
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "缺少Authorization请求头")
			c.Abort()
			return
		}

		// 检查Bearer前缀
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "Authorization格式错误，应为Bearer <token>")
			c.Abort()
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if tokenString == "" {
			response.Unauthorized(c, "token不能为空")
			c.Abort()
			return
		}

		claims, err := s.ValidateToken(tokenString)
		if err != nil {
			logger.Warn("JWT验证失败",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
			)
			response.Unauthorized(c, "token无效或已过期")
			c.Abort()
			return
		}

		c.Set(ContextMemberIDKey, claims.MemberID())
		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

// MemberIDFromToken 校验令牌并返回成员ID（websocket 握手无法携带请求头时使用）
func (s *JWTService) MemberIDFromToken(tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.MemberID(), nil
}

// GetMemberID 从gin.Context中获取成员ID
func GetMemberID(c *gin.Context) string {
	if memberID, exists := c.Get(ContextMemberIDKey); exists {
		if id, ok := memberID.(string); ok {
			return id
		}
	}
	return ""
}

// GetClaims 从gin.Context中获取JWT声明
func GetClaims(c *gin.Context) *MemberClaims {
	if claims, exists := c.Get(ContextClaimsKey); exists {
		if c, ok := claims.(*MemberClaims); ok {
			return c
		}
	}
	return nil
}
