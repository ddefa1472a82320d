package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// 令牌由外部认证服务签发，这里只负责校验
var (
	ErrTokenEmpty   = errors.New("token is empty")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// 允许的时钟偏差
const clockSkew = 30 * time.Second

// JWTService 校验成员令牌（HS256，成员ID存放在 Subject）
type JWTService struct {
	secretKey   []byte
	issuer      string
	expireAfter time.Duration
}

// MemberClaims 成员令牌载荷
type MemberClaims struct {
	Name string `json:"name,omitempty"` // 显示名，可选
	jwtv5.RegisteredClaims
}

// MemberID 令牌对应的成员
func (c *MemberClaims) MemberID() string { return c.Subject }

// TokenOption 生成令牌时的可选项
type TokenOption func(*MemberClaims)

// WithName 在令牌中附带显示名
func WithName(name string) TokenOption {
	return func(c *MemberClaims) { c.Name = name }
}

// NewJWTService 创建 JWT 服务
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secretKey:   []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		expireAfter: cfg.ExpireTime,
	}
}

// GenerateToken 签发成员令牌，供本地联调和测试使用
func (s *JWTService) GenerateToken(memberID string, opts ...TokenOption) (string, error) {
	if memberID == "" {
		return "", errors.New("memberID is required")
	}

	now := time.Now()
	claims := &MemberClaims{
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   memberID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(s.expireAfter)),
		},
	}
	for _, opt := range opts {
		opt(claims)
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return signed, nil
}

// ValidateToken 校验签名、签发者与有效期，返回成员声明
// 过期返回 ErrTokenExpired，其余失败返回 ErrTokenInvalid
func (s *JWTService) ValidateToken(tokenString string) (*MemberClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenEmpty
	}

	claims := &MemberClaims{}
	_, err := jwtv5.ParseWithClaims(tokenString, claims,
		func(*jwtv5.Token) (interface{}, error) { return s.secretKey, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(s.issuer),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithLeeway(clockSkew),
	)
	switch {
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrTokenInvalid)
	}
	return claims, nil
}
