package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(expire time.Duration) *JWTService {
	return NewJWTService(config.JWTConfig{Secret: "test-secret-key-0123456789", Issuer: "family-hub", ExpireTime: expire})
}

func TestGenerateAndValidate(t *testing.T) {
	s := newTestService(time.Hour)
	token, err := s.GenerateToken("member-1")
	require.NoError(t, err)

	id, err := s.MemberIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "member-1", id)

	_, err = s.GenerateToken("")
	assert.Error(t, err)
}

func TestValidateRejectsWrongIssuerAndExpired(t *testing.T) {
	token, err := newTestService(time.Hour).GenerateToken("member-1")
	require.NoError(t, err)

	other := NewJWTService(config.JWTConfig{Secret: "test-secret-key-0123456789", Issuer: "someone-else", ExpireTime: time.Hour})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	expired, err := newTestService(-time.Minute).GenerateToken("member-1")
	require.NoError(t, err)
	_, err = newTestService(time.Hour).ValidateToken(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = newTestService(time.Hour).ValidateToken("")
	assert.ErrorIs(t, err, ErrTokenEmpty)
}

func TestNameClaim(t *testing.T) {
	s := newTestService(time.Hour)
	token, err := s.GenerateToken("member-1", WithName("Ma"))
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "member-1", claims.MemberID())
	assert.Equal(t, "Ma", claims.Name)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestService(time.Hour)

	r := gin.New()
	r.GET("/me", s.AuthMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, GetMemberID(c))
	})

	token, err := s.GenerateToken("member-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "member-1", w.Body.String())

	for _, header := range []string{"", "Token abc", "Bearer ", "Bearer short"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Contains(t, w.Body.String(), `"code":401`, header)
	}
}
