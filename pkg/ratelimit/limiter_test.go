package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBurstPerKey(t *testing.T) {
	p := NewPool(0.001, 2)

	assert.True(t, p.Allow("a"))
	assert.True(t, p.Allow("a"))
	assert.False(t, p.Allow("a"))
	assert.True(t, p.Allow("b"))
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := NewPool(0.001, 1)

	r := gin.New()
	r.POST("/send", p.Middleware(func(c *gin.Context) string { return c.GetHeader("X-Member") }), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	do := func(member string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/send", nil)
		req.Header.Set("X-Member", member)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, do("a").Code)

	w := do("a")
	var body struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 429, body.Code)

	// 没有键的请求不限流
	assert.Equal(t, http.StatusNoContent, do("").Code)
	assert.Equal(t, http.StatusNoContent, do("").Code)
}
