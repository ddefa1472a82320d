// Package ratelimit 按成员的令牌桶限流
package ratelimit

import (
	"sync"

	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Pool 每个键一个令牌桶
type Pool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

// NewPool 创建限流池，非正数参数取默认值 5/s、突发 10
func NewPool(rps float64, burst int) *Pool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Pool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *Pool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// Allow 是否允许该键的一次请求
func (p *Pool) Allow(key string) bool {
	return p.get(key).Allow()
}

// Middleware 以 keyFn 返回的键限流，键为空时不限流
func (p *Pool) Middleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key != "" && !p.Allow(key) {
			response.TooManyRequests(c, "发送过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}
