package server

import (
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/clipmark/ratekeeper-go/internal/response"
)

// IPGuard 管理接口的进程内IP级限流器
// 管理平面不经过分布式限流器，用本地令牌桶防止单个客户端刷爆管理接口
type IPGuard struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewIPGuard 创建新的IP限流器实例
func NewIPGuard(perSecond float64, burst int) *IPGuard {
	return &IPGuard{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow 检查请求来源IP是否允许通过
func (g *IPGuard) Allow(req *http.Request) bool {
	ip := clientIP(req)
	if ip == "" {
		return true // 无法获取IP时默认通过
	}

	return g.getLimiter(ip).Allow()
}

// Reset 重置指定IP的限流状态
func (g *IPGuard) Reset(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.limiters, ip)
}

// Middleware 返回gin中间件函数，超限请求直接返回429
func (g *IPGuard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Allow(c.Request) {
			response.Error(response.CodeRateLimit, "too many requests from this IP").
				JSON(c, http.StatusTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}

// getLimiter 获取或创建指定IP的限流器
func (g *IPGuard) getLimiter(ip string) *rate.Limiter {
	g.mu.RLock()
	limiter, exists := g.limiters[ip]
	g.mu.RUnlock()

	if exists {
		return limiter
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// 双重检查
	if limiter, exists := g.limiters[ip]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(g.limit, g.burst)
	g.limiters[ip] = limiter

	return limiter
}

// clientIP 从HTTP请求中获取客户端真实IP地址
func clientIP(req *http.Request) string {
	// 优先检查X-Forwarded-For头部
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For可能包含多个IP，取第一个有效的
		if ip := parseFirstIP(xff); ip != "" {
			return ip
		}
	}

	// 检查X-Real-IP头部
	if xri := req.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return xri
		}
	}

	// 使用RemoteAddr
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}

	return host
}

// parseFirstIP 解析并返回第一个有效的IP地址
func parseFirstIP(xff string) string {
	for i := 0; i < len(xff); i++ {
		if xff[i] == ',' {
			if ip := net.ParseIP(xff[:i]); ip != nil {
				return xff[:i]
			}
			break
		}
	}

	// 如果没有逗号，检查整个字符串
	if ip := net.ParseIP(xff); ip != nil {
		return xff
	}

	return ""
}
