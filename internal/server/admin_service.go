package server

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"github.com/clipmark/ratekeeper-go/internal/config"
	"github.com/clipmark/ratekeeper-go/internal/guard"
	"github.com/clipmark/ratekeeper-go/internal/limiter"
	"github.com/clipmark/ratekeeper-go/internal/metrics"
	"github.com/clipmark/ratekeeper-go/internal/policy"
)

// AdminService 代表管理服务，提供策略查看、手动限流检查和状态重置功能
// prometheus metrics 通过 /metrics 端点暴露
type AdminService struct {
	mu              sync.RWMutex
	config          *config.AdminConfig
	logger          *logr.Logger
	limiter         limiter.RateLimiter
	policies        *policy.Store
	guarded         *guard.GuardedStore // 引用受保护后端以获取熔断状态，可为nil
	metricsRegistry *metrics.MetricsRegistry
	ipGuard         *IPGuard
	startTime       time.Time
	running         bool
}

// NewAdminService 创建新的管理服务实例
func NewAdminService() *AdminService {
	return &AdminService{
		startTime: time.Now(),
	}
}

// Initialize 初始化管理服务
func (s *AdminService) Initialize(cfg *config.AdminConfig, logger *logr.Logger, rl limiter.RateLimiter, policies *policy.Store, guarded *guard.GuardedStore) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = cfg
	s.logger = logger
	s.limiter = rl
	s.policies = policies
	s.guarded = guarded
	s.metricsRegistry = metrics.GetGlobalRegistry()
	s.ipGuard = NewIPGuard(float64(cfg.RateLimit.PerSecond), cfg.RateLimit.Burst)
}

// RegisterGroup 注册路由组和处理器
func (s *AdminService) RegisterGroup(g *gin.RouterGroup) {
	// 管理平面整体经过本地IP限流
	g.Use(s.ipGuard.Middleware())

	// 运行状态端点
	g.GET("/status", s.handleStatus)

	// 策略表快照端点
	g.GET("/policies", s.handlePolicies)

	// 手动限流检查端点，供运维探测服务余量
	g.POST("/limits/check", s.handleCheck)

	// 限流状态重置端点，用于管理恢复
	g.POST("/limits/reset", s.handleReset)

	// 统一指标端点
	g.GET("/metrics", s.handleMetrics)
}

// Run 启动管理服务
func (s *AdminService) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	if s.logger != nil {
		s.logger.Info("Admin service started")
	}
}

// Stop 停止管理服务
func (s *AdminService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.logger != nil {
		s.logger.Info("Admin service stopped")
	}
}

// IsRunning 检查服务是否运行中
func (s *AdminService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
