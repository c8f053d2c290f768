package server

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipmark/ratekeeper-go/internal/constants"
	"github.com/clipmark/ratekeeper-go/internal/limiter"
	"github.com/clipmark/ratekeeper-go/internal/response"
)

// checkRequest 代表手动限流检查请求体
type checkRequest struct {
	Service    string  `json:"service" binding:"required"`
	Identifier string  `json:"identifier,omitempty"`
	Cost       float64 `json:"cost,omitempty"`
	Operation  string  `json:"operation,omitempty"`
}

// resetRequest 代表限流状态重置请求体
type resetRequest struct {
	Service    string `json:"service" binding:"required"`
	Identifier string `json:"identifier,omitempty"`
}

// handleStatus 处理运行状态请求
func (s *AdminService) handleStatus(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	statusInfo := gin.H{
		"service": gin.H{
			"name":       constants.AppName,
			"uptime":     time.Since(s.startTime).Seconds(),
			"start_time": s.startTime.Format(time.RFC3339),
		},
		"runtime": gin.H{
			"go_version":   runtime.Version(),
			"goroutines":   runtime.NumGoroutine(),
			"memory_alloc": memStats.Alloc,
		},
	}

	if s.policies != nil {
		statusInfo["policies"] = gin.H{
			"count":    s.policies.Len(),
			"services": s.policies.Services(),
		}
	}

	if s.guarded != nil {
		statusInfo["availability_guard"] = gin.H{
			"state": s.guarded.State().String(),
		}
	}

	response.Success(statusInfo).JSON(c, http.StatusOK)
}

// handlePolicies 处理策略表快照请求
func (s *AdminService) handlePolicies(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.policies == nil {
		response.Error(response.CodeNotFound, "policy store not available").JSON(c, http.StatusNotFound)
		return
	}

	response.Success(s.policies.GetAll()).JSON(c, http.StatusOK)
}

// handleCheck 处理手动限流检查请求
// 拒绝和后端不可用都以对应的业务代码返回，调用方据此区分重试策略
func (s *AdminService) handleCheck(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(response.CodeBadRequest, err.Error()).JSON(c, http.StatusBadRequest)
		return
	}

	opts := &limiter.CheckOptions{
		Identifier: req.Identifier,
		Cost:       req.Cost,
	}
	if req.Operation != "" {
		opts.Metadata = &limiter.CheckMetadata{Operation: req.Operation}
	}

	result, err := s.limiter.CheckLimit(c.Request.Context(), req.Service, opts)
	if err != nil {
		var unknownErr *limiter.UnknownServiceError
		var exceededErr *limiter.LimitExceededError
		var unavailableErr *limiter.UnavailableError

		switch {
		case errors.As(err, &unknownErr):
			response.Error(response.CodeUnknownService, err.Error()).JSON(c, http.StatusNotFound)
		case errors.As(err, &exceededErr):
			response.Error(response.CodeLimitExceeded, err.Error()).
				WithDetail(result).
				JSON(c, http.StatusTooManyRequests)
		case errors.As(err, &unavailableErr):
			response.Error(response.CodeLimiterUnavailable, err.Error()).JSON(c, http.StatusServiceUnavailable)
		default:
			response.Error(response.CodeInternalError, err.Error()).JSON(c, http.StatusInternalServerError)
		}
		return
	}

	response.Success(result).JSON(c, http.StatusOK)
}

// handleReset 处理限流状态重置请求
func (s *AdminService) handleReset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(response.CodeBadRequest, err.Error()).JSON(c, http.StatusBadRequest)
		return
	}

	if err := s.limiter.Reset(c.Request.Context(), req.Service, req.Identifier); err != nil {
		var unavailableErr *limiter.UnavailableError
		if errors.As(err, &unavailableErr) {
			response.Error(response.CodeLimiterUnavailable, err.Error()).JSON(c, http.StatusServiceUnavailable)
			return
		}
		response.Error(response.CodeInternalError, err.Error()).JSON(c, http.StatusInternalServerError)
		return
	}

	response.Success(gin.H{
		"service":    req.Service,
		"identifier": req.Identifier,
	}).JSON(c, http.StatusOK)
}

// handleMetrics 处理统一指标请求
func (s *AdminService) handleMetrics(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.metricsRegistry == nil {
		response.Error(response.CodeNotFound, "metrics registry not available").JSON(c, http.StatusNotFound)
		return
	}

	registry := s.metricsRegistry.GetRegistry()
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})

	// 将 Gin 上下文转换为标准 HTTP 处理器
	handler.ServeHTTP(c.Writer, c.Request)
}
