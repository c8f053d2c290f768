// Package guard 为共享状态后端提供可用性保护
// 每次后端往返都包裹在短超时和熔断器中，后端不可用时检查立即失败（fail closed），
// 绝不把失败静默转换为放行
package guard

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/sony/gobreaker"

	"github.com/clipmark/ratekeeper-go/internal/config"
	"github.com/clipmark/ratekeeper-go/internal/constants"
	"github.com/clipmark/ratekeeper-go/internal/metrics"
)

// DefaultSettings 返回默认的熔断器设置
func DefaultSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        constants.DefaultBreakerName,
		MaxRequests: constants.DefaultBreakerMaxRequests,
		Interval:    time.Duration(constants.DefaultBreakerInterval) * time.Millisecond,
		Timeout:     time.Duration(constants.DefaultBreakerCooldown) * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= constants.DefaultBreakerMinRequests && failureRatio >= constants.DefaultBreakerThreshold
		},
	}
}

// SettingsFromConfig 从配置创建熔断器设置
// name: 熔断器名称
// cfg: 熔断器配置
// collector: 指标收集器，记录状态变化
// logger: 日志记录器
func SettingsFromConfig(name string, cfg *config.BreakerConfig, collector metrics.MetricsCollector, logger *logr.Logger) gobreaker.Settings {
	settings := DefaultSettings()
	settings.Name = name

	// 设置半开状态下允许通过的最大探测请求数
	if cfg.MaxRequests > 0 {
		settings.MaxRequests = cfg.MaxRequests
	}

	// 设置闭合状态下统计周期重置间隔
	if cfg.Interval > 0 {
		settings.Interval = time.Duration(cfg.Interval) * time.Millisecond
	}

	// 设置开放状态持续时间（冷却期）
	if cfg.Cooldown > 0 {
		settings.Timeout = time.Duration(cfg.Cooldown) * time.Millisecond
	}

	// 设置熔断触发条件：滚动采样内的失败率
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = constants.DefaultBreakerMinRequests
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = constants.DefaultBreakerThreshold
	}
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= minRequests && failureRatio >= threshold
	}

	// 状态变化同时记录到日志和指标
	settings.OnStateChange = func(name string, from gobreaker.State, to gobreaker.State) {
		if logger != nil {
			logger.Info("Availability guard state changed",
				"name", name, "from", from.String(), "to", to.String())
		}
		if collector != nil {
			collector.RecordCircuitStateChange(name, from.String(), to.String())
			collector.RecordCircuitState(name, stateValue(to))
		}
	}

	return settings
}

// stateValue 将熔断器状态转换为指标数值（0=关闭, 1=半开, 2=开启）
func stateValue(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
