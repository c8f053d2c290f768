package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clipmark/ratekeeper-go/internal/constants"
)

// MetricsCollector 代表指标收集器接口，定义统一的指标收集行为
type MetricsCollector interface {
	// 限流检查指标收集方法

	// RecordCheckAllowed 记录一次放行的限流检查
	// service: 外部服务名称
	// identifier: 限流标识符
	RecordCheckAllowed(service, identifier string)

	// RecordCheckRejected 记录一次拒绝的限流检查
	// service: 外部服务名称
	// identifier: 限流标识符
	// reason: 拒绝原因（limit_exceeded, store_unavailable, unknown_service）
	RecordCheckRejected(service, identifier, reason string)

	// 共享状态后端指标收集方法

	// RecordStoreOperation 记录一次后端操作
	// operation: 操作名称
	// duration: 操作耗时
	// success: 是否成功
	RecordStoreOperation(operation string, duration time.Duration, success bool)

	// 熔断器指标收集方法

	// RecordCircuitState 记录熔断器当前状态
	// name: 熔断器名称
	// state: 熔断器状态（0=关闭, 1=半开, 2=开启）
	RecordCircuitState(name string, state int)

	// RecordCircuitStateChange 记录熔断器状态变化
	// name: 熔断器名称
	// fromState: 原状态
	// toState: 新状态
	RecordCircuitStateChange(name, fromState, toState string)

	// 策略表指标收集方法

	// RecordPolicyReload 记录一次策略热加载
	// result: 加载结果（success, failure）
	RecordPolicyReload(result string)

	// 工具方法

	// GetRegistry 获取 Prometheus 注册器
	GetRegistry() *prometheus.Registry

	// Name 获取收集器名称
	Name() string

	// Close 关闭收集器并清理资源
	Close() error
}

// MetricsCollectorFactory 代表指标收集器工厂接口
type MetricsCollectorFactory interface {
	// Create 根据配置创建指标收集器
	// config: 指标收集器配置
	Create(config *Config) (MetricsCollector, error)
}

// Config 代表指标收集器配置
type Config struct {
	// Type 指标收集器类型（prometheus, noop）
	Type string `yaml:"type" json:"type"`

	// Enabled 是否启用指标收集
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Namespace 指标命名空间前缀
	Namespace string `yaml:"namespace" json:"namespace"`

	// Subsystem 指标子系统名称
	Subsystem string `yaml:"subsystem" json:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Type:      constants.MetricsTypeNoop,
		Enabled:   true,
		Namespace: constants.MetricsNamespace,
		Subsystem: "",
	}
}
