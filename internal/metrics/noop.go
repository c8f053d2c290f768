package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// noopCollector 空操作指标收集器，用于禁用指标收集时的占位实现
type noopCollector struct {
	name string
}

// NewNoopCollector 创建新的空操作指标收集器实例
func NewNoopCollector() MetricsCollector {
	return &noopCollector{
		name: "noop",
	}
}

// 限流检查指标收集方法（空实现）

func (c *noopCollector) RecordCheckAllowed(service, identifier string) {
	// 空实现
}

func (c *noopCollector) RecordCheckRejected(service, identifier, reason string) {
	// 空实现
}

// 共享状态后端指标收集方法（空实现）

func (c *noopCollector) RecordStoreOperation(operation string, duration time.Duration, success bool) {
	// 空实现
}

// 熔断器指标收集方法（空实现）

func (c *noopCollector) RecordCircuitState(name string, state int) {
	// 空实现
}

func (c *noopCollector) RecordCircuitStateChange(name, fromState, toState string) {
	// 空实现
}

// 策略表指标收集方法（空实现）

func (c *noopCollector) RecordPolicyReload(result string) {
	// 空实现
}

// 工具方法

func (c *noopCollector) GetRegistry() *prometheus.Registry {
	// 返回空的注册器
	return prometheus.NewRegistry()
}

func (c *noopCollector) Name() string {
	return c.name
}

func (c *noopCollector) Close() error {
	// 空实现，无需清理资源
	return nil
}
