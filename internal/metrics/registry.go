package metrics

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 注册器相关错误定义
var (
	ErrCollectorAlreadyRegistered = errors.New("collector already registered")
	ErrCollectorNotFound          = errors.New("collector not found")
	ErrEmptyCollectorName         = errors.New("collector name cannot be empty")
	ErrNilCollector               = errors.New("collector cannot be nil")
)

// MetricsRegistry 代表指标注册管理器，负责管理多个指标收集器
type MetricsRegistry struct {
	mu         sync.RWMutex
	registry   *prometheus.Registry
	collectors map[string]MetricsCollector
}

// 全局单例实例
var (
	globalRegistry *MetricsRegistry
	registryOnce   sync.Once
)

// GetGlobalRegistry 获取全局单例注册器实例
func GetGlobalRegistry() *MetricsRegistry {
	registryOnce.Do(func() {
		globalRegistry = &MetricsRegistry{
			registry:   prometheus.NewRegistry(),
			collectors: make(map[string]MetricsCollector),
		}
	})
	return globalRegistry
}

// NewMetricsRegistry 创建新的指标注册器实例（用于测试或特殊场景）
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		registry:   prometheus.NewRegistry(),
		collectors: make(map[string]MetricsCollector),
	}
}

// RegisterCollector 注册指标收集器
// name: 收集器名称，必须唯一
// collector: 指标收集器实例
func (r *MetricsRegistry) RegisterCollector(name string, collector MetricsCollector) error {
	if name == "" {
		return ErrEmptyCollectorName
	}
	if collector == nil {
		return ErrNilCollector
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.collectors[name]; exists {
		return fmt.Errorf("%w: %s", ErrCollectorAlreadyRegistered, name)
	}

	r.collectors[name] = collector
	return nil
}

// GetCollector 获取指定名称的指标收集器
// 返回收集器实例和是否存在的标志
func (r *MetricsRegistry) GetCollector(name string) (MetricsCollector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collector, exists := r.collectors[name]
	return collector, exists
}

// UnregisterCollector 注销指标收集器
// name: 收集器名称
func (r *MetricsRegistry) UnregisterCollector(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	collector, exists := r.collectors[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectorNotFound, name)
	}

	if err := collector.Close(); err != nil {
		return fmt.Errorf("failed to close collector %s: %w", name, err)
	}

	delete(r.collectors, name)
	return nil
}

// GetRegistry 获取 Prometheus 注册器
func (r *MetricsRegistry) GetRegistry() *prometheus.Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.registry
}

// ListCollectors 获取所有已注册收集器的名称列表
func (r *MetricsRegistry) ListCollectors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	return names
}
