package metrics

import (
	"errors"
	"fmt"

	"github.com/clipmark/ratekeeper-go/internal/constants"
)

// 工厂相关错误定义
var (
	ErrNilConfig       = errors.New("metrics config cannot be nil")
	ErrUnknownType     = errors.New("unknown metrics collector type")
	ErrMetricsDisabled = errors.New("metrics collection is disabled")
)

// metricsFactory 代表指标收集器工厂实现
type metricsFactory struct{}

// NewFactory 创建新的指标收集器工厂实例
func NewFactory() MetricsCollectorFactory {
	return &metricsFactory{}
}

// Create 根据配置创建指标收集器
func (f *metricsFactory) Create(config *Config) (MetricsCollector, error) {
	if config == nil {
		return nil, ErrNilConfig
	}

	// 禁用时返回空操作收集器
	if !config.Enabled {
		return NewNoopCollector(), nil
	}

	switch config.Type {
	case constants.MetricsTypePrometheus:
		return NewPrometheusCollectorWithRegistry(config, GetGlobalRegistry().GetRegistry())
	case constants.MetricsTypeNoop, "":
		return NewNoopCollector(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, config.Type)
	}
}
