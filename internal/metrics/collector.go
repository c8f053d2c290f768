package metrics

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// prometheusCollector 基于 Prometheus 的指标收集器实现
type prometheusCollector struct {
	name     string
	registry *prometheus.Registry
	config   *Config
	mu       sync.RWMutex

	// 限流检查指标
	checksAllowedTotal  *prometheus.CounterVec
	checksRejectedTotal *prometheus.CounterVec

	// 共享状态后端指标
	storeOpDuration *prometheus.HistogramVec
	storeOpsTotal   *prometheus.CounterVec

	// 熔断器指标
	circuitState        *prometheus.GaugeVec
	circuitStateChanges *prometheus.CounterVec

	// 策略表指标
	policyReloadsTotal *prometheus.CounterVec
}

// NewPrometheusCollectorWithRegistry 创建使用指定注册器的 Prometheus 指标收集器实例
func NewPrometheusCollectorWithRegistry(config *Config, registry *prometheus.Registry) (MetricsCollector, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}

	collector := &prometheusCollector{
		name:     "prometheus",
		registry: registry,
		config:   config,
	}

	if err := collector.initMetrics(); err != nil {
		return nil, err
	}

	return collector, nil
}

// initMetrics 初始化所有 Prometheus 指标
func (c *prometheusCollector) initMetrics() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 构建指标名称前缀
	prefix := c.config.Namespace
	if c.config.Subsystem != "" {
		prefix = c.config.Namespace + "_" + c.config.Subsystem
	}

	// 限流检查指标
	c.checksAllowedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_checks_allowed_total",
			Help: "Total number of rate limit checks that were allowed",
		},
		[]string{"service", "identifier"},
	)

	c.checksRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_checks_rejected_total",
			Help: "Total number of rate limit checks that were rejected",
		},
		[]string{"service", "identifier", "reason"},
	)

	// 共享状态后端指标
	c.storeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_store_op_duration_seconds",
			Help:    "Shared state store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	c.storeOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_store_ops_total",
			Help: "Total number of shared state store operations",
		},
		[]string{"operation", "success"},
	)

	// 熔断器指标
	c.circuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_circuit_state",
			Help: "Availability guard circuit state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	c.circuitStateChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_circuit_state_changes_total",
			Help: "Total number of availability guard state changes",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// 策略表指标
	c.policyReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_policy_reloads_total",
			Help: "Total number of policy table reloads",
		},
		[]string{"result"},
	)

	// 注册所有指标到注册器
	collectors := []prometheus.Collector{
		c.checksAllowedTotal,
		c.checksRejectedTotal,
		c.storeOpDuration,
		c.storeOpsTotal,
		c.circuitState,
		c.circuitStateChanges,
		c.policyReloadsTotal,
	}

	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return nil
}

// RecordCheckAllowed 记录一次放行的限流检查
func (c *prometheusCollector) RecordCheckAllowed(service, identifier string) {
	c.checksAllowedTotal.WithLabelValues(service, identifier).Inc()
}

// RecordCheckRejected 记录一次拒绝的限流检查
func (c *prometheusCollector) RecordCheckRejected(service, identifier, reason string) {
	c.checksRejectedTotal.WithLabelValues(service, identifier, reason).Inc()
}

// RecordStoreOperation 记录一次后端操作
func (c *prometheusCollector) RecordStoreOperation(operation string, duration time.Duration, success bool) {
	c.storeOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
	c.storeOpsTotal.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
}

// RecordCircuitState 记录熔断器当前状态
func (c *prometheusCollector) RecordCircuitState(name string, state int) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitStateChange 记录熔断器状态变化
func (c *prometheusCollector) RecordCircuitStateChange(name, fromState, toState string) {
	c.circuitStateChanges.WithLabelValues(name, fromState, toState).Inc()
}

// RecordPolicyReload 记录一次策略热加载
func (c *prometheusCollector) RecordPolicyReload(result string) {
	c.policyReloadsTotal.WithLabelValues(result).Inc()
}

// GetRegistry 获取 Prometheus 注册器
func (c *prometheusCollector) GetRegistry() *prometheus.Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry
}

// Name 获取收集器名称
func (c *prometheusCollector) Name() string {
	return c.name
}

// Close 关闭收集器并清理资源
func (c *prometheusCollector) Close() error {
	// Prometheus 指标无需显式清理
	return nil
}
