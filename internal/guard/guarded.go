package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/clipmark/ratekeeper-go/internal/constants"
	"github.com/clipmark/ratekeeper-go/internal/metrics"
	"github.com/clipmark/ratekeeper-go/internal/store"
)

// ErrStoreUnavailable 共享状态后端不可用
// 熔断器开启、调用超时或后端错误都归并为这个错误，由门面转换为对外的不可用结果
var ErrStoreUnavailable = errors.New(constants.ErrMsgStoreUnavailable)

// 后端操作名称，用于指标标签
const (
	opSlidingWindow = "sliding_window_check"
	opTokenBucket   = "token_bucket_check"
	opIncrAttempts  = "incr_attempts"
	opClearAttempts = "clear_attempts"
	opReset         = "reset"
	opPing          = "ping"
)

// GuardedStore 为任意Store实现提供可用性保护的装饰器
// 每次调用都带独立的短超时并经过熔断器，超时同样计入熔断失败样本
type GuardedStore struct {
	inner     store.Store
	cb        *gobreaker.CircuitBreaker
	timeout   time.Duration
	collector metrics.MetricsCollector
}

// NewGuardedStore 创建新的受保护后端实例
// inner: 被包装的后端
// settings: 熔断器设置
// opTimeout: 单次后端操作超时
// collector: 指标收集器
func NewGuardedStore(inner store.Store, settings gobreaker.Settings, opTimeout time.Duration, collector metrics.MetricsCollector) *GuardedStore {
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	return &GuardedStore{
		inner:     inner,
		cb:        gobreaker.NewCircuitBreaker(settings),
		timeout:   opTimeout,
		collector: collector,
	}
}

// State 获取熔断器当前状态
func (g *GuardedStore) State() gobreaker.State {
	return g.cb.State()
}

// execute 在超时和熔断保护下执行一次后端操作
func (g *GuardedStore) execute(ctx context.Context, operation string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	start := time.Now()

	result, err := g.cb.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(opCtx)
	})

	g.collector.RecordStoreOperation(operation, time.Since(start), err == nil)

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, operation, err)
	}
	return result, nil
}

// SlidingWindowCheck 在保护下执行滑动窗口检查
func (g *GuardedStore) SlidingWindowCheck(ctx context.Context, args *store.SlidingWindowArgs) (*store.SlidingWindowResult, error) {
	result, err := g.execute(ctx, opSlidingWindow, func(opCtx context.Context) (interface{}, error) {
		return g.inner.SlidingWindowCheck(opCtx, args)
	})
	if err != nil {
		return nil, err
	}
	return result.(*store.SlidingWindowResult), nil
}

// TokenBucketCheck 在保护下执行令牌桶检查
func (g *GuardedStore) TokenBucketCheck(ctx context.Context, args *store.TokenBucketArgs) (*store.TokenBucketResult, error) {
	result, err := g.execute(ctx, opTokenBucket, func(opCtx context.Context) (interface{}, error) {
		return g.inner.TokenBucketCheck(opCtx, args)
	})
	if err != nil {
		return nil, err
	}
	return result.(*store.TokenBucketResult), nil
}

// IncrAttempts 在保护下递增退避尝试计数
func (g *GuardedStore) IncrAttempts(ctx context.Context, key store.Key, ttl time.Duration) (int64, error) {
	result, err := g.execute(ctx, opIncrAttempts, func(opCtx context.Context) (interface{}, error) {
		return g.inner.IncrAttempts(opCtx, key, ttl)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// ClearAttempts 在保护下清除退避尝试计数
func (g *GuardedStore) ClearAttempts(ctx context.Context, key store.Key) error {
	_, err := g.execute(ctx, opClearAttempts, func(opCtx context.Context) (interface{}, error) {
		return nil, g.inner.ClearAttempts(opCtx, key)
	})
	return err
}

// Reset 在保护下清除指定键的全部计数状态
func (g *GuardedStore) Reset(ctx context.Context, key store.Key) error {
	_, err := g.execute(ctx, opReset, func(opCtx context.Context) (interface{}, error) {
		return nil, g.inner.Reset(opCtx, key)
	})
	return err
}

// Ping 在保护下检查后端连通性
func (g *GuardedStore) Ping(ctx context.Context) error {
	_, err := g.execute(ctx, opPing, func(opCtx context.Context) (interface{}, error) {
		return nil, g.inner.Ping(opCtx)
	})
	return err
}

// Close 关闭被包装的后端
func (g *GuardedStore) Close() error {
	return g.inner.Close()
}
