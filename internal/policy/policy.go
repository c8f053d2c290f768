// Package policy 维护每个外部服务的限流策略表
// 策略表是不可变的快照，通过原子指针交换整体替换，读取方永远不会观察到半更新状态
package policy

import (
	"time"

	"github.com/clipmark/ratekeeper-go/internal/config"
	"github.com/clipmark/ratekeeper-go/internal/constants"
)

// Algorithm 代表限流算法类型
type Algorithm string

const (
	// SlidingWindow 滑动窗口计数算法
	SlidingWindow Algorithm = "sliding_window"

	// TokenBucket 变成本令牌桶算法
	TokenBucket Algorithm = "token_bucket"
)

// BackoffType 代表退避策略类型
type BackoffType string

const (
	// BackoffExponential 指数退避
	BackoffExponential BackoffType = "exponential"

	// BackoffLinear 线性退避
	BackoffLinear BackoffType = "linear"

	// BackoffAdaptive 自适应退避，适用于节流行为嘈杂的服务商
	BackoffAdaptive BackoffType = "adaptive"
)

// BackoffPolicy 代表重试退避策略
type BackoffPolicy struct {
	Type         BackoffType   // 退避类型
	InitialDelay time.Duration // 初始延迟
	MaxDelay     time.Duration // 延迟上限
	Multiplier   float64       // 指数倍数
	Jitter       bool          // 是否启用随机抖动
}

// LimitPolicy 代表单个外部服务的限流策略
// 策略在加载时整体构建，对消费方只读
type LimitPolicy struct {
	Service           string             // 外部服务名称
	Algorithm         Algorithm          // 限流算法
	RequestsPerWindow int                // 滑动窗口：窗口内允许的请求数
	WindowSeconds     int                // 滑动窗口：窗口时长（秒）
	Capacity          float64            // 令牌桶：桶容量
	RefillRate        float64            // 令牌桶：每秒补充速率
	CostMapping       map[string]float64 // 操作名到成本的映射，仅令牌桶使用
	Backoff           BackoffPolicy      // 退避策略
	TTLSeconds        int                // 空闲键过期时间（秒）
}

// CostFor 解析一次检查的实际成本
// 策略的成本映射中存在对应操作时，映射值覆盖调用方请求的成本
func (p *LimitPolicy) CostFor(operation string, requested float64) float64 {
	if operation != "" && p.CostMapping != nil {
		if mapped, ok := p.CostMapping[operation]; ok {
			return mapped
		}
	}
	if requested <= 0 {
		return 1
	}
	return requested
}

// Build 将配置中的策略条目转换为不可变的策略集合
func Build(cfgs []config.PolicyConfig) []*LimitPolicy {
	policies := make([]*LimitPolicy, 0, len(cfgs))
	for i := range cfgs {
		policies = append(policies, fromConfig(&cfgs[i]))
	}
	return policies
}

// fromConfig 将单条策略配置转换为领域策略
func fromConfig(cfg *config.PolicyConfig) *LimitPolicy {
	policy := &LimitPolicy{
		Service:           cfg.Service,
		Algorithm:         Algorithm(cfg.Algorithm),
		RequestsPerWindow: cfg.RequestsPerWindow,
		WindowSeconds:     cfg.WindowSeconds,
		Capacity:          cfg.Capacity,
		RefillRate:        cfg.RefillRate,
		TTLSeconds:        cfg.TTLSeconds,
	}

	if len(cfg.CostMapping) > 0 {
		policy.CostMapping = make(map[string]float64, len(cfg.CostMapping))
		for op, cost := range cfg.CostMapping {
			policy.CostMapping[op] = cost
		}
	}

	policy.Backoff = BackoffPolicy{Jitter: true}
	if cfg.Backoff != nil {
		policy.Backoff = BackoffPolicy{
			Type:         BackoffType(cfg.Backoff.Type),
			InitialDelay: time.Duration(cfg.Backoff.InitialDelay) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Backoff.MaxDelay) * time.Millisecond,
			Multiplier:   cfg.Backoff.Multiplier,
			Jitter:       cfg.Backoff.Jitter == nil || *cfg.Backoff.Jitter,
		}
	}
	if policy.Backoff.Type == "" {
		policy.Backoff.Type = BackoffExponential
	}
	if policy.Backoff.InitialDelay == 0 {
		policy.Backoff.InitialDelay = constants.DefaultBackoffInitialDelay * time.Millisecond
	}
	if policy.Backoff.MaxDelay == 0 {
		policy.Backoff.MaxDelay = constants.DefaultBackoffMaxDelay * time.Millisecond
	}
	if policy.Backoff.Multiplier == 0 {
		policy.Backoff.Multiplier = constants.DefaultBackoffMultiplier
	}

	return policy
}
