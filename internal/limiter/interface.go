// Package limiter 实现分布式限流器的公共门面
// 所有对受限第三方服务的出站调用都必须先通过CheckLimit，只有allowed时才能继续
package limiter

import (
	"context"
	"time"
)

// CheckMetadata 代表检查请求的附加元数据
type CheckMetadata struct {
	// Operation 操作名称，用于按策略的成本映射解析实际成本
	Operation string `json:"operation,omitempty"`
}

// CheckOptions 代表一次限流检查的可选参数
type CheckOptions struct {
	// Identifier 限流标识符（如用户ID），缺省为服务级哨兵标识符
	Identifier string `json:"identifier,omitempty"`

	// Cost 本次请求的成本，缺省为1
	// 策略定义了成本映射且元数据命中已知操作时，映射值覆盖该值
	Cost float64 `json:"cost,omitempty"`

	// Metadata 附加元数据
	Metadata *CheckMetadata `json:"metadata,omitempty"`
}

// Result 代表一次限流检查的结果，每次检查都重新生成，从不持久化
type Result struct {
	// Allowed 是否放行
	Allowed bool `json:"allowed"`

	// Remaining 剩余额度（令牌桶内部为实数，对外向下取整）
	Remaining int `json:"remaining"`

	// ResetAt 额度恢复的时间点
	ResetAt time.Time `json:"resetAt"`

	// RetryAfterSeconds 建议的最早重试间隔（秒），放行时为0
	RetryAfterSeconds int `json:"retryAfterSeconds"`

	// CostCharged 本次实际计费的成本
	CostCharged float64 `json:"costCharged"`
}

// RateLimiter 代表限流器门面接口
type RateLimiter interface {
	// CheckLimit 执行一次限流检查
	// 放行时返回结果且error为nil；拒绝时返回携带完整信息的结果和*LimitExceededError；
	// 无策略返回*UnknownServiceError；后端不可用返回*UnavailableError（fail closed）
	CheckLimit(ctx context.Context, service string, opts *CheckOptions) (*Result, error)

	// GetBackoffDelay 计算指定键的下一次重试退避延迟
	// 尝试计数按键独立维护，静默期内无调用则自动重置
	GetBackoffDelay(ctx context.Context, service, identifier string) (time.Duration, error)

	// Reset 清除指定键的全部计数、桶和退避状态
	// 用于测试和管理恢复，不属于正常请求路径
	Reset(ctx context.Context, service, identifier string) error
}
