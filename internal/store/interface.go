// Package store 实现限流计数的共享状态后端
// 每个算法的检查-更新步骤作为一个原子单元在后端执行，跨任意数量的并发实例保持准确计数
package store

import (
	"context"
	"time"
)

// Key 代表限流键，由服务名和标识符组成
// 每个Key拥有一份独立的计数状态
type Key struct {
	Service    string
	Identifier string
}

// SlidingWindowArgs 代表滑动窗口检查的输入参数
type SlidingWindowArgs struct {
	Key           Key
	NowMs         int64  // 当前时间戳（毫秒），由调用方传入以支持模拟时钟
	WindowSeconds int    // 窗口时长（秒）
	Limit         int    // 窗口内允许的请求数
	Cost          int    // 本次消耗的名额数
	AdmissionID   string // 准入记录的唯一标记
}

// SlidingWindowResult 代表滑动窗口检查的结果
type SlidingWindowResult struct {
	Allowed           bool
	Remaining         int
	ResetAtMs         int64
	RetryAfterSeconds int
}

// TokenBucketArgs 代表令牌桶检查的输入参数
type TokenBucketArgs struct {
	Key        Key
	NowMs      int64   // 当前时间戳（毫秒）
	Capacity   float64 // 桶容量
	RefillRate float64 // 每秒补充速率
	Cost       float64 // 本次消耗的令牌数
	TTLSeconds int     // 空闲键过期时间（秒）
}

// TokenBucketResult 代表令牌桶检查的结果
// Tokens 为内部实数值，向下取整由门面在对外报告时完成
type TokenBucketResult struct {
	Allowed           bool
	Tokens            float64
	ResetAtMs         int64
	RetryAfterSeconds int
}

// Store 代表限流计数的共享状态后端接口
// 所有方法都涉及一次网络往返，必须由调用方传入context以支持超时取消
type Store interface {
	// SlidingWindowCheck 原子执行滑动窗口的检查-准入步骤
	SlidingWindowCheck(ctx context.Context, args *SlidingWindowArgs) (*SlidingWindowResult, error)

	// TokenBucketCheck 原子执行令牌桶的检查-消费步骤
	// 拒绝时补充进度仍会被持久化
	TokenBucketCheck(ctx context.Context, args *TokenBucketArgs) (*TokenBucketResult, error)

	// IncrAttempts 递增指定键的退避尝试计数并刷新过期时间
	// 返回递增后的计数值
	IncrAttempts(ctx context.Context, key Key, ttl time.Duration) (int64, error)

	// ClearAttempts 清除指定键的退避尝试计数
	ClearAttempts(ctx context.Context, key Key) error

	// Reset 清除指定键的全部计数状态（窗口记录与桶状态）
	Reset(ctx context.Context, key Key) error

	// Ping 检查后端连通性
	Ping(ctx context.Context) error

	// Close 关闭后端连接并释放资源
	Close() error
}
