package limiter

import (
	"fmt"
	"time"
)

// UnknownServiceError 表示请求的服务没有对应的限流策略
// 属于编程错误，应当在开发阶段暴露并当作缺陷处理
type UnknownServiceError struct {
	Service string
}

// Error 实现error接口
func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("no rate limit policy for service '%s'", e.Service)
}

// LimitExceededError 表示本次检查超过了限额
// 属于预期内的可恢复结果，调用方应按RetryAfterSeconds安排重试，不应记录为错误日志
type LimitExceededError struct {
	Service           string
	RetryAfterSeconds int
	ResetAt           time.Time
	Remaining         int
}

// Error 实现error接口
func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for service '%s': retry after %ds",
		e.Service, e.RetryAfterSeconds)
}

// UnavailableError 表示共享状态后端不可用（熔断开启或调用超时）
// 限流器对这种情况采取fail closed策略：拒绝请求而不是放行，
// 调用方应选择使外层请求失败而不是无限重试
type UnavailableError struct {
	Err error
}

// Error 实现error接口
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("rate limiter unavailable: %v", e.Err)
}

// Unwrap 返回底层错误
func (e *UnavailableError) Unwrap() error {
	return e.Err
}
