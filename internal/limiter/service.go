package limiter

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/clipmark/ratekeeper-go/internal/constants"
	"github.com/clipmark/ratekeeper-go/internal/metrics"
	"github.com/clipmark/ratekeeper-go/internal/policy"
	"github.com/clipmark/ratekeeper-go/internal/store"
)

// 服务相关错误定义
var (
	ErrNilStore       = errors.New(constants.ErrMsgNilStore)
	ErrNilPolicyStore = errors.New(constants.ErrMsgNilPolicy)
)

// Service 代表限流器门面的默认实现
// 计数状态全部委托给共享后端，进程内不缓存任何计数或令牌；
// 策略快照在每次检查开始时捕获一次，热加载不影响进行中的检查
type Service struct {
	policies  *policy.Store
	store     store.Store
	collector metrics.MetricsCollector
	logger    *logr.Logger

	// 可注入的时间与随机源，用于确定性测试
	timeNow     func() time.Time
	rng         func() float64
	admissionID func() string

	quietPeriod time.Duration
}

// NewService 创建新的限流器门面实例
// policies: 策略表
// st: 共享状态后端（通常是经过可用性保护包装的实例）
// collector: 指标收集器
// logger: 日志记录器
func NewService(policies *policy.Store, st store.Store, collector metrics.MetricsCollector, logger *logr.Logger) (*Service, error) {
	if policies == nil {
		return nil, ErrNilPolicyStore
	}
	if st == nil {
		return nil, ErrNilStore
	}
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	return &Service{
		policies:    policies,
		store:       st,
		collector:   collector,
		logger:      logger,
		timeNow:     time.Now,
		rng:         rand.Float64,
		admissionID: uuid.NewString,
		quietPeriod: constants.DefaultBackoffQuietPeriod * time.Second,
	}, nil
}

// CheckLimit 执行一次限流检查
func (s *Service) CheckLimit(ctx context.Context, service string, opts *CheckOptions) (*Result, error) {
	pol, ok := s.policies.Get(service)
	if !ok {
		s.collector.RecordCheckRejected(service, constants.GlobalIdentifier, constants.RejectReasonUnknownService)
		return nil, &UnknownServiceError{Service: service}
	}

	if opts == nil {
		opts = &CheckOptions{}
	}
	identifier := opts.Identifier
	if identifier == "" {
		identifier = constants.GlobalIdentifier
	}

	operation := ""
	if opts.Metadata != nil {
		operation = opts.Metadata.Operation
	}
	cost := pol.CostFor(operation, opts.Cost)

	key := store.Key{Service: service, Identifier: identifier}
	now := s.timeNow().UnixMilli()

	var result *Result
	var err error
	switch pol.Algorithm {
	case policy.SlidingWindow:
		result, err = s.checkSlidingWindow(ctx, key, pol, now, cost)
	case policy.TokenBucket:
		result, err = s.checkTokenBucket(ctx, key, pol, now, cost)
	default:
		// 加载时已校验算法，此处不应到达
		return nil, &UnknownServiceError{Service: service}
	}

	if err != nil {
		// 后端失败一律视为不可用并拒绝（fail closed），绝不静默放行
		s.collector.RecordCheckRejected(service, identifier, constants.RejectReasonUnavailable)
		return nil, &UnavailableError{Err: err}
	}

	if !result.Allowed {
		s.collector.RecordCheckRejected(service, identifier, constants.RejectReasonLimit)
		return result, &LimitExceededError{
			Service:           service,
			RetryAfterSeconds: result.RetryAfterSeconds,
			ResetAt:           result.ResetAt,
			Remaining:         result.Remaining,
		}
	}

	s.collector.RecordCheckAllowed(service, identifier)
	return result, nil
}

// checkSlidingWindow 通过共享后端执行滑动窗口检查
func (s *Service) checkSlidingWindow(ctx context.Context, key store.Key, pol *policy.LimitPolicy, nowMs int64, cost float64) (*Result, error) {
	intCost := int(math.Ceil(cost))
	if intCost < 1 {
		intCost = 1
	}

	res, err := s.store.SlidingWindowCheck(ctx, &store.SlidingWindowArgs{
		Key:           key,
		NowMs:         nowMs,
		WindowSeconds: pol.WindowSeconds,
		Limit:         pol.RequestsPerWindow,
		Cost:          intCost,
		AdmissionID:   s.admissionID(),
	})
	if err != nil {
		return nil, err
	}

	charged := float64(intCost)
	if !res.Allowed {
		charged = 0
	}
	return &Result{
		Allowed:           res.Allowed,
		Remaining:         res.Remaining,
		ResetAt:           time.UnixMilli(res.ResetAtMs),
		RetryAfterSeconds: res.RetryAfterSeconds,
		CostCharged:       charged,
	}, nil
}

// checkTokenBucket 通过共享后端执行令牌桶检查
func (s *Service) checkTokenBucket(ctx context.Context, key store.Key, pol *policy.LimitPolicy, nowMs int64, cost float64) (*Result, error) {
	res, err := s.store.TokenBucketCheck(ctx, &store.TokenBucketArgs{
		Key:        key,
		NowMs:      nowMs,
		Capacity:   pol.Capacity,
		RefillRate: pol.RefillRate,
		Cost:       cost,
		TTLSeconds: pol.TTLSeconds,
	})
	if err != nil {
		return nil, err
	}

	charged := cost
	if !res.Allowed {
		charged = 0
	}
	return &Result{
		Allowed:           res.Allowed,
		Remaining:         int(math.Floor(res.Tokens)),
		ResetAt:           time.UnixMilli(res.ResetAtMs),
		RetryAfterSeconds: res.RetryAfterSeconds,
		CostCharged:       charged,
	}, nil
}

// GetBackoffDelay 计算指定键的下一次重试退避延迟
// 尝试计数保存在共享后端并带静默期TTL，多实例间的退避状态保持一致
func (s *Service) GetBackoffDelay(ctx context.Context, service, identifier string) (time.Duration, error) {
	pol, ok := s.policies.Get(service)
	if !ok {
		return 0, &UnknownServiceError{Service: service}
	}

	if identifier == "" {
		identifier = constants.GlobalIdentifier
	}
	key := store.Key{Service: service, Identifier: identifier}

	attempts, err := s.store.IncrAttempts(ctx, key, s.quietPeriod)
	if err != nil {
		return 0, &UnavailableError{Err: err}
	}

	return computeBackoffDelay(pol.Backoff, attempts, s.rng), nil
}

// Reset 清除指定键的全部计数、桶和退避状态
func (s *Service) Reset(ctx context.Context, service, identifier string) error {
	if identifier == "" {
		identifier = constants.GlobalIdentifier
	}
	key := store.Key{Service: service, Identifier: identifier}

	if err := s.store.Reset(ctx, key); err != nil {
		return &UnavailableError{Err: err}
	}

	if s.logger != nil {
		s.logger.Info("Rate limit state reset", "service", service, "identifier", identifier)
	}
	return nil
}
