package policy

import (
	"time"

	"github.com/clipmark/ratekeeper-go/internal/constants"
)

// Defaults 返回硬编码的兜底策略集合
// 配置文件整体加载失败（文件缺失、解析错误）时使用，保证系统降级可用而不是崩溃
// 数值取各服务商公开限额的保守子集
func Defaults() []*LimitPolicy {
	defaultBackoff := BackoffPolicy{
		Type:         BackoffExponential,
		InitialDelay: constants.DefaultBackoffInitialDelay * time.Millisecond,
		MaxDelay:     constants.DefaultBackoffMaxDelay * time.Millisecond,
		Multiplier:   constants.DefaultBackoffMultiplier,
		Jitter:       true,
	}

	adaptiveBackoff := defaultBackoff
	adaptiveBackoff.Type = BackoffAdaptive

	return []*LimitPolicy{
		// 平台抓取器：各社交平台的元数据接口按窗口计数限流
		{
			Service:           "twitter",
			Algorithm:         SlidingWindow,
			RequestsPerWindow: 300,
			WindowSeconds:     900,
			TTLSeconds:        901,
			Backoff:           adaptiveBackoff,
		},
		{
			Service:           "youtube",
			Algorithm:         SlidingWindow,
			RequestsPerWindow: 100,
			WindowSeconds:     60,
			TTLSeconds:        61,
			Backoff:           defaultBackoff,
		},
		{
			Service:           "tiktok",
			Algorithm:         SlidingWindow,
			RequestsPerWindow: 60,
			WindowSeconds:     60,
			TTLSeconds:        61,
			Backoff:           adaptiveBackoff,
		},
		{
			Service:           "instagram",
			Algorithm:         SlidingWindow,
			RequestsPerWindow: 60,
			WindowSeconds:     3600,
			TTLSeconds:        3601,
			Backoff:           adaptiveBackoff,
		},
		// ML 服务商：摘要/转写/向量化任务按成本消耗令牌
		{
			Service:    "openai",
			Algorithm:  TokenBucket,
			Capacity:   60,
			RefillRate: 1,
			TTLSeconds: 61,
			CostMapping: map[string]float64{
				"summarize":  1,
				"transcribe": 5,
				"embed":      1,
			},
			Backoff: defaultBackoff,
		},
		{
			Service:    "anthropic",
			Algorithm:  TokenBucket,
			Capacity:   50,
			RefillRate: 0.8,
			TTLSeconds: 64,
			CostMapping: map[string]float64{
				"summarize": 1,
			},
			Backoff: defaultBackoff,
		},
	}
}
