package limiter

import (
	"math"
	"time"

	"github.com/clipmark/ratekeeper-go/internal/constants"
	"github.com/clipmark/ratekeeper-go/internal/policy"
)

// computeBackoffDelay 按退避策略计算第attempts次尝试的延迟
// rng: 返回[0,1)随机数的函数，用于抖动；便于测试注入固定序列
func computeBackoffDelay(backoff policy.BackoffPolicy, attempts int64, rng func() float64) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	var base float64
	initial := float64(backoff.InitialDelay)

	switch backoff.Type {
	case policy.BackoffLinear:
		base = initial * float64(attempts)
	case policy.BackoffAdaptive:
		// 自适应退避使用更平缓的倍数，适用于节流行为嘈杂的服务商
		multiplier := backoff.Multiplier / 2
		if multiplier < constants.AdaptiveMinMultiplier {
			multiplier = constants.AdaptiveMinMultiplier
		}
		base = initial * math.Pow(multiplier, float64(attempts-1))
	default:
		base = initial * math.Pow(backoff.Multiplier, float64(attempts-1))
	}

	maxDelay := float64(backoff.MaxDelay)
	if base > maxDelay {
		base = maxDelay
	}

	// 最多10%的随机抖动，避免多实例间的同步重试
	if backoff.Jitter {
		base += base * constants.JitterFraction * rng()
	}

	return time.Duration(base)
}
