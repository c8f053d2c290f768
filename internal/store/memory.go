package store

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// windowEntry 代表滑动窗口中的一条准入记录
type windowEntry struct {
	scoreMs int64
	member  string
}

// bucketState 代表令牌桶的持久状态
type bucketState struct {
	tokens      float64
	tsMs        int64
	expiresAtMs int64
}

// attemptState 代表退避尝试计数状态
type attemptState struct {
	count     int64
	expiresAt time.Time
}

// memoryStore 进程内的共享状态后端实现
// 与Redis脚本保持完全一致的语义，用于测试和单实例开发环境
// 互斥锁承担Lua脚本在Redis中的原子性职责
type memoryStore struct {
	mu       sync.Mutex
	windows  map[string][]windowEntry
	buckets  map[string]bucketState
	attempts map[string]attemptState
}

// NewMemoryStore 创建新的进程内后端实例
func NewMemoryStore() Store {
	return &memoryStore{
		windows:  make(map[string][]windowEntry),
		buckets:  make(map[string]bucketState),
		attempts: make(map[string]attemptState),
	}
}

// SlidingWindowCheck 原子执行滑动窗口的检查-准入步骤
func (s *memoryStore) SlidingWindowCheck(ctx context.Context, args *SlidingWindowArgs) (*SlidingWindowResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := windowKey(args.Key)
	window := int64(args.WindowSeconds) * 1000

	// 清理过期的准入记录
	entries := s.windows[key]
	kept := entries[:0]
	for _, entry := range entries {
		if entry.scoreMs > args.NowMs-window {
			kept = append(kept, entry)
		}
	}
	s.windows[key] = kept

	count := len(kept)
	if count+args.Cost > args.Limit {
		resetAt := args.NowMs + window
		if count > 0 {
			oldest := kept[0].scoreMs
			for _, entry := range kept {
				if entry.scoreMs < oldest {
					oldest = entry.scoreMs
				}
			}
			resetAt = oldest + window
		}
		retry := int(math.Ceil(float64(resetAt-args.NowMs) / 1000))
		if retry < 1 {
			retry = 1
		}
		remaining := args.Limit - count
		if remaining < 0 {
			remaining = 0
		}
		return &SlidingWindowResult{
			Allowed:           false,
			Remaining:         remaining,
			ResetAtMs:         resetAt,
			RetryAfterSeconds: retry,
		}, nil
	}

	for i := 1; i <= args.Cost; i++ {
		s.windows[key] = append(s.windows[key], windowEntry{
			scoreMs: args.NowMs,
			member:  fmt.Sprintf("%s:%d", args.AdmissionID, i),
		})
	}

	return &SlidingWindowResult{
		Allowed:   true,
		Remaining: args.Limit - count - args.Cost,
		ResetAtMs: args.NowMs + window,
	}, nil
}

// TokenBucketCheck 原子执行令牌桶的检查-消费步骤
func (s *memoryStore) TokenBucketCheck(ctx context.Context, args *TokenBucketArgs) (*TokenBucketResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey(args.Key)

	tokens := args.Capacity
	ts := args.NowMs
	if state, ok := s.buckets[key]; ok && (state.expiresAtMs == 0 || state.expiresAtMs > args.NowMs) {
		tokens = state.tokens
		ts = state.tsMs
	}

	elapsed := float64(args.NowMs-ts) / 1000
	if elapsed < 0 {
		elapsed = 0
	}
	tokens = math.Min(args.Capacity, tokens+elapsed*args.RefillRate)

	expiresAt := args.NowMs + int64(args.TTLSeconds)*1000

	if tokens < args.Cost {
		// 拒绝也写回已补充的状态，补充进度不丢失
		s.buckets[key] = bucketState{tokens: tokens, tsMs: args.NowMs, expiresAtMs: expiresAt}
		retry := int(math.Ceil((args.Cost - tokens) / args.RefillRate))
		if retry < 1 {
			retry = 1
		}
		return &TokenBucketResult{
			Allowed:           false,
			Tokens:            tokens,
			ResetAtMs:         args.NowMs + int64(math.Ceil((args.Capacity-tokens)/args.RefillRate*1000)),
			RetryAfterSeconds: retry,
		}, nil
	}

	tokens -= args.Cost
	s.buckets[key] = bucketState{tokens: tokens, tsMs: args.NowMs, expiresAtMs: expiresAt}

	return &TokenBucketResult{
		Allowed:   true,
		Tokens:    tokens,
		ResetAtMs: args.NowMs + int64(math.Ceil((args.Capacity-tokens)/args.RefillRate*1000)),
	}, nil
}

// IncrAttempts 递增退避尝试计数并刷新过期时间
func (s *memoryStore) IncrAttempts(ctx context.Context, key Key, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := attemptsKey(key)
	state := s.attempts[k]
	if !state.expiresAt.IsZero() && time.Now().After(state.expiresAt) {
		state = attemptState{}
	}
	state.count++
	state.expiresAt = time.Now().Add(ttl)
	s.attempts[k] = state

	return state.count, nil
}

// ClearAttempts 清除退避尝试计数
func (s *memoryStore) ClearAttempts(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attempts, attemptsKey(key))
	return nil
}

// Reset 清除指定键的全部计数状态
func (s *memoryStore) Reset(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, windowKey(key))
	delete(s.buckets, bucketKey(key))
	delete(s.attempts, attemptsKey(key))
	return nil
}

// Ping 进程内后端始终可用
func (s *memoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close 清空全部状态
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.windows = make(map[string][]windowEntry)
	s.buckets = make(map[string]bucketState)
	s.attempts = make(map[string]attemptState)
	return nil
}
