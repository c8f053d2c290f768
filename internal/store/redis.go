package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipmark/ratekeeper-go/internal/constants"
)

// 脚本返回值解析错误
var ErrInvalidScriptReply = errors.New("invalid lua script reply format")

// slidingWindowScript 滑动窗口的检查-准入脚本
// 清理过期记录、计数、判定与写入在Redis内原子完成，
// 两个并发调用方不可能在只剩一个名额时同时观察到"还有空位"
// 返回 {allowed, remaining, resetAtMs, retryAfterSeconds}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_sec = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local id = ARGV[5]
local window = window_sec * 1000

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)

if count + cost > limit then
    local reset = now + window
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    if #oldest >= 2 then
        reset = tonumber(oldest[2]) + window
    end
    local retry = math.ceil((reset - now) / 1000)
    if retry < 1 then
        retry = 1
    end
    local remaining = limit - count
    if remaining < 0 then
        remaining = 0
    end
    return {0, remaining, reset, retry}
end

for i = 1, cost do
    redis.call('ZADD', key, now, id .. ':' .. i)
end
redis.call('EXPIRE', key, window_sec + 1)
return {1, limit - count - cost, now + window, 0}
`)

// tokenBucketScript 令牌桶的检查-消费脚本
// 读取、按流逝时间补充、判定与写回在Redis内原子完成
// 拒绝时已补充的令牌仍被写回，补充进度不因拒绝而丢失
// 返回 {allowed, tokens(字符串保留小数), resetAtMs, retryAfterSeconds}
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
    tokens = capacity
end
if ts == nil then
    ts = now
end

local elapsed = (now - ts) / 1000
if elapsed < 0 then
    elapsed = 0
end
tokens = tokens + elapsed * rate
if tokens > capacity then
    tokens = capacity
end

if tokens < cost then
    redis.call('HSET', key, 'tokens', tokens, 'ts', now)
    redis.call('EXPIRE', key, ttl)
    local retry = math.ceil((cost - tokens) / rate)
    if retry < 1 then
        retry = 1
    end
    local reset = now + math.ceil((capacity - tokens) / rate * 1000)
    return {0, tostring(tokens), reset, retry}
end

tokens = tokens - cost
redis.call('HSET', key, 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)
local reset = now + math.ceil((capacity - tokens) / rate * 1000)
return {1, tostring(tokens), reset, 0}
`)

// redisStore 基于Redis的共享状态后端实现
// 使用服务端Lua脚本保证检查-更新步骤的原子性，go-redis在NOSCRIPT时自动回退为EVAL
type redisStore struct {
	client redis.UniversalClient
}

// NewRedisStore 创建新的Redis后端实例并验证连通性
func NewRedisStore(client redis.UniversalClient) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

// SlidingWindowCheck 原子执行滑动窗口的检查-准入步骤
func (s *redisStore) SlidingWindowCheck(ctx context.Context, args *SlidingWindowArgs) (*SlidingWindowResult, error) {
	reply, err := slidingWindowScript.Run(ctx, s.client,
		[]string{windowKey(args.Key)},
		args.NowMs,
		args.WindowSeconds,
		args.Limit,
		args.Cost,
		args.AdmissionID,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("sliding window script failed: %w", err)
	}

	values, ok := reply.([]interface{})
	if !ok || len(values) != 4 {
		return nil, ErrInvalidScriptReply
	}

	return &SlidingWindowResult{
		Allowed:           asInt64(values[0]) == 1,
		Remaining:         int(asInt64(values[1])),
		ResetAtMs:         asInt64(values[2]),
		RetryAfterSeconds: int(asInt64(values[3])),
	}, nil
}

// TokenBucketCheck 原子执行令牌桶的检查-消费步骤
func (s *redisStore) TokenBucketCheck(ctx context.Context, args *TokenBucketArgs) (*TokenBucketResult, error) {
	reply, err := tokenBucketScript.Run(ctx, s.client,
		[]string{bucketKey(args.Key)},
		args.NowMs,
		args.Capacity,
		args.RefillRate,
		args.Cost,
		args.TTLSeconds,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("token bucket script failed: %w", err)
	}

	values, ok := reply.([]interface{})
	if !ok || len(values) != 4 {
		return nil, ErrInvalidScriptReply
	}

	return &TokenBucketResult{
		Allowed:           asInt64(values[0]) == 1,
		Tokens:            asFloat64(values[1]),
		ResetAtMs:         asInt64(values[2]),
		RetryAfterSeconds: int(asInt64(values[3])),
	}, nil
}

// IncrAttempts 递增退避尝试计数并刷新过期时间
// 计数存放在共享后端而不是进程内，多实例间的退避状态保持一致
func (s *redisStore) IncrAttempts(ctx context.Context, key Key, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, attemptsKey(key))
	pipe.Expire(ctx, attemptsKey(key), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr attempts failed: %w", err)
	}
	return incr.Val(), nil
}

// ClearAttempts 清除退避尝试计数
func (s *redisStore) ClearAttempts(ctx context.Context, key Key) error {
	return s.client.Del(ctx, attemptsKey(key)).Err()
}

// Reset 清除指定键的全部计数状态
func (s *redisStore) Reset(ctx context.Context, key Key) error {
	return s.client.Del(ctx, windowKey(key), bucketKey(key), attemptsKey(key)).Err()
}

// Ping 检查后端连通性
func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭后端连接
func (s *redisStore) Close() error {
	return s.client.Close()
}

// windowKey 构建滑动窗口状态键
func windowKey(key Key) string {
	return fmt.Sprintf("%s:rl:%s:%s", constants.KeyPrefix, key.Service, key.Identifier)
}

// bucketKey 构建令牌桶状态键
func bucketKey(key Key) string {
	return fmt.Sprintf("%s:tb:%s:%s", constants.KeyPrefix, key.Service, key.Identifier)
}

// attemptsKey 构建退避尝试计数键
func attemptsKey(key Key) string {
	return fmt.Sprintf("%s:att:%s:%s", constants.KeyPrefix, key.Service, key.Identifier)
}

// asInt64 将Lua脚本返回值转换为int64
func asInt64(val interface{}) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// asFloat64 将Lua脚本返回值转换为float64
func asFloat64(val interface{}) float64 {
	switch v := val.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
