package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash/v2"
)

// 分片后端相关错误定义
var (
	ErrNoShards = errors.New("sharded store requires at least one shard")
)

// hasher 实现 consistent.Hasher 接口，使用 xxhash 算法
type hasher struct{}

// Sum64 实现哈希函数，使用 xxhash 提供高性能的哈希计算
func (h hasher) Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// member 实现 consistent.Member 接口，用于表示哈希环中的分片节点
type member string

// String 实现 consistent.Member 接口的 String 方法
func (m member) String() string {
	return string(m)
}

// shardedStore 将限流键按一致性哈希分片到多个后端节点
// 同一个限流键总是路由到同一个分片，单键的原子性仍由该分片保证
// 分片只扩展容量，不提供跨分片的计数聚合
type shardedStore struct {
	ring   *consistent.Consistent
	shards map[string]Store
}

// NewShardedStore 创建基于一致性哈希的分片后端实例
// shards: 分片名称到后端实例的映射
func NewShardedStore(shards map[string]Store) (Store, error) {
	if len(shards) == 0 {
		return nil, ErrNoShards
	}

	members := make([]consistent.Member, 0, len(shards))
	for name := range shards {
		members = append(members, member(name))
	}

	ring := consistent.New(members, consistent.Config{
		PartitionCount:    271,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	})

	return &shardedStore{
		ring:   ring,
		shards: shards,
	}, nil
}

// locate 定位指定限流键所属的分片
func (s *shardedStore) locate(key Key) (Store, error) {
	m := s.ring.LocateKey([]byte(key.Service + ":" + key.Identifier))
	if m == nil {
		return nil, ErrNoShards
	}

	shard, ok := s.shards[m.String()]
	if !ok {
		return nil, fmt.Errorf("shard '%s' not found", m.String())
	}
	return shard, nil
}

// SlidingWindowCheck 在限流键所属的分片上执行滑动窗口检查
func (s *shardedStore) SlidingWindowCheck(ctx context.Context, args *SlidingWindowArgs) (*SlidingWindowResult, error) {
	shard, err := s.locate(args.Key)
	if err != nil {
		return nil, err
	}
	return shard.SlidingWindowCheck(ctx, args)
}

// TokenBucketCheck 在限流键所属的分片上执行令牌桶检查
func (s *shardedStore) TokenBucketCheck(ctx context.Context, args *TokenBucketArgs) (*TokenBucketResult, error) {
	shard, err := s.locate(args.Key)
	if err != nil {
		return nil, err
	}
	return shard.TokenBucketCheck(ctx, args)
}

// IncrAttempts 在限流键所属的分片上递增退避尝试计数
func (s *shardedStore) IncrAttempts(ctx context.Context, key Key, ttl time.Duration) (int64, error) {
	shard, err := s.locate(key)
	if err != nil {
		return 0, err
	}
	return shard.IncrAttempts(ctx, key, ttl)
}

// ClearAttempts 在限流键所属的分片上清除退避尝试计数
func (s *shardedStore) ClearAttempts(ctx context.Context, key Key) error {
	shard, err := s.locate(key)
	if err != nil {
		return err
	}
	return shard.ClearAttempts(ctx, key)
}

// Reset 在限流键所属的分片上清除全部计数状态
func (s *shardedStore) Reset(ctx context.Context, key Key) error {
	shard, err := s.locate(key)
	if err != nil {
		return err
	}
	return shard.Reset(ctx, key)
}

// Ping 检查所有分片的连通性，任何一个分片不可用即视为不可用
func (s *shardedStore) Ping(ctx context.Context) error {
	for name, shard := range s.shards {
		if err := shard.Ping(ctx); err != nil {
			return fmt.Errorf("shard '%s' ping failed: %w", name, err)
		}
	}
	return nil
}

// Close 关闭所有分片连接
func (s *shardedStore) Close() error {
	var errs []error
	for name, shard := range s.shards {
		if err := shard.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close shard '%s': %w", name, err))
		}
	}
	return errors.Join(errs...)
}
