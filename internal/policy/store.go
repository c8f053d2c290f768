package policy

import (
	"sort"
	"sync/atomic"
)

// table 代表一张不可变的策略表，发布后不再修改
type table map[string]*LimitPolicy

// Store 代表策略表的持有者
// 替换通过原子指针交换完成，进行中的检查继续使用其捕获的快照
type Store struct {
	current atomic.Pointer[table]
}

// NewStore 创建持有指定策略集合的策略表实例
func NewStore(policies []*LimitPolicy) *Store {
	s := &Store{}
	s.Replace(policies)
	return s
}

// Get 获取指定服务的限流策略
// 返回策略实例和是否存在的标志
func (s *Store) Get(service string) (*LimitPolicy, bool) {
	t := *s.current.Load()
	policy, ok := t[service]
	return policy, ok
}

// GetAll 返回策略表的副本，防止外部修改内部状态
func (s *Store) GetAll() map[string]LimitPolicy {
	t := *s.current.Load()
	snapshot := make(map[string]LimitPolicy, len(t))
	for name, policy := range t {
		snapshot[name] = *policy
	}
	return snapshot
}

// Services 返回所有已配置服务的有序名称列表
func (s *Store) Services() []string {
	t := *s.current.Load()
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len 返回策略表中的策略数量
func (s *Store) Len() int {
	return len(*s.current.Load())
}

// Replace 整体替换策略表
// 新表构建完成后通过一次原子交换发布，读取方要么看到旧表要么看到新表
func (s *Store) Replace(policies []*LimitPolicy) {
	t := make(table, len(policies))
	for _, policy := range policies {
		t[policy.Service] = policy
	}
	s.current.Store(&t)
}
