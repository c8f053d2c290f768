package config

// Config 代表主配置结构体，包含管理服务、共享状态存储和限流策略的完整配置
type Config struct {
	Admin    AdminConfig    `yaml:"admin"`
	Redis    RedisConfig    `yaml:"redis" validate:"required"`
	Breaker  *BreakerConfig `yaml:"breaker,omitempty"`
	Watch    *WatchConfig   `yaml:"watch,omitempty"`
	Metrics  *MetricsConfig `yaml:"metrics,omitempty"`
	Policies []PolicyConfig `yaml:"policies" validate:"required,min=1,dive"`
}

// AdminConfig 代表管理服务配置，用于策略查看、手动检查和监控指标暴露
type AdminConfig struct {
	Port      int              `yaml:"port" validate:"min=1,max=65535"`
	Address   string           `yaml:"address"`
	Timeout   *TimeoutConfig   `yaml:"timeout,omitempty"`
	RateLimit *RateLimitConfig `yaml:"ratelimit,omitempty"`
}

// TimeoutConfig 代表超时配置，定义各种操作的超时时间（单位：毫秒）
type TimeoutConfig struct {
	Idle  int `yaml:"idle,omitempty" validate:"omitempty,min=1000,max=86400000"`
	Read  int `yaml:"read,omitempty" validate:"omitempty,min=1000,max=86400000"`
	Write int `yaml:"write,omitempty" validate:"omitempty,min=1000,max=86400000"`
}

// RateLimitConfig 代表管理接口的本地限流配置，控制请求频率和突发流量
type RateLimitConfig struct {
	PerSecond int `yaml:"perSecond" validate:"omitempty,min=1,max=65535"`
	Burst     int `yaml:"burst" validate:"omitempty,min=1,max=65535"`
}

// RedisConfig 代表共享状态存储配置
// 配置多个地址时按一致性哈希将限流键分片到各个节点
type RedisConfig struct {
	Addrs     []string `yaml:"addrs" validate:"required,min=1,dive,hostname_port"`
	Password  string   `yaml:"password,omitempty"`
	DB        int      `yaml:"db" validate:"min=0,max=15"`
	PoolSize  int      `yaml:"poolSize,omitempty" validate:"omitempty,min=1,max=1000"`
	OpTimeout int      `yaml:"opTimeout,omitempty" validate:"omitempty,min=10,max=5000"` // 单位：毫秒
}

// BreakerConfig 代表可用性保护配置，用于隔离不可用的共享状态存储
type BreakerConfig struct {
	Threshold   float64 `yaml:"threshold,omitempty" validate:"omitempty,min=0.01,max=1.0"`
	Cooldown    int     `yaml:"cooldown,omitempty" validate:"omitempty,min=1000,max=3600000"` // 单位：毫秒
	Interval    int     `yaml:"interval,omitempty" validate:"omitempty,min=1000,max=3600000"` // 单位：毫秒
	MaxRequests uint32  `yaml:"maxRequests,omitempty" validate:"omitempty,min=1,max=100"`
	MinRequests uint32  `yaml:"minRequests,omitempty" validate:"omitempty,min=1,max=10000"`
}

// WatchConfig 代表配置文件热加载配置
type WatchConfig struct {
	Enabled  bool `yaml:"enabled"`
	Interval int  `yaml:"interval,omitempty" validate:"omitempty,min=100,max=60000"` // 单位：毫秒
	Debounce int  `yaml:"debounce,omitempty" validate:"omitempty,min=100,max=60000"` // 单位：毫秒
}

// MetricsConfig 代表指标收集器配置
type MetricsConfig struct {
	Type      string `yaml:"type,omitempty" validate:"omitempty,oneof=prometheus noop"`
	Namespace string `yaml:"namespace,omitempty"`
}

// PolicyConfig 代表单个外部服务的限流策略配置
// 滑动窗口算法要求 requestsPerWindow 和 windowSeconds
// 令牌桶算法要求 capacity 和 refillRatePerSecond，
// 或者以 requestsPerWindow/windowSeconds 的兼容形式表达（加载时自动转换）
type PolicyConfig struct {
	Service           string             `yaml:"service" validate:"required"`
	Algorithm         string             `yaml:"algorithm" validate:"required,oneof=sliding_window token_bucket"`
	RequestsPerWindow int                `yaml:"requestsPerWindow,omitempty" validate:"omitempty,min=1"`
	WindowSeconds     int                `yaml:"windowSeconds,omitempty" validate:"omitempty,min=1,max=86400"`
	Capacity          float64            `yaml:"capacity,omitempty" validate:"omitempty,gt=0"`
	RefillRate        float64            `yaml:"refillRatePerSecond,omitempty" validate:"omitempty,gt=0"`
	CostMapping       map[string]float64 `yaml:"costMapping,omitempty"`
	Backoff           *BackoffConfig     `yaml:"backoff,omitempty"`
	TTLSeconds        int                `yaml:"ttlSeconds,omitempty" validate:"omitempty,min=1,max=604800"`
}

// BackoffConfig 代表重试退避策略配置
type BackoffConfig struct {
	Type         string  `yaml:"type,omitempty" validate:"omitempty,oneof=exponential linear adaptive"`
	InitialDelay int     `yaml:"initialDelayMs,omitempty" validate:"omitempty,min=1,max=3600000"` // 单位：毫秒
	MaxDelay     int     `yaml:"maxDelayMs,omitempty" validate:"omitempty,min=1,max=3600000"`     // 单位：毫秒
	Multiplier   float64 `yaml:"multiplier,omitempty" validate:"backoff_conditional"`
	Jitter       *bool   `yaml:"jitterEnabled,omitempty"`
}
