package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/clipmark/ratekeeper-go/internal/constants"
)

// 全局验证器实例，用于配置验证
var validate = validator.New()

// Manager 代表配置管理器，负责配置文件的加载、验证和管理
type Manager struct {
	config     *Config             // 当前加载的配置实例
	configPath string              // 配置文件的绝对路径
	validator  *validator.Validate // 配置验证器
}

// NewManager 创建新的配置管理器实例
func NewManager() (*Manager, error) {
	// 注册自定义验证器
	if err := validate.RegisterValidation("backoff_conditional", validateBackoffConditional); err != nil {
		return nil, err
	}

	return &Manager{
		validator: validate,
	}, nil
}

// LoadFromFile 从指定路径加载配置文件并进行验证
// configPath: 配置文件路径
func (m *Manager) LoadFromFile(configPath string) error {
	// 检查文件是否存在
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	// 读取配置文件
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// 解析 YAML 配置
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// 设置默认值
	m.SetDefaults(&config)

	// 验证配置结构
	if err := m.validator.Struct(&config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// 验证策略表，任何一条非法条目都使整个加载失败
	if err := m.validatePolicies(&config); err != nil {
		return fmt.Errorf("policy validation failed: %w", err)
	}

	// 保存配置和路径
	m.config = &config
	m.configPath, _ = filepath.Abs(configPath)

	// 配置加载成功，日志记录由调用者负责
	return nil
}

// validatePolicies 验证策略表中每条策略的算法必填字段
// 策略表不允许部分加载，首条非法条目即返回错误并指明服务名
func (m *Manager) validatePolicies(config *Config) error {
	seen := make(map[string]bool, len(config.Policies))
	for i := range config.Policies {
		policy := &config.Policies[i]

		if seen[policy.Service] {
			return fmt.Errorf("duplicate policy for service '%s'", policy.Service)
		}
		seen[policy.Service] = true

		switch policy.Algorithm {
		case "sliding_window":
			if policy.RequestsPerWindow <= 0 || policy.WindowSeconds <= 0 {
				return fmt.Errorf("service '%s': sliding_window requires requestsPerWindow and windowSeconds",
					policy.Service)
			}
		case "token_bucket":
			// 兼容旧的 requestsPerWindow/windowSeconds 表达形式
			if policy.Capacity == 0 && policy.RequestsPerWindow > 0 && policy.WindowSeconds > 0 {
				policy.Capacity = float64(policy.RequestsPerWindow)
				policy.RefillRate = float64(policy.RequestsPerWindow) / float64(policy.WindowSeconds)
			}
			if policy.Capacity <= 0 || policy.RefillRate <= 0 {
				return fmt.Errorf("service '%s': token_bucket requires capacity and refillRatePerSecond",
					policy.Service)
			}
		}

		// 成本映射只对令牌桶有意义，数值必须为正
		for op, cost := range policy.CostMapping {
			if cost <= 0 {
				return fmt.Errorf("service '%s': costMapping['%s'] must be positive", policy.Service, op)
			}
		}
	}

	return nil
}

// GetConfig 返回当前加载的配置实例
func (m *Manager) GetConfig() *Config {
	return m.config
}

// GetConfigPath 返回当前配置文件的绝对路径
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetDefaults 为配置设置默认值，确保所有必需字段都有合理的默认值
// config: 待设置默认值的配置实例
func (m *Manager) SetDefaults(config *Config) {
	// 设置管理服务默认值
	m.setAdminDefaults(config)

	// 设置共享状态存储默认值
	m.setRedisDefaults(config)

	// 设置熔断器默认值
	m.setBreakerDefaults(config)

	// 设置热加载默认值
	m.setWatchDefaults(config)

	// 设置策略默认值
	m.setPolicyDefaults(config)
}

// setAdminDefaults 设置管理服务的默认值
func (m *Manager) setAdminDefaults(config *Config) {
	if config.Admin.Port == 0 {
		config.Admin.Port = constants.DefaultAdminPort
	}
	if config.Admin.Address == "" {
		config.Admin.Address = constants.DefaultAddress
	}
	if config.Admin.Timeout == nil {
		config.Admin.Timeout = &TimeoutConfig{
			Idle:  constants.DefaultIdleTimeout,
			Read:  constants.DefaultReadTimeout,
			Write: constants.DefaultWriteTimeout,
		}
	} else {
		if config.Admin.Timeout.Idle == 0 {
			config.Admin.Timeout.Idle = constants.DefaultIdleTimeout
		}
		if config.Admin.Timeout.Read == 0 {
			config.Admin.Timeout.Read = constants.DefaultReadTimeout
		}
		if config.Admin.Timeout.Write == 0 {
			config.Admin.Timeout.Write = constants.DefaultWriteTimeout
		}
	}
	if config.Admin.RateLimit == nil {
		config.Admin.RateLimit = &RateLimitConfig{
			PerSecond: constants.DefaultAdminPerSecond,
			Burst:     constants.DefaultAdminBurst,
		}
	} else {
		if config.Admin.RateLimit.PerSecond == 0 {
			config.Admin.RateLimit.PerSecond = constants.DefaultAdminPerSecond
		}
		if config.Admin.RateLimit.Burst == 0 {
			config.Admin.RateLimit.Burst = constants.DefaultAdminBurst
		}
	}
}

// setRedisDefaults 设置共享状态存储的默认值
func (m *Manager) setRedisDefaults(config *Config) {
	if config.Redis.PoolSize == 0 {
		config.Redis.PoolSize = constants.DefaultRedisPoolSize
	}
	if config.Redis.OpTimeout == 0 {
		config.Redis.OpTimeout = constants.DefaultStoreOpTimeout
	}
}

// setBreakerDefaults 设置熔断器的默认值
func (m *Manager) setBreakerDefaults(config *Config) {
	if config.Breaker == nil {
		config.Breaker = &BreakerConfig{}
	}
	if config.Breaker.Threshold == 0 {
		config.Breaker.Threshold = constants.DefaultBreakerThreshold
	}
	if config.Breaker.Cooldown == 0 {
		config.Breaker.Cooldown = constants.DefaultBreakerCooldown
	}
	if config.Breaker.Interval == 0 {
		config.Breaker.Interval = constants.DefaultBreakerInterval
	}
	if config.Breaker.MaxRequests == 0 {
		config.Breaker.MaxRequests = constants.DefaultBreakerMaxRequests
	}
	if config.Breaker.MinRequests == 0 {
		config.Breaker.MinRequests = constants.DefaultBreakerMinRequests
	}
}

// setWatchDefaults 设置配置热加载的默认值
func (m *Manager) setWatchDefaults(config *Config) {
	if config.Watch == nil {
		config.Watch = &WatchConfig{Enabled: true}
	}
	if config.Watch.Interval == 0 {
		config.Watch.Interval = constants.DefaultWatchInterval
	}
	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = constants.DefaultWatchDebounce
	}
}

// setPolicyDefaults 设置限流策略的默认值
func (m *Manager) setPolicyDefaults(config *Config) {
	for i := range config.Policies {
		policy := &config.Policies[i]

		// 空闲键过期时间默认跟随窗口或桶填满时间
		if policy.TTLSeconds == 0 {
			switch policy.Algorithm {
			case "sliding_window":
				policy.TTLSeconds = policy.WindowSeconds + 1
			case "token_bucket":
				if policy.RefillRate > 0 {
					policy.TTLSeconds = int(policy.Capacity/policy.RefillRate) + 1
				} else if policy.WindowSeconds > 0 {
					policy.TTLSeconds = policy.WindowSeconds + 1
				}
			}
		}

		if policy.Backoff == nil {
			policy.Backoff = &BackoffConfig{}
		}
		if policy.Backoff.Type == "" {
			policy.Backoff.Type = "exponential"
		}
		if policy.Backoff.InitialDelay == 0 {
			policy.Backoff.InitialDelay = constants.DefaultBackoffInitialDelay
		}
		if policy.Backoff.MaxDelay == 0 {
			policy.Backoff.MaxDelay = constants.DefaultBackoffMaxDelay
		}
		if policy.Backoff.Multiplier == 0 {
			policy.Backoff.Multiplier = constants.DefaultBackoffMultiplier
		}
		if policy.Backoff.Jitter == nil {
			enabled := true
			policy.Backoff.Jitter = &enabled
		}
	}
}

// validateBackoffConditional 验证退避配置的条件必填字段
func validateBackoffConditional(fl validator.FieldLevel) bool {
	backoff, ok := fl.Parent().Interface().(BackoffConfig)
	if !ok {
		return true // 如果不是BackoffConfig类型，跳过验证
	}

	switch backoff.Type {
	case "exponential", "adaptive":
		// 指数与自适应退避要求倍数大于1
		return backoff.Multiplier == 0 || backoff.Multiplier > 1
	default:
		// 线性退避不使用倍数
		return true
	}
}
