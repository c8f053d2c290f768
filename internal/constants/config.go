package constants

const (
	// Command line flags - 命令行标志

	// FlagConfig 配置文件路径参数名
	FlagConfig = "config"

	// FlagJSON JSON日志格式参数名
	FlagJSON = "json"

	// FlagRelease 发布模式参数名
	FlagRelease = "release"

	// Flag short aliases - 短参数别名

	// FlagConfigShort 配置文件路径短参数
	FlagConfigShort = "c"

	// FlagJSONShort JSON日志格式短参数
	FlagJSONShort = "j"

	// FlagReleaseShort 发布模式短参数
	FlagReleaseShort = "r"
)

const (
	// Limits and constraints - 限制和约束

	// MinPort 最小端口号
	MinPort = 1

	// MaxPort 最大端口号
	MaxPort = 65535

	// MinOpTimeout 存储操作最小超时时间（毫秒）
	MinOpTimeout = 10

	// MaxOpTimeout 存储操作最大超时时间（毫秒）
	MaxOpTimeout = 5000

	// MinWindowSeconds 滑动窗口最小时长（秒）
	MinWindowSeconds = 1

	// MaxWindowSeconds 滑动窗口最大时长（秒，24小时）
	MaxWindowSeconds = 86400

	// MinDebounce 配置热加载最小去抖间隔（毫秒）
	MinDebounce = 100

	// MaxDebounce 配置热加载最大去抖间隔（毫秒）
	MaxDebounce = 60000
)

const (
	// Default configuration values - 配置默认值

	// DefaultAddress 默认绑定地址
	DefaultAddress = "0.0.0.0"

	// DefaultAdminPort 默认管理端口
	DefaultAdminPort = 9000

	// DefaultIdleTimeout 默认空闲超时（毫秒）
	DefaultIdleTimeout = 60000

	// DefaultReadTimeout 默认读取超时（毫秒）
	DefaultReadTimeout = 30000

	// DefaultWriteTimeout 默认写入超时（毫秒）
	DefaultWriteTimeout = 30000

	// DefaultStoreOpTimeout 默认共享状态操作超时（毫秒）
	// 限流检查不能成为调用方的瓶颈，超时必须远小于任何合理的请求延迟预算
	DefaultStoreOpTimeout = 100

	// DefaultRedisPoolSize 默认Redis连接池大小
	DefaultRedisPoolSize = 10

	// DefaultWatchDebounce 默认配置热加载去抖间隔（毫秒）
	DefaultWatchDebounce = 1000

	// DefaultWatchInterval 默认配置文件轮询间隔（毫秒）
	DefaultWatchInterval = 1000

	// DefaultAdminPerSecond 管理接口默认每秒请求数
	DefaultAdminPerSecond = 50

	// DefaultAdminBurst 管理接口默认突发请求数
	DefaultAdminBurst = 100
)

const (
	// Breaker defaults - 熔断器默认值

	// DefaultBreakerName 默认熔断器名称
	DefaultBreakerName = "ratekeeper-store"

	// DefaultBreakerThreshold 默认熔断触发失败率
	DefaultBreakerThreshold = 0.5

	// DefaultBreakerCooldown 默认熔断冷却时间（毫秒）
	DefaultBreakerCooldown = 30000

	// DefaultBreakerInterval 默认统计周期重置间隔（毫秒）
	DefaultBreakerInterval = 10000

	// DefaultBreakerMaxRequests 半开状态下允许通过的最大探测请求数
	DefaultBreakerMaxRequests = 3

	// DefaultBreakerMinRequests 熔断判定所需的最小采样请求数
	DefaultBreakerMinRequests = 10
)

const (
	// Backoff defaults - 退避策略默认值

	// DefaultBackoffInitialDelay 默认初始退避延迟（毫秒）
	DefaultBackoffInitialDelay = 1000

	// DefaultBackoffMaxDelay 默认最大退避延迟（毫秒）
	DefaultBackoffMaxDelay = 60000

	// DefaultBackoffMultiplier 默认指数退避倍数
	DefaultBackoffMultiplier = 2.0

	// AdaptiveMinMultiplier 自适应退避的最小倍数
	AdaptiveMinMultiplier = 1.5

	// DefaultBackoffQuietPeriod 退避计数器空闲重置周期（秒）
	DefaultBackoffQuietPeriod = 300

	// JitterFraction 退避延迟的最大随机抖动比例
	JitterFraction = 0.1
)
