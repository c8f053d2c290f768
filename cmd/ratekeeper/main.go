package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/shengyanli1982/gs"
	"github.com/shengyanli1982/law"
	"github.com/shengyanli1982/orbit/utils/log"

	"github.com/clipmark/ratekeeper-go/internal/config"
	"github.com/clipmark/ratekeeper-go/internal/constants"
	"github.com/clipmark/ratekeeper-go/internal/guard"
	"github.com/clipmark/ratekeeper-go/internal/limiter"
	"github.com/clipmark/ratekeeper-go/internal/metrics"
	"github.com/clipmark/ratekeeper-go/internal/policy"
	"github.com/clipmark/ratekeeper-go/internal/server"
	"github.com/clipmark/ratekeeper-go/internal/store"
)

// Version 通过 ldflags 在编译时设置
var Version = "0.1.0"

const ASCII_LOGO = `
██████╗  █████╗ ████████╗███████╗██╗  ██╗███████╗███████╗██████╗ ███████╗██████╗
██╔══██╗██╔══██╗╚══██╔══╝██╔════╝██║ ██╔╝██╔════╝██╔════╝██╔══██╗██╔════╝██╔══██╗
██████╔╝███████║   ██║   █████╗  █████╔╝ █████╗  █████╗  ██████╔╝█████╗  ██████╔╝
██╔══██╗██╔══██║   ██║   ██╔══╝  ██╔═██╗ ██╔══╝  ██╔══╝  ██╔═══╝ ██╔══╝  ██╔══██╗
██║  ██║██║  ██║   ██║   ███████╗██║  ██╗███████╗███████╗██║     ███████╗██║  ██║
╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝╚═╝  ╚═╝╚══════╝╚══════╝╚═╝     ╚══════╝╚═╝  ╚═╝
	`

// ServiceContext 服务上下文结构体，用于管理服务所需的所有组件
type ServiceContext struct {
	logger      *logr.Logger      // 日志记录器
	asyncWriter *law.WriteAsyncer // 异步写入器
	config      *config.Config    // 服务配置
	configMgr   *config.Manager   // 配置管理器
	policyStore *policy.Store     // 策略表
	sharedStore store.Store       // 共享状态后端
	watcher     *config.Watcher   // 配置文件监视器
	adminServer *server.AdminServer
}

// isReleaseMode 判断是否为发布模式
// releaseMode: 是否为发布模式
func isReleaseMode(releaseMode bool) bool {
	return releaseMode || gin.Mode() == gin.ReleaseMode
}

// initLogger 初始化日志系统
// releaseMode: 是否为发布模式
// jsonOutput: 是否输出 JSON 格式日志
func initLogger(releaseMode, jsonOutput bool) (*logr.Logger, *law.WriteAsyncer) {
	var (
		logger      *logr.Logger
		asyncWriter *law.WriteAsyncer
	)

	// 在发布模式下使用异步写入器
	if isReleaseMode(releaseMode) {
		asyncWriter = law.NewWriteAsyncer(os.Stdout, law.DefaultConfig())
		if jsonOutput {
			// JSON 格式输出使用 ZapLogger
			logger = log.NewZapLogger(zapcore.AddSync(asyncWriter)).GetLogrLogger()
		} else {
			// 普通格式输出使用 LogrLogger
			logger = log.NewLogrLogger(asyncWriter).GetLogrLogger()
		}
		return logger, asyncWriter
	}

	// 开发模式直接使用标准输出
	logger = log.NewLogrLogger(os.Stdout).GetLogrLogger()
	return logger, nil
}

// initConfig 初始化配置管理器并加载配置
// 配置整体加载失败时降级为硬编码的默认配置和兜底策略集，系统保持可用
// configPath: 配置文件路径
func initConfig(configPath string, logger *logr.Logger) (*config.Manager, *config.Config, []*policy.LimitPolicy) {
	configManager, err := config.NewManager()
	if err != nil {
		logger.Error(err, "Failed to create configuration manager, using defaults")
		return nil, defaultConfig(), policy.Defaults()
	}

	if err := configManager.LoadFromFile(configPath); err != nil {
		logger.Error(err, "Failed to load configuration, falling back to default policy set",
			"path", configPath)
		return configManager, defaultConfig(), policy.Defaults()
	}

	cfg := configManager.GetConfig()
	return configManager, cfg, policy.Build(cfg.Policies)
}

// defaultConfig 返回配置文件不可用时的兜底配置
func defaultConfig() *config.Config {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Addrs: []string{"127.0.0.1:6379"},
		},
	}
	(&config.Manager{}).SetDefaults(cfg)
	return cfg
}

// initStore 根据配置构建共享状态后端
// 配置多个Redis地址时按一致性哈希分片
func initStore(cfg *config.RedisConfig) (store.Store, error) {
	newClient := func(addr string) *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
	}

	if len(cfg.Addrs) == 1 {
		return store.NewRedisStore(newClient(cfg.Addrs[0]))
	}

	shards := make(map[string]store.Store, len(cfg.Addrs))
	for _, addr := range cfg.Addrs {
		shard, err := store.NewRedisStore(newClient(addr))
		if err != nil {
			return nil, fmt.Errorf("failed to init shard %s: %w", addr, err)
		}
		shards[addr] = shard
	}
	return store.NewShardedStore(shards)
}

// initMetrics 初始化指标收集器并注册到全局注册器
func initMetrics(cfg *config.MetricsConfig) (metrics.MetricsCollector, error) {
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Type = constants.MetricsTypePrometheus
	if cfg != nil {
		if cfg.Type != "" {
			metricsCfg.Type = cfg.Type
		}
		if cfg.Namespace != "" {
			metricsCfg.Namespace = cfg.Namespace
		}
	}

	collector, err := metrics.NewFactory().Create(metricsCfg)
	if err != nil {
		return nil, err
	}

	if err := metrics.GetGlobalRegistry().RegisterCollector(constants.MetricsCollectorGlobal, collector); err != nil {
		return nil, err
	}
	return collector, nil
}

// setupGracefulShutdown 设置优雅关闭机制
// ctx: 服务上下文
// releaseMode: 是否为发布模式
func setupGracefulShutdown(ctx *ServiceContext, releaseMode bool) {
	// 创建服务器终止信号
	serverSignal := gs.NewTerminateSignal()
	serverSignal.RegisterCancelHandles(ctx.adminServer.Stop)
	if ctx.watcher != nil {
		serverSignal.RegisterCancelHandles(ctx.watcher.Stop)
	}
	serverSignal.RegisterCancelHandles(func() {
		if err := ctx.sharedStore.Close(); err != nil {
			ctx.logger.Error(err, "Failed to close shared store")
		}
	})

	// 创建写入器终止信号
	writerSignal := gs.NewTerminateSignal()
	if isReleaseMode(releaseMode) && ctx.asyncWriter != nil {
		writerSignal.RegisterCancelHandles(ctx.asyncWriter.Stop)
	}

	// 等待所有终止信号完成
	gs.WaitForSync(serverSignal, writerSignal)
}

func main() {
	// 定义命令行参数
	var (
		configPath  string
		releaseMode bool
		jsonOutput  bool
	)

	cmd := cobra.Command{
		Use:     "ratekeeper",
		Version: Version,
		Short:   "RateKeeper is a distributed rate limiter for outbound third-party calls",
		Long: `RateKeeper is the distributed rate limiting service of the clipmark backend.

Every outbound call to a rate-limited third party (platform fetchers,
LLM/embedding providers) passes through RateKeeper before proceeding.

Core Features:
- Sliding window and token bucket algorithms with atomic shared-state accounting
- Identical, race-free counting across any number of backend instances
- Per-operation cost mapping for variable-cost ML workloads
- Exponential/linear/adaptive retry backoff with jitter
- Fail-closed availability guard around the shared state store
- Hot-reloadable declarative policy file
- Prometheus metrics and admin HTTP plane
- Graceful shutdown support`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 创建服务上下文
			ctx := &ServiceContext{}

			// 初始化日志系统
			ctx.logger, ctx.asyncWriter = initLogger(releaseMode, jsonOutput)

			// 加载服务配置，失败时降级为默认策略集
			var policies []*policy.LimitPolicy
			ctx.configMgr, ctx.config, policies = initConfig(configPath, ctx.logger)
			ctx.policyStore = policy.NewStore(policies)
			ctx.logger.Info("Policy table loaded", "services", ctx.policyStore.Len())

			// 初始化指标收集器
			collector, err := initMetrics(ctx.config.Metrics)
			if err != nil {
				ctx.logger.Error(err, "Failed to initialize metrics collector")
				return err
			}

			// 连接共享状态后端
			ctx.sharedStore, err = initStore(&ctx.config.Redis)
			if err != nil {
				ctx.logger.Error(err, "Failed to connect to shared state store")
				return err
			}

			// 包装可用性保护：短超时 + 熔断，后端故障时fail closed
			settings := guard.SettingsFromConfig(constants.DefaultBreakerName, ctx.config.Breaker, collector, ctx.logger)
			guarded := guard.NewGuardedStore(ctx.sharedStore, settings,
				time.Duration(ctx.config.Redis.OpTimeout)*time.Millisecond, collector)

			// 创建限流器门面
			limiterSvc, err := limiter.NewService(ctx.policyStore, guarded, collector, ctx.logger)
			if err != nil {
				ctx.logger.Error(err, "Failed to create limiter service")
				return err
			}

			// 输出 ASCII 标志（只有在初始化成功后才显示）
			fmt.Println(ASCII_LOGO)

			// 启动配置热加载
			if ctx.configMgr != nil && ctx.config.Watch.Enabled {
				ctx.watcher = config.NewWatcher(configPath, ctx.config.Watch, ctx.logger, func() {
					if err := ctx.configMgr.LoadFromFile(configPath); err != nil {
						// 热加载失败保留当前策略表
						ctx.logger.Error(err, "Policy reload failed, keeping current table")
						collector.RecordPolicyReload("failure")
						return
					}
					ctx.policyStore.Replace(policy.Build(ctx.configMgr.GetConfig().Policies))
					collector.RecordPolicyReload("success")
					ctx.logger.Info("Policy table reloaded", "services", ctx.policyStore.Len())
				})
				if err := ctx.watcher.Start(); err != nil {
					ctx.logger.Error(err, "Failed to start config watcher")
				}
			}

			// 创建并启动管理服务器
			ctx.adminServer = server.NewAdminServer(!releaseMode, ctx.logger, &ctx.config.Admin,
				limiterSvc, ctx.policyStore, guarded)
			ctx.adminServer.Start()
			ctx.logger.Info("RateKeeper started successfully")

			// 设置优雅关闭机制
			setupGracefulShutdown(ctx, releaseMode)

			ctx.logger.Info("RateKeeper stopped")
			return nil
		},
	}

	// 注册命令行参数
	cmd.Flags().StringVarP(&configPath, constants.FlagConfig, constants.FlagConfigShort,
		constants.DefaultConfigPath, "Path to configuration file")
	cmd.Flags().BoolVarP(&jsonOutput, constants.FlagJSON, constants.FlagJSONShort,
		false, "Enable JSON format logging output (only effective in release mode)")
	cmd.Flags().BoolVarP(&releaseMode, constants.FlagRelease, constants.FlagReleaseShort,
		false, "Enable release mode for performance optimizations and async logging")

	// 执行命令
	if err := cmd.Execute(); err != nil {
		fmt.Printf("Failed to execute command: %v\n", err)
		os.Exit(constants.ExitFailure)
	}
}
