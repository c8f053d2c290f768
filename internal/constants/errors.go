package constants

const (
	// Error messages - 错误消息

	// ErrMsgServerAlreadyStarted 服务器已启动错误消息
	ErrMsgServerAlreadyStarted = "server already started"

	// ErrMsgServerNotRunning 服务器未运行错误消息
	ErrMsgServerNotRunning = "server is not running"

	// ErrMsgWatcherAlreadyStarted 配置监视器已启动错误消息
	ErrMsgWatcherAlreadyStarted = "watcher already started"

	// ErrMsgStoreUnavailable 共享状态存储不可用错误消息
	ErrMsgStoreUnavailable = "rate limit store unavailable"

	// ErrMsgNilStore 空存储错误消息
	ErrMsgNilStore = "store cannot be nil"

	// ErrMsgNilPolicy 空策略错误消息
	ErrMsgNilPolicy = "policy cannot be nil"

	// ErrMsgEmptyService 空服务名错误消息
	ErrMsgEmptyService = "service name cannot be empty"
)

const (
	// Rejection reasons for metrics - 指标拒绝原因

	// RejectReasonLimit 超过限额拒绝
	RejectReasonLimit = "limit_exceeded"

	// RejectReasonUnavailable 存储不可用拒绝（fail closed）
	RejectReasonUnavailable = "store_unavailable"

	// RejectReasonUnknownService 未知服务拒绝
	RejectReasonUnknownService = "unknown_service"
)
