package server

import (
	"errors"

	"github.com/clipmark/ratekeeper-go/internal/constants"
)

// 服务器相关错误定义
var (
	ErrServerAlreadyStarted = errors.New(constants.ErrMsgServerAlreadyStarted)
	ErrServerNotRunning     = errors.New(constants.ErrMsgServerNotRunning)
)
