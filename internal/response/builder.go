// Package response 提供基于httptool.BaseHttpResponse的统一HTTP响应格式
//
// 基本用法：
//
//	// 成功响应
//	response.Success(data).JSON(c, http.StatusOK)
//
//	// 错误响应
//	response.Error(CodeBadRequest, "invalid request").WithDetail(details).JSON(c, http.StatusBadRequest)
package response

import (
	"github.com/gin-gonic/gin"
	"github.com/shengyanli1982/toolkit/pkg/httptool"
)

// 响应代码常量定义
const (
	// CodeSuccess 表示操作成功
	CodeSuccess = 0

	// 1000-1999: 客户端错误
	CodeBadRequest = 1000 // 请求参数错误
	CodeNotFound   = 1003 // 资源未找到
	CodeRateLimit  = 1004 // 管理接口请求频率限制

	// 2000-2999: 服务器错误
	CodeInternalError = 2000 // 服务器内部错误

	// 3000-3999: 限流业务结果
	CodeUnknownService     = 3000 // 未配置限流策略的服务
	CodeLimitExceeded      = 3001 // 超过限额
	CodeLimiterUnavailable = 3002 // 共享状态后端不可用
)

// ResponseBuilder 是基于httptool.BaseHttpResponse的统一响应构建器
type ResponseBuilder struct {
	response *httptool.BaseHttpResponse
}

// Success 创建成功响应构建器
func Success(data interface{}) *ResponseBuilder {
	return &ResponseBuilder{
		response: &httptool.BaseHttpResponse{
			Code: CodeSuccess,
			Data: data,
		},
	}
}

// Error 创建错误响应构建器
func Error(code int64, message string) *ResponseBuilder {
	return &ResponseBuilder{
		response: &httptool.BaseHttpResponse{
			Code:         code,
			ErrorMessage: message,
		},
	}
}

// WithDetail 添加错误详细信息，支持链式调用
func (b *ResponseBuilder) WithDetail(detail interface{}) *ResponseBuilder {
	b.response.ErrorDetail = detail
	return b
}

// JSON 将响应以JSON格式写入gin上下文
func (b *ResponseBuilder) JSON(c *gin.Context, statusCode int) {
	c.JSON(statusCode, b.response)
}

// Build 返回构建的响应实例
func (b *ResponseBuilder) Build() *httptool.BaseHttpResponse {
	return b.response
}
