package httptransport

import (
	"mailguard/backend/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	service.ErrValidationRejected:   "邮件内容未通过安全校验",
	service.ErrRecipientBlacklisted: "收件人地址在封禁名单中",
	service.ErrSpamBlocked:          "邮件内容被判定为垃圾邮件",
	service.ErrTransportFailed:      "邮件投递失败",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidJSON      = "JSON格式错误"
	MsgRequestBodyEmpty = "请求体不能为空"
	MsgMissingRecipient = "收件人地址不能为空"
	MsgMissingOrgID     = "组织ID不能为空"
	MsgMissingSender    = "发件人地址不能为空"

	// 认证相关
	MsgAuthRequired     = "需要管理令牌认证"
	MsgPermissionDenied = "权限不足"

	// 校验相关
	MsgValidationFailed = "内容校验执行失败"
	MsgSpamCheckFailed  = "垃圾邮件检查执行失败"

	// 速率限制相关
	MsgRateLimitCheckFailed  = "速率检查执行失败"
	MsgRateLimitRecordFailed = "记录发送失败"
	MsgRateLimitResetFailed  = "重置速率状态失败"
	MsgRateLimited           = "发送频率超出限制"

	// 统计相关
	MsgStatisticsGetFailed = "获取统计数据失败"

	// 发送相关
	MsgSendFailed = "发送处理失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
