package httptransport

import (
	"mailwatch/internal/service"
	"mailwatch/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 记录错误
	storage.ErrEmailLogNotFound: "邮件记录不存在",

	// 回调错误
	service.ErrMissingFields:  "缺少必填字段",
	service.ErrUnknownStatus:  "未知的目标状态",
	service.ErrTerminalStatus: "记录已处于终态，无法再变更",

	// 管理操作错误
	service.ErrNotResendable:    "仅失败的邮件可以重发",
	service.ErrNotPending:       "仅发送中的邮件可以标记为已发送",
	service.ErrInvalidRetention: "保留天数必须为正数",
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
	MsgInvalidRequest = "请求参数格式错误"

	// 认证相关
	MsgInvalidCredentials = "用户名或密码错误"
	MsgAuthDisabled       = "认证未配置"

	// 记录相关
	MsgLogNotFound      = "邮件记录不存在"
	MsgLogListFailed    = "获取邮件列表失败"
	MsgLogGetFailed     = "获取邮件详情失败"
	MsgLogDeleteFailed  = "删除邮件记录失败"
	MsgResendFailed     = "重发邮件失败"
	MsgMarkSentFailed   = "标记已发送失败"
	MsgFixStuckFailed   = "修复卡死邮件失败"
	MsgStatisticsFailed = "获取统计数据失败"
	MsgCleanupFailed    = "清理过期记录失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
