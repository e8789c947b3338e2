package domain

import "strings"

// OutgoingMessage 发送路径事件携带的邮件要素
type OutgoingMessage struct {
	MessageID string   `json:"messageId"` // 协议层 Message-ID，可能为空
	To        []string `json:"to"`
	Cc        []string `json:"cc"`
	Bcc       []string `json:"bcc"`
	From      []string `json:"from"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
}

// JoinAddresses 将地址列表压平为逗号分隔的字符串
func JoinAddresses(addrs []string) string {
	cleaned := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, ", ")
}

// RequestContext 发送路径上显式传入的请求上下文，替代隐式全局状态
type RequestContext struct {
	UserID    string `json:"userId"`
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
}

// StatusUpdate 投递服务商回调携带的状态更新
type StatusUpdate struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"` // delivered / bounced / failed
	Reason    string `json:"reason,omitempty"`
}
