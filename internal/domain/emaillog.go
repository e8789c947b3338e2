package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status 邮件生命周期状态
type Status string

const (
	StatusSending   Status = "sending"   // 发送中（初始状态）
	StatusSent      Status = "sent"      // 发送成功
	StatusDelivered Status = "delivered" // 已送达（由投递服务商回调确认）
	StatusFailed    Status = "failed"    // 发送失败
	StatusBounced   Status = "bounced"   // 被退回
)

// IsValid 判断状态值是否合法
func (s Status) IsValid() bool {
	switch s {
	case StatusSending, StatusSent, StatusDelivered, StatusFailed, StatusBounced:
		return true
	}
	return false
}

// IsTerminal 判断状态是否为终态（终态之间不再流转，人工重发除外）
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusBounced:
		return true
	}
	return false
}

// CanTransitionTo 判断能否从当前状态流转到目标状态
//
// 流转规则：
//   - sending -> sent / failed（发送路径）
//   - sending / sent -> delivered / bounced / failed（投递服务商回调）
//   - 终态不再流转；failed -> sending 仅通过人工重发完成
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusSending:
		return target == StatusSent || target == StatusFailed ||
			target == StatusDelivered || target == StatusBounced
	case StatusSent:
		return target == StatusDelivered || target == StatusBounced || target == StatusFailed
	}
	return false
}

// Metadata 记录发送时的请求上下文，以 JSON 形式入库
type Metadata map[string]interface{}

// EmailLog 表示一次外发邮件的生命周期记录
type EmailLog struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MessageID    string     `json:"messageId" gorm:"type:varchar(255);index;not null"`
	// to/from 的索引在存储层按方言补建：MySQL 的 text 索引要求
	// 前缀长度，PostgreSQL 不接受前缀语法，结构体标签无法同时表达
	To           string     `json:"to" gorm:"type:text"`
	Cc           string     `json:"cc" gorm:"type:text"`
	Bcc          string     `json:"bcc" gorm:"type:text"`
	From         string     `json:"from" gorm:"type:text"`
	Subject      string     `json:"subject" gorm:"type:varchar(500)"`
	Body         string     `json:"body,omitempty" gorm:"type:text"`
	Status       Status     `json:"status" gorm:"type:varchar(16);default:sending;index:idx_email_logs_status_created,priority:1"`
	SentAt       *time.Time `json:"sentAt"`
	DeliveredAt  *time.Time `json:"deliveredAt"`
	FailedAt     *time.Time `json:"failedAt"`
	ErrorMessage string     `json:"errorMessage" gorm:"type:text"`
	Metadata     Metadata   `json:"metadata,omitempty" gorm:"serializer:json;type:json"`
	CreatedAt    time.Time  `json:"createdAt" gorm:"index:idx_email_logs_status_created,priority:2"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TableName 指定表名
func (EmailLog) TableName() string {
	return "email_logs"
}

// MarkAsSent 标记为发送成功
//
// 每次状态流转仅保留与当前状态对应的时间戳，其余时间戳清空。
func (e *EmailLog) MarkAsSent(now time.Time) {
	e.Status = StatusSent
	e.SentAt = &now
	e.DeliveredAt = nil
	e.FailedAt = nil
}

// MarkAsDelivered 标记为已送达
func (e *EmailLog) MarkAsDelivered(now time.Time) {
	e.Status = StatusDelivered
	e.DeliveredAt = &now
	e.SentAt = nil
	e.FailedAt = nil
}

// MarkAsFailed 标记为发送失败
func (e *EmailLog) MarkAsFailed(now time.Time, errorMessage string) {
	e.Status = StatusFailed
	e.FailedAt = &now
	e.SentAt = nil
	e.DeliveredAt = nil
	e.ErrorMessage = errorMessage
}

// MarkAsBounced 标记为被退回（退回与失败共用 failed_at 时间戳）
func (e *EmailLog) MarkAsBounced(now time.Time, errorMessage string) {
	e.Status = StatusBounced
	e.FailedAt = &now
	e.SentAt = nil
	e.DeliveredAt = nil
	e.ErrorMessage = errorMessage
}

// ResetForResend 重置为待发送状态（人工重发，视为一次新的发送尝试）
func (e *EmailLog) ResetForResend() {
	e.Status = StatusSending
	e.SentAt = nil
	e.DeliveredAt = nil
	e.FailedAt = nil
	e.ErrorMessage = ""
}

// IsStuck 判断记录是否卡在 sending 状态超过给定时长
func (e *EmailLog) IsStuck(timeout time.Duration, now time.Time) bool {
	return e.Status == StatusSending && e.CreatedAt.Before(now.Add(-timeout))
}

// Recipients 返回 to/cc/bcc 合并后的收件人列表
func (e *EmailLog) Recipients() []string {
	var out []string
	for _, field := range []string{e.To, e.Cc, e.Bcc} {
		for _, addr := range strings.Split(field, ",") {
			if trimmed := strings.TrimSpace(addr); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// StuckErrorMessage 生成超时补救时写入记录的错误说明
func StuckErrorMessage(timeout time.Duration) string {
	minutes := int(timeout.Minutes())
	if minutes <= 0 {
		return fmt.Sprintf("email timed out - stuck in sending status for more than %s", timeout)
	}
	return fmt.Sprintf("email timed out - stuck in sending status for more than %d minutes", minutes)
}
