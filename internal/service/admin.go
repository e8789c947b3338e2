package service

import (
	"errors"

	"mailwatch/internal/domain"
)

var (
	// ErrNotResendable 仅 failed 状态的记录可以重发
	ErrNotResendable = errors.New("only failed emails can be resent")

	// ErrNotPending 仅 sending 状态的记录可以人工标记为已发送
	ErrNotPending = errors.New("only pending emails can be marked as sent")
)

// Resend 将一条失败记录重置回 sending 状态
//
// 重置只改记录状态，真正的重发由外部发送子系统完成；
// 前置条件不满足时返回 ErrNotResendable，这是用户可见的
// 业务错误而非服务端故障。
func (s *MonitorService) Resend(id string) (*domain.EmailLog, error) {
	log, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if log.Status != domain.StatusFailed {
		return nil, ErrNotResendable
	}

	log.ResetForResend()
	if err := s.repo.Save(log); err != nil {
		return nil, err
	}

	s.broadcast("email.sending", log)
	return log, nil
}

// MarkSent 人工将一条 sending 记录标记为已发送
func (s *MonitorService) MarkSent(id string) (*domain.EmailLog, error) {
	log, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if log.Status != domain.StatusSending {
		return nil, ErrNotPending
	}

	log.MarkAsSent(s.now())
	if err := s.repo.Save(log); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(domain.StatusSent)
	}
	s.broadcast("email.sent", log)
	return log, nil
}

// Delete 删除一条记录，不存在时返回 storage.ErrEmailLogNotFound
func (s *MonitorService) Delete(id string) error {
	return s.repo.Delete(id)
}
