package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailwatch/internal/config"
	"mailwatch/internal/domain"
	"mailwatch/internal/storage"
)

// MailEventSink 接收发送路径事件的接口
//
// 由邮件发送子系统的适配层同步调用；实现不保证成功，
// 调用方不应依赖其返回值决定是否继续发送。
type MailEventSink interface {
	HandleSending(msg domain.OutgoingMessage, reqCtx domain.RequestContext) error
	HandleSent(msg domain.OutgoingMessage) error
	HandleFailed(msg domain.OutgoingMessage, transportErr string) error
}

// LogBroadcaster 向实时通道推送记录变更的接口（WebSocket Hub 实现）。
type LogBroadcaster interface {
	BroadcastLogEvent(event string, log *domain.EmailLog)
}

// MonitorMetrics 生命周期指标埋点接口（monitoring.Metrics 实现）。
type MonitorMetrics interface {
	RecordTracked()
	RecordTransition(status domain.Status)
	RecordFallbackMatch()
	RecordDroppedEvent()
}

// MonitorService 邮件生命周期追踪服务
//
// 将发送路径事件（sending/sent/failed）转化为存储层变更，
// 包含基于 Message-ID 的精确匹配与基于 to/from/subject 的回退匹配。
type MonitorService struct {
	repo        storage.EmailLogRepository
	cfg         *config.Config
	logger      *zap.Logger
	broadcaster LogBroadcaster
	metrics     MonitorMetrics
	notifier    StatusNotifier
	now         func() time.Time
}

// NewMonitorService 创建生命周期追踪服务
func NewMonitorService(repo storage.EmailLogRepository, cfg *config.Config, logger *zap.Logger) *MonitorService {
	return &MonitorService{
		repo:   repo,
		cfg:    cfg,
		logger: logger.Named("monitor"),
		now:    time.Now,
	}
}

// SetBroadcaster 设置实时推送通道（可选）
func (s *MonitorService) SetBroadcaster(b LogBroadcaster) {
	s.broadcaster = b
}

// SetMetrics 设置指标埋点（可选）
func (s *MonitorService) SetMetrics(m MonitorMetrics) {
	s.metrics = m
}

// SetNotifier 设置失败通知（可选）
func (s *MonitorService) SetNotifier(n StatusNotifier) {
	s.notifier = n
}

// HandleSending 在发送开始时创建一条新记录
//
// 每次发送尝试都会创建独立记录：协议层未提供 Message-ID 时
// 生成随机标识，保证记录可独立追踪。
func (s *MonitorService) HandleSending(msg domain.OutgoingMessage, reqCtx domain.RequestContext) error {
	if !s.cfg.Monitor.Enabled {
		return nil
	}

	messageID := msg.MessageID
	if messageID == "" {
		messageID = uuid.New().String()
	}

	log := &domain.EmailLog{
		ID:        uuid.New().String(),
		MessageID: messageID,
		To:        domain.JoinAddresses(msg.To),
		Cc:        domain.JoinAddresses(msg.Cc),
		Bcc:       domain.JoinAddresses(msg.Bcc),
		From:      domain.JoinAddresses(msg.From),
		Subject:   msg.Subject,
		Status:    domain.StatusSending,
	}

	if s.cfg.Monitor.LogBody {
		log.Body = msg.Body
	}
	if s.cfg.Monitor.LogMetadata {
		log.Metadata = domain.Metadata{
			"user_id":    reqCtx.UserID,
			"ip_address": reqCtx.IPAddress,
			"user_agent": reqCtx.UserAgent,
			"timestamp":  s.now().Format(time.RFC3339),
		}
	}

	if err := s.repo.Create(log); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordTracked()
	}
	s.broadcast("email.sending", log)
	return nil
}

// HandleSent 将发送成功事件关联到对应记录
func (s *MonitorService) HandleSent(msg domain.OutgoingMessage) error {
	if !s.cfg.Monitor.Enabled {
		return nil
	}

	log, err := s.resolve(msg)
	if err != nil {
		return err
	}
	if log == nil {
		// 无可关联的记录：接受的缺口，静默丢弃
		if s.metrics != nil {
			s.metrics.RecordDroppedEvent()
		}
		s.logger.Debug("sent event dropped, no matching record",
			zap.String("message_id", msg.MessageID),
			zap.String("subject", msg.Subject),
		)
		return nil
	}

	log.MarkAsSent(s.now())
	if err := s.repo.Save(log); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(domain.StatusSent)
	}
	s.broadcast("email.sent", log)
	return nil
}

// HandleFailed 将发送失败事件关联到对应记录
func (s *MonitorService) HandleFailed(msg domain.OutgoingMessage, transportErr string) error {
	if !s.cfg.Monitor.Enabled {
		return nil
	}

	log, err := s.resolve(msg)
	if err != nil {
		return err
	}
	if log == nil {
		if s.metrics != nil {
			s.metrics.RecordDroppedEvent()
		}
		s.logger.Debug("failed event dropped, no matching record",
			zap.String("message_id", msg.MessageID),
			zap.String("subject", msg.Subject),
		)
		return nil
	}

	log.MarkAsFailed(s.now(), NormalizeTransportError(transportErr))
	if err := s.repo.Save(log); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(domain.StatusFailed)
	}
	s.broadcast("email.failed", log)
	if s.notifier != nil {
		s.notifier.NotifyStatusChange(log)
	}
	return nil
}

// resolve 定位完成事件对应的记录
//
// 先按 Message-ID 精确匹配；未提供或未命中时在回退窗口内
// 按 to/from/subject 匹配最新的 sending 记录。两路都未命中
// 返回 (nil, nil)，表示事件无处可归。
//
// 注意：先读后写，相同 to/from/subject 的并发重复发送可能把
// 完成事件挂到兄弟记录上。Message-ID 是常规场景的主关联键，
// 此处不以加锁换取窄窗口内的一致性。
func (s *MonitorService) resolve(msg domain.OutgoingMessage) (*domain.EmailLog, error) {
	if msg.MessageID != "" {
		log, err := s.repo.FindPendingByMessageID(msg.MessageID)
		if err == nil {
			return log, nil
		}
		if err != storage.ErrEmailLogNotFound {
			return nil, err
		}
	}

	to := domain.JoinAddresses(msg.To)
	from := domain.JoinAddresses(msg.From)
	if to == "" || from == "" || msg.Subject == "" {
		return nil, nil
	}

	since := s.now().Add(-s.cfg.Monitor.RecencyWindow)
	log, err := s.repo.FindLatestPending(to, from, msg.Subject, since)
	if err != nil {
		if err == storage.ErrEmailLogNotFound {
			return nil, nil
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordFallbackMatch()
	}
	return log, nil
}

func (s *MonitorService) broadcast(event string, log *domain.EmailLog) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastLogEvent(event, log)
	}
}

// NormalizeTransportError 将已知的底层传输错误归一化为稳定的可读描述
//
// 未识别的错误原样透传。
func NormalizeTransportError(raw string) string {
	if raw == "" {
		return "Unknown error occurred"
	}

	switch {
	case strings.Contains(raw, "Authentication failed"),
		strings.Contains(raw, "authentication failed"):
		return "SMTP Authentication failed - check your email credentials"
	case strings.Contains(raw, "Connection could not be established"),
		strings.Contains(raw, "connection refused"):
		return "SMTP Connection failed - check your SMTP settings"
	case strings.Contains(raw, "SSL"), strings.Contains(raw, "TLS"):
		return "SSL/TLS connection error - check your encryption settings"
	}

	return raw
}

// SilentSink 包装 MailEventSink，吞掉并记录所有错误
//
// 追踪失败绝不能中断实际的邮件发送，发送路径适配层应持有
// SilentSink 而非裸的 MonitorService。
type SilentSink struct {
	inner  MailEventSink
	logger *zap.Logger
}

// NewSilentSink 创建吞错包装
func NewSilentSink(inner MailEventSink, logger *zap.Logger) *SilentSink {
	return &SilentSink{
		inner:  inner,
		logger: logger.Named("monitor.sink"),
	}
}

// HandleSending 记录发送开始事件，错误只记日志
func (s *SilentSink) HandleSending(msg domain.OutgoingMessage, reqCtx domain.RequestContext) error {
	if err := s.inner.HandleSending(msg, reqCtx); err != nil {
		s.logger.Error("failed to track sending event", zap.Error(err))
	}
	return nil
}

// HandleSent 记录发送成功事件，错误只记日志
func (s *SilentSink) HandleSent(msg domain.OutgoingMessage) error {
	if err := s.inner.HandleSent(msg); err != nil {
		s.logger.Error("failed to track sent event", zap.Error(err))
	}
	return nil
}

// HandleFailed 记录发送失败事件，错误只记日志
func (s *SilentSink) HandleFailed(msg domain.OutgoingMessage, transportErr string) error {
	if err := s.inner.HandleFailed(msg, transportErr); err != nil {
		s.logger.Error("failed to track failed event", zap.Error(err))
	}
	return nil
}
