package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailwatch/internal/domain"
	"mailwatch/internal/storage"
)

var (
	// ErrMissingFields message_id 或 status 缺失
	ErrMissingFields = errors.New("missing required fields: message_id and status")
	// ErrUnknownStatus 无法识别的状态值
	ErrUnknownStatus = errors.New("unknown status")
	// ErrTerminalStatus 记录已处于终态，不再接受流转
	ErrTerminalStatus = errors.New("email log already in terminal status")
)

// StatusNotifier 状态通知接口（notify.Notifier 实现）。
type StatusNotifier interface {
	NotifyStatusChange(log *domain.EmailLog)
}

// WebhookMetrics 回调指标埋点接口。
type WebhookMetrics interface {
	RecordWebhookEvent(status string)
}

// WebhookService 处理投递服务商的状态回调
//
// 回调被视为权威信号：只按 Message-ID 精确匹配，不做回退匹配。
type WebhookService struct {
	repo        storage.EmailLogRepository
	logger      *zap.Logger
	broadcaster LogBroadcaster
	notifier    StatusNotifier
	metrics     WebhookMetrics
	now         func() time.Time
}

// NewWebhookService 创建回调处理服务
func NewWebhookService(repo storage.EmailLogRepository, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		repo:   repo,
		logger: logger.Named("webhook"),
		now:    time.Now,
	}
}

// SetBroadcaster 设置实时推送通道（可选）
func (s *WebhookService) SetBroadcaster(b LogBroadcaster) {
	s.broadcaster = b
}

// SetNotifier 设置失败/退回通知（可选）
func (s *WebhookService) SetNotifier(n StatusNotifier) {
	s.notifier = n
}

// SetMetrics 设置指标埋点（可选）
func (s *WebhookService) SetMetrics(m WebhookMetrics) {
	s.metrics = m
}

// ProcessStatusUpdate 应用一次状态更新
//
// 校验失败返回 ErrMissingFields / ErrUnknownStatus；
// Message-ID 未命中返回 storage.ErrEmailLogNotFound。
func (s *WebhookService) ProcessStatusUpdate(update domain.StatusUpdate) error {
	if update.MessageID == "" || update.Status == "" {
		return ErrMissingFields
	}

	target := domain.Status(update.Status)
	switch target {
	case domain.StatusDelivered, domain.StatusBounced, domain.StatusFailed:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStatus, update.Status)
	}

	// 回调被视为权威信号：按 Message-ID 精确匹配，不限状态，无回退匹配
	log, err := s.repo.FindByMessageID(update.MessageID)
	if err != nil {
		return err
	}

	if !log.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalStatus, log.Status, target)
	}

	now := s.now()
	switch target {
	case domain.StatusDelivered:
		log.MarkAsDelivered(now)
	case domain.StatusBounced:
		log.MarkAsBounced(now, update.Reason)
	case domain.StatusFailed:
		log.MarkAsFailed(now, update.Reason)
	}

	if err := s.repo.Save(log); err != nil {
		return err
	}

	s.logger.Info("status update applied",
		zap.String("message_id", update.MessageID),
		zap.String("status", update.Status),
	)

	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(update.Status)
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastLogEvent("email."+update.Status, log)
	}
	if s.notifier != nil && (target == domain.StatusFailed || target == domain.StatusBounced) {
		s.notifier.NotifyStatusChange(log)
	}
	return nil
}
