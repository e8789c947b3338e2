package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailwatch/internal/config"
	"mailwatch/internal/domain"
	"mailwatch/internal/storage"
)

// StuckMetrics 卡死检测指标埋点接口。
type StuckMetrics interface {
	RecordStuckRemediated(count int)
}

// StuckService 卡死邮件检测服务
//
// 将停留在 sending 状态超过阈值的记录判定为失败。
// 发送进程崩溃或完成事件丢失时，记录会永远停留在 sending，
// 该服务是唯一的兜底修复路径。
type StuckService struct {
	repo        storage.EmailLogRepository
	cfg         *config.Config
	logger      *zap.Logger
	broadcaster LogBroadcaster
	metrics     StuckMetrics
	now         func() time.Time
}

// NewStuckService 创建卡死邮件检测服务
func NewStuckService(repo storage.EmailLogRepository, cfg *config.Config, logger *zap.Logger) *StuckService {
	return &StuckService{
		repo:   repo,
		cfg:    cfg,
		logger: logger.Named("stuck"),
		now:    time.Now,
	}
}

// SetBroadcaster 注入实时推送通道
func (s *StuckService) SetBroadcaster(b LogBroadcaster) {
	s.broadcaster = b
}

// SetMetrics 注入指标埋点
func (s *StuckService) SetMetrics(m StuckMetrics) {
	s.metrics = m
}

// Sweep 扫描并修复卡死记录，返回修复数量
//
// 仅修改扫描时仍处于 sending 状态的记录；重复执行是幂等的，
// 第二次扫描不会再命中已被标记为 failed 的记录。
func (s *StuckService) Sweep(timeout time.Duration) (int, error) {
	cutoff := s.now().Add(-timeout)
	stuck, err := s.repo.ListStuck(cutoff)
	if err != nil {
		return 0, err
	}

	fixed := 0
	reason := domain.StuckErrorMessage(timeout)
	for i := range stuck {
		log := &stuck[i]
		if log.Status != domain.StatusSending {
			continue
		}
		log.MarkAsFailed(s.now(), reason)
		if err := s.repo.Save(log); err != nil {
			s.logger.Error("修复卡死记录失败",
				zap.String("id", log.ID),
				zap.Error(err),
			)
			continue
		}
		fixed++
		s.logger.Warn("卡死记录已标记为失败",
			zap.String("id", log.ID),
			zap.String("message_id", log.MessageID),
			zap.Time("created_at", log.CreatedAt),
		)
		if s.broadcaster != nil {
			s.broadcaster.BroadcastLogEvent("email.failed", log)
		}
	}

	if fixed > 0 && s.metrics != nil {
		s.metrics.RecordStuckRemediated(fixed)
	}
	return fixed, nil
}

// Run 周期性执行卡死扫描，直到 ctx 被取消
func (s *StuckService) Run(ctx context.Context) error {
	if !s.cfg.Monitor.SweepEnabled {
		s.logger.Info("卡死扫描未启用")
		<-ctx.Done()
		return nil
	}

	interval := s.cfg.Monitor.SweepInterval
	s.logger.Info("卡死扫描已启动",
		zap.Duration("interval", interval),
		zap.Duration("timeout", s.cfg.Monitor.StuckTimeout),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("卡死扫描已停止")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(s.cfg.Monitor.StuckTimeout); err != nil {
				s.logger.Error("卡死扫描执行失败", zap.Error(err))
			}
		}
	}
}
