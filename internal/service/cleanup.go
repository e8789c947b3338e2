package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mailwatch/internal/config"
	"mailwatch/internal/storage"
)

// ErrInvalidRetention 保留天数非法错误
var ErrInvalidRetention = errors.New("retention days must be positive")

// CleanupNotifier 清理完成通知接口
type CleanupNotifier interface {
	NotifyCleanup(deleted int, retentionDays int)
}

// CleanupMetrics 清理指标埋点接口
type CleanupMetrics interface {
	RecordCleanup(deleted int)
}

// CleanupService 过期记录清理服务
//
// 按保留天数删除创建时间过早的记录；dry-run 模式只统计不删除。
type CleanupService struct {
	repo     storage.EmailLogRepository
	cfg      *config.Config
	logger   *zap.Logger
	notifier CleanupNotifier
	metrics  CleanupMetrics
	now      func() time.Time
}

// NewCleanupService 创建清理服务
func NewCleanupService(repo storage.EmailLogRepository, cfg *config.Config, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		repo:   repo,
		cfg:    cfg,
		logger: logger.Named("cleanup"),
		now:    time.Now,
	}
}

// SetNotifier 注入清理通知
func (s *CleanupService) SetNotifier(n CleanupNotifier) {
	s.notifier = n
}

// SetMetrics 注入指标埋点
func (s *CleanupService) SetMetrics(m CleanupMetrics) {
	s.metrics = m
}

// Cleanup 删除保留期之外的记录，返回删除（或 dry-run 下将被删除）的数量
//
// days 为 0 时使用配置的默认保留天数。
func (s *CleanupService) Cleanup(days int, dryRun bool) (int, error) {
	if days == 0 {
		days = s.cfg.Cleanup.RetentionDays
	}
	if days < 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := s.now().AddDate(0, 0, -days)

	if dryRun {
		count, err := s.repo.CountOlderThan(cutoff)
		if err != nil {
			return 0, err
		}
		s.logger.Info("清理预演完成",
			zap.Int("retention_days", days),
			zap.Int("would_delete", count),
		)
		return count, nil
	}

	deleted, err := s.repo.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("过期记录清理完成",
		zap.Int("retention_days", days),
		zap.Int("deleted", deleted),
	)
	if s.metrics != nil {
		s.metrics.RecordCleanup(deleted)
	}
	if s.notifier != nil && deleted > 0 {
		s.notifier.NotifyCleanup(deleted, days)
	}
	return deleted, nil
}

// Run 周期性执行清理，直到 ctx 被取消
func (s *CleanupService) Run(ctx context.Context) error {
	if !s.cfg.Cleanup.Enabled {
		s.logger.Info("定期清理未启用")
		<-ctx.Done()
		return nil
	}

	s.logger.Info("定期清理已启动",
		zap.Duration("interval", s.cfg.Cleanup.Interval),
		zap.Int("retention_days", s.cfg.Cleanup.RetentionDays),
	)

	ticker := time.NewTicker(s.cfg.Cleanup.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("定期清理已停止")
			return nil
		case <-ticker.C:
			if _, err := s.Cleanup(0, false); err != nil {
				s.logger.Error("定期清理执行失败", zap.Error(err))
			}
		}
	}
}
