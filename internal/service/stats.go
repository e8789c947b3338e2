package service

import (
	"time"

	"go.uber.org/zap"

	"mailwatch/internal/config"
	"mailwatch/internal/domain"
	"mailwatch/internal/storage"
)

// StatsService 统计聚合服务
//
// 四项计数统一限定在窗口内：状态计数与总数使用同一个创建时间下限。
type StatsService struct {
	repo   storage.EmailLogRepository
	cache  storage.StatsCache
	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time
}

// NewStatsService 创建统计聚合服务，cache 可为 nil
func NewStatsService(repo storage.EmailLogRepository, cache storage.StatsCache, cfg *config.Config, logger *zap.Logger) *StatsService {
	return &StatsService{
		repo:   repo,
		cache:  cache,
		cfg:    cfg,
		logger: logger.Named("stats"),
		now:    time.Now,
	}
}

// Statistics 计算最近 windowDays 天内的发送统计
func (s *StatsService) Statistics(windowDays int) (*domain.Statistics, error) {
	if windowDays <= 0 {
		windowDays = 30
	}

	if s.cache != nil {
		if cached, err := s.cache.GetStatistics(windowDays); err == nil {
			return cached, nil
		}
	}

	since := s.now().AddDate(0, 0, -windowDays)

	total, err := s.repo.CountSince(since, "")
	if err != nil {
		return nil, err
	}
	sent, err := s.repo.CountSince(since, domain.StatusSent)
	if err != nil {
		return nil, err
	}
	failed, err := s.repo.CountSince(since, domain.StatusFailed)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.CountSince(since, domain.StatusSending)
	if err != nil {
		return nil, err
	}
	daily, err := s.repo.DailyCountsSince(since)
	if err != nil {
		return nil, err
	}

	stats := &domain.Statistics{
		TotalEmails:   total,
		SentEmails:    sent,
		FailedEmails:  failed,
		PendingEmails: pending,
		DailyStats:    daily,
	}

	if s.cache != nil {
		if err := s.cache.SetStatistics(windowDays, stats, s.cfg.Redis.StatsTTL); err != nil {
			s.logger.Warn("统计缓存写入失败", zap.Error(err))
		}
	}
	return stats, nil
}
