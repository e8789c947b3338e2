package storage

import (
	"errors"
	"time"

	"mailwatch/internal/domain"
)

var (
	// ErrEmailLogNotFound 邮件记录未找到错误
	ErrEmailLogNotFound = errors.New("email log not found")
)

// ListFilter 列表查询条件
type ListFilter struct {
	Status   domain.Status // 为空表示不过滤状态
	Search   string        // 对 to/from/subject 的子串匹配，允许线性扫描
	Page     int           // 从 1 开始
	PageSize int
}

// ListResult 分页查询结果
type ListResult struct {
	Logs     []domain.EmailLog `json:"logs"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
}

// EmailLogRepository 定义邮件生命周期记录的存取操作。
type EmailLogRepository interface {
	// Create 插入一条新记录
	Create(log *domain.EmailLog) error

	// GetByID 按主键查询
	GetByID(id string) (*domain.EmailLog, error)

	// FindByMessageID 按协议层 Message-ID 查询（不限状态，命中最早创建的一条）
	FindByMessageID(messageID string) (*domain.EmailLog, error)

	// FindPendingByMessageID 按协议层 Message-ID 查询仍处于 sending 状态的记录
	FindPendingByMessageID(messageID string) (*domain.EmailLog, error)

	// FindLatestPending 启发式回退匹配：to/from/subject 精确相等、
	// 状态为 sending、创建时间不早于 since 的最新一条记录
	FindLatestPending(to, from, subject string, since time.Time) (*domain.EmailLog, error)

	// Save 持久化整条记录的当前字段
	Save(log *domain.EmailLog) error

	// Delete 按主键删除，记录不存在时返回 ErrEmailLogNotFound
	Delete(id string) error

	// ListStuck 查询创建时间早于 cutoff 且仍处于 sending 状态的全部记录
	ListStuck(cutoff time.Time) ([]domain.EmailLog, error)

	// List 分页查询，支持状态过滤与 to/from/subject 子串搜索
	List(filter ListFilter) (*ListResult, error)

	// Recent 按创建时间倒序返回最近的 limit 条记录
	Recent(limit int) ([]domain.EmailLog, error)

	// CountSince 统计创建时间不早于 since 的记录数，status 非空时附加状态过滤
	CountSince(since time.Time, status domain.Status) (int, error)

	// DailyCountsSince 按日历日期与状态分组计数，仅返回出现过的组合
	DailyCountsSince(since time.Time) ([]domain.DailyStat, error)

	// CountOlderThan 统计创建时间早于 cutoff 的记录数
	CountOlderThan(cutoff time.Time) (int, error)

	// DeleteOlderThan 删除创建时间早于 cutoff 的记录，返回删除数量
	DeleteOlderThan(cutoff time.Time) (int, error)
}

// StatsCache 统计结果缓存接口（Redis 实现，可选）。
type StatsCache interface {
	GetStatistics(windowDays int) (*domain.Statistics, error)
	SetStatistics(windowDays int, stats *domain.Statistics, ttl time.Duration) error
}

// Store 定义完整的存储接口。
type Store interface {
	EmailLogRepository

	Close() error
	Health() error
}
