package sql

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mailwatch/internal/domain"
	"mailwatch/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *gorm.DB
	driverName string // "mysql" or "postgres"
}

// Options 连接池配置
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore 创建 SQL 数据库存储
func NewStore(driverName, dsn string, opts Options) (*Store, error) {
	var dialector gorm.Dialector
	switch driverName {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	store := &Store{db: db, driverName: driverName}

	// 自动迁移表结构
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&domain.EmailLog{}); err != nil {
		return err
	}
	return s.createAddressIndexes()
}

// createAddressIndexes 按方言补建 to/from 索引
//
// 两列都是 text：MySQL 的索引必须带前缀长度，PostgreSQL 不接受
// 前缀语法，只能在这里按方言各写一份 DDL。
func (s *Store) createAddressIndexes() error {
	var stmts map[string]string
	switch s.driverName {
	case "mysql":
		stmts = map[string]string{
			"idx_email_logs_to":   "CREATE INDEX idx_email_logs_to ON email_logs (`to`(255))",
			"idx_email_logs_from": "CREATE INDEX idx_email_logs_from ON email_logs (`from`(255))",
		}
	case "postgres":
		stmts = map[string]string{
			"idx_email_logs_to":   `CREATE INDEX idx_email_logs_to ON email_logs ("to")`,
			"idx_email_logs_from": `CREATE INDEX idx_email_logs_from ON email_logs ("from")`,
		}
	}

	for name, stmt := range stmts {
		if s.db.Migrator().HasIndex(&domain.EmailLog{}, name) {
			continue
		}
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}
	return nil
}

// Create 插入一条新记录
func (s *Store) Create(log *domain.EmailLog) error {
	return s.db.Create(log).Error
}

// GetByID 按主键查询
func (s *Store) GetByID(id string) (*domain.EmailLog, error) {
	var log domain.EmailLog
	err := s.db.Where("id = ?", id).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrEmailLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

// FindByMessageID 按 Message-ID 查询，不限状态
func (s *Store) FindByMessageID(messageID string) (*domain.EmailLog, error) {
	var log domain.EmailLog
	err := s.db.
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrEmailLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

// FindPendingByMessageID 按 Message-ID 查询仍处于 sending 状态的记录
func (s *Store) FindPendingByMessageID(messageID string) (*domain.EmailLog, error) {
	var log domain.EmailLog
	err := s.db.
		Where("message_id = ? AND status = ?", messageID, domain.StatusSending).
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrEmailLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

// FindLatestPending 启发式回退匹配：to/from/subject 相等、状态 sending、
// 创建时间在 since 之后的最新一条记录
func (s *Store) FindLatestPending(to, from, subject string, since time.Time) (*domain.EmailLog, error) {
	var log domain.EmailLog
	err := s.db.
		Where(fmt.Sprintf("%s = ? AND %s = ? AND subject = ?", s.quote("to"), s.quote("from")), to, from, subject).
		Where("status = ? AND created_at >= ?", domain.StatusSending, since).
		Order("created_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrEmailLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

// Save 持久化整条记录
func (s *Store) Save(log *domain.EmailLog) error {
	return s.db.Save(log).Error
}

// Delete 按主键删除
func (s *Store) Delete(id string) error {
	result := s.db.Where("id = ?", id).Delete(&domain.EmailLog{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrEmailLogNotFound
	}
	return nil
}

// ListStuck 查询卡在 sending 状态的记录
func (s *Store) ListStuck(cutoff time.Time) ([]domain.EmailLog, error) {
	var logs []domain.EmailLog
	err := s.db.
		Where("status = ? AND created_at < ?", domain.StatusSending, cutoff).
		Find(&logs).Error
	return logs, err
}

// List 分页查询
func (s *Store) List(filter storage.ListFilter) (*storage.ListResult, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	query := s.db.Model(&domain.EmailLog{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where(
			fmt.Sprintf("%s LIKE ? OR %s LIKE ? OR subject LIKE ?", s.quote("to"), s.quote("from")),
			pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var logs []domain.EmailLog
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}

	return &storage.ListResult{
		Logs:     logs,
		Total:    int(total),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Recent 返回最近的 limit 条记录
func (s *Store) Recent(limit int) ([]domain.EmailLog, error) {
	var logs []domain.EmailLog
	err := s.db.Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// CountSince 统计窗口内的记录数
func (s *Store) CountSince(since time.Time, status domain.Status) (int, error) {
	query := s.db.Model(&domain.EmailLog{}).Where("created_at >= ?", since)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// quote 根据数据库类型为保留字列名加引号（to/from 在两种方言下均为保留字）
func (s *Store) quote(column string) string {
	if s.driverName == "mysql" {
		return "`" + column + "`"
	}
	return `"` + column + `"`
}

// dateExpr 根据数据库类型返回日期格式化表达式
func (s *Store) dateExpr() string {
	if s.driverName == "mysql" {
		return "DATE_FORMAT(created_at, '%Y-%m-%d')"
	}
	return "to_char(created_at, 'YYYY-MM-DD')"
}

// DailyCountsSince 按日期与状态分组计数
func (s *Store) DailyCountsSince(since time.Time) ([]domain.DailyStat, error) {
	var stats []domain.DailyStat
	err := s.db.Model(&domain.EmailLog{}).
		Select(s.dateExpr()+" as date, status, COUNT(*) as count").
		Where("created_at >= ?", since).
		Group("date, status").
		Order("date, status").
		Scan(&stats).Error
	return stats, err
}

// CountOlderThan 统计过期记录数量
func (s *Store) CountOlderThan(cutoff time.Time) (int, error) {
	var count int64
	err := s.db.Model(&domain.EmailLog{}).
		Where("created_at < ?", cutoff).
		Count(&count).Error
	return int(count), err
}

// DeleteOlderThan 删除过期记录，返回删除数量
func (s *Store) DeleteOlderThan(cutoff time.Time) (int, error) {
	result := s.db.Where("created_at < ?", cutoff).Delete(&domain.EmailLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
