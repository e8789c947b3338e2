package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"mailwatch/internal/domain"
	"mailwatch/internal/storage"
)

// Store 使用内存保存邮件记录，主要用于开发验证与测试。
type Store struct {
	mu   sync.RWMutex
	logs map[string]*domain.EmailLog // id -> record
}

// NewStore 创建内存存储
func NewStore() *Store {
	return &Store{
		logs: make(map[string]*domain.EmailLog),
	}
}

// Create 插入一条新记录
func (s *Store) Create(log *domain.EmailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	log.UpdatedAt = now

	stored := *log
	s.logs[log.ID] = &stored
	return nil
}

// GetByID 按主键查询
func (s *Store) GetByID(id string) (*domain.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[id]
	if !ok {
		return nil, storage.ErrEmailLogNotFound
	}
	copied := *log
	return &copied, nil
}

// FindByMessageID 按 Message-ID 查询，不限状态
func (s *Store) FindByMessageID(messageID string) (*domain.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var earliest *domain.EmailLog
	for _, log := range s.logs {
		if log.MessageID != messageID {
			continue
		}
		if earliest == nil || log.CreatedAt.Before(earliest.CreatedAt) {
			earliest = log
		}
	}
	if earliest == nil {
		return nil, storage.ErrEmailLogNotFound
	}
	copied := *earliest
	return &copied, nil
}

// FindPendingByMessageID 按 Message-ID 查询仍处于 sending 状态的记录
func (s *Store) FindPendingByMessageID(messageID string) (*domain.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, log := range s.logs {
		if log.MessageID == messageID && log.Status == domain.StatusSending {
			copied := *log
			return &copied, nil
		}
	}
	return nil, storage.ErrEmailLogNotFound
}

// FindLatestPending 启发式回退匹配
func (s *Store) FindLatestPending(to, from, subject string, since time.Time) (*domain.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.EmailLog
	for _, log := range s.logs {
		if log.Status != domain.StatusSending {
			continue
		}
		if log.To != to || log.From != from || log.Subject != subject {
			continue
		}
		if log.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || log.CreatedAt.After(latest.CreatedAt) {
			latest = log
		}
	}
	if latest == nil {
		return nil, storage.ErrEmailLogNotFound
	}
	copied := *latest
	return &copied, nil
}

// Save 持久化整条记录
func (s *Store) Save(log *domain.EmailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.logs[log.ID]
	if !ok {
		return storage.ErrEmailLogNotFound
	}
	log.CreatedAt = existing.CreatedAt
	log.UpdatedAt = time.Now()

	stored := *log
	s.logs[log.ID] = &stored
	return nil
}

// Delete 按主键删除
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[id]; !ok {
		return storage.ErrEmailLogNotFound
	}
	delete(s.logs, id)
	return nil
}

// ListStuck 查询卡在 sending 状态的记录
func (s *Store) ListStuck(cutoff time.Time) ([]domain.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stuck []domain.EmailLog
	for _, log := range s.logs {
		if log.Status == domain.StatusSending && log.CreatedAt.Before(cutoff) {
			stuck = append(stuck, *log)
		}
	}
	return stuck, nil
}

// List 分页查询
func (s *Store) List(filter storage.ListFilter) (*storage.ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var matched []domain.EmailLog
	for _, log := range s.logs {
		if filter.Status != "" && log.Status != filter.Status {
			continue
		}
		if search != "" && !matchesSearch(log, search) {
			continue
		}
		matched = append(matched, *log)
	}

	// 按创建时间倒序
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &storage.ListResult{
		Logs:     matched[start:end],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func matchesSearch(log *domain.EmailLog, search string) bool {
	return strings.Contains(strings.ToLower(log.To), search) ||
		strings.Contains(strings.ToLower(log.From), search) ||
		strings.Contains(strings.ToLower(log.Subject), search)
}

// Recent 返回最近的 limit 条记录
func (s *Store) Recent(limit int) ([]domain.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.EmailLog, 0, len(s.logs))
	for _, log := range s.logs {
		all = append(all, *log)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// CountSince 统计窗口内的记录数
func (s *Store) CountSince(since time.Time, status domain.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, log := range s.logs {
		if log.CreatedAt.Before(since) {
			continue
		}
		if status != "" && log.Status != status {
			continue
		}
		count++
	}
	return count, nil
}

// DailyCountsSince 按日期与状态分组计数
func (s *Store) DailyCountsSince(since time.Time) ([]domain.DailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		date   string
		status domain.Status
	}
	counts := make(map[key]int)
	for _, log := range s.logs {
		if log.CreatedAt.Before(since) {
			continue
		}
		counts[key{log.CreatedAt.Format("2006-01-02"), log.Status}]++
	}

	stats := make([]domain.DailyStat, 0, len(counts))
	for k, count := range counts {
		stats = append(stats, domain.DailyStat{
			Date:   k.date,
			Status: k.status,
			Count:  count,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Date != stats[j].Date {
			return stats[i].Date < stats[j].Date
		}
		return stats[i].Status < stats[j].Status
	})
	return stats, nil
}

// CountOlderThan 统计过期记录数量
func (s *Store) CountOlderThan(cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, log := range s.logs {
		if log.CreatedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

// DeleteOlderThan 删除过期记录，返回删除数量
func (s *Store) DeleteOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, log := range s.logs {
		if log.CreatedAt.Before(cutoff) {
			delete(s.logs, id)
			count++
		}
	}
	return count, nil
}

// Close 关闭存储（内存实现为空操作）
func (s *Store) Close() error {
	return nil
}

// Health 健康检查
func (s *Store) Health() error {
	return nil
}
