package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailwatch/internal/config"
	"mailwatch/internal/domain"
	"mailwatch/internal/storage"
	"mailwatch/internal/storage/memory"
)

func TestStatsService_Statistics(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	cfg := &config.Config{}

	seed := func(t *testing.T, store *memory.Store, id string, status domain.Status, age time.Duration) {
		t.Helper()
		require.NoError(t, store.Create(&domain.EmailLog{
			ID:        id,
			MessageID: "msg-" + id,
			Status:    status,
			CreatedAt: now.Add(-age),
		}))
	}

	t.Run("四项计数统一按窗口过滤", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewStatsService(store, nil, cfg, zap.NewNop())
		svc.now = func() time.Time { return now }

		for i := 0; i < 7; i++ {
			seed(t, store, "sent-"+string(rune('0'+i)), domain.StatusSent, time.Duration(i)*time.Hour)
		}
		seed(t, store, "failed-1", domain.StatusFailed, time.Hour)
		seed(t, store, "failed-2", domain.StatusFailed, 2*time.Hour)
		seed(t, store, "pending-1", domain.StatusSending, time.Minute)
		// 窗口外的历史记录不计入任何一项
		seed(t, store, "ancient", domain.StatusSent, 40*24*time.Hour)

		stats, err := svc.Statistics(30)
		require.NoError(t, err)

		assert.Equal(t, 10, stats.TotalEmails)
		assert.Equal(t, 7, stats.SentEmails)
		assert.Equal(t, 2, stats.FailedEmails)
		assert.Equal(t, 1, stats.PendingEmails)
		assert.NotEmpty(t, stats.DailyStats)
	})

	t.Run("窗口天数非法时使用默认值", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewStatsService(store, nil, cfg, zap.NewNop())
		svc.now = func() time.Time { return now }

		seed(t, store, "recent", domain.StatusSent, time.Hour)
		seed(t, store, "old", domain.StatusSent, 31*24*time.Hour)

		stats, err := svc.Statistics(0)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalEmails)
	})

	t.Run("更窄的窗口排除更多记录", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewStatsService(store, nil, cfg, zap.NewNop())
		svc.now = func() time.Time { return now }

		seed(t, store, "today", domain.StatusSent, time.Hour)
		seed(t, store, "last-week", domain.StatusSent, 6*24*time.Hour)

		stats, err := svc.Statistics(1)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalEmails)

		stats, err = svc.Statistics(7)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalEmails)
	})
}

// fakeStatsCache 内存版统计缓存
type fakeStatsCache struct {
	stats map[int]*domain.Statistics
	sets  int
}

func newFakeStatsCache() *fakeStatsCache {
	return &fakeStatsCache{stats: make(map[int]*domain.Statistics)}
}

func (c *fakeStatsCache) GetStatistics(windowDays int) (*domain.Statistics, error) {
	if s, ok := c.stats[windowDays]; ok {
		return s, nil
	}
	return nil, storage.ErrEmailLogNotFound
}

func (c *fakeStatsCache) SetStatistics(windowDays int, stats *domain.Statistics, ttl time.Duration) error {
	c.stats[windowDays] = stats
	c.sets++
	return nil
}

func TestStatsService_Cache(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	cache := newFakeStatsCache()
	svc := NewStatsService(store, cache, &config.Config{}, zap.NewNop())
	svc.now = func() time.Time { return now }

	require.NoError(t, store.Create(&domain.EmailLog{
		ID: "id-1", MessageID: "msg-1", Status: domain.StatusSent, CreatedAt: now,
	}))

	first, err := svc.Statistics(30)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalEmails)
	assert.Equal(t, 1, cache.sets)

	// 第二次查询命中缓存，看不到新写入的记录
	require.NoError(t, store.Create(&domain.EmailLog{
		ID: "id-2", MessageID: "msg-2", Status: domain.StatusSent, CreatedAt: now,
	}))

	second, err := svc.Statistics(30)
	require.NoError(t, err)
	assert.Equal(t, 1, second.TotalEmails)
	assert.Equal(t, 1, cache.sets)
}
