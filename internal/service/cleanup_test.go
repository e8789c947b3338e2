package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailwatch/internal/config"
	"mailwatch/internal/domain"
	"mailwatch/internal/storage/memory"
)

func TestCleanupService_Cleanup(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	cfg := &config.Config{
		Cleanup: config.CleanupConfig{RetentionDays: 90},
	}

	seed := func(t *testing.T, store *memory.Store, id string, ageDays int) {
		t.Helper()
		require.NoError(t, store.Create(&domain.EmailLog{
			ID:        id,
			MessageID: "msg-" + id,
			Status:    domain.StatusSent,
			CreatedAt: now.AddDate(0, 0, -ageDays),
		}))
	}

	t.Run("删除保留期之外的记录", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewCleanupService(store, cfg, zap.NewNop())
		svc.now = func() time.Time { return now }
		seed(t, store, "ancient", 100)
		seed(t, store, "recent", 10)

		deleted, err := svc.Cleanup(0, false)
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		_, err = store.GetByID("ancient")
		assert.Error(t, err)
		_, err = store.GetByID("recent")
		assert.NoError(t, err)
	})

	t.Run("dry-run 只统计不删除", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewCleanupService(store, cfg, zap.NewNop())
		svc.now = func() time.Time { return now }
		seed(t, store, "ancient", 100)
		seed(t, store, "recent", 10)

		count, err := svc.Cleanup(0, true)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		_, err = store.GetByID("ancient")
		assert.NoError(t, err, "dry-run 不应删除任何记录")
	})

	t.Run("显式天数覆盖默认保留期", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewCleanupService(store, cfg, zap.NewNop())
		svc.now = func() time.Time { return now }
		seed(t, store, "ancient", 100)
		seed(t, store, "recent", 10)

		deleted, err := svc.Cleanup(7, false)
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)
	})

	t.Run("负数天数报错", func(t *testing.T) {
		svc := NewCleanupService(memory.NewStore(), cfg, zap.NewNop())

		_, err := svc.Cleanup(-1, false)
		assert.ErrorIs(t, err, ErrInvalidRetention)
	})

	t.Run("删除后触发通知与埋点", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewCleanupService(store, cfg, zap.NewNop())
		svc.now = func() time.Time { return now }
		notifier := &recordingNotifier{}
		svc.SetNotifier(notifier)
		seed(t, store, "ancient", 100)

		deleted, err := svc.Cleanup(0, false)
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)
		assert.Equal(t, []int{1}, notifier.cleanups)
	})

	t.Run("无可删除记录时不通知", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewCleanupService(store, cfg, zap.NewNop())
		svc.now = func() time.Time { return now }
		notifier := &recordingNotifier{}
		svc.SetNotifier(notifier)
		seed(t, store, "recent", 10)

		deleted, err := svc.Cleanup(0, false)
		require.NoError(t, err)
		assert.Equal(t, 0, deleted)
		assert.Empty(t, notifier.cleanups)
	})
}
