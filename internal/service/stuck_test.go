package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailwatch/internal/domain"
	"mailwatch/internal/storage/memory"
)

func TestStuckService_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, store *memory.Store, id string, status domain.Status, age time.Duration) {
		t.Helper()
		require.NoError(t, store.Create(&domain.EmailLog{
			ID:        id,
			MessageID: "msg-" + id,
			Status:    status,
			CreatedAt: now.Add(-age),
		}))
	}

	t.Run("未超时的记录不处理", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewStuckService(store, monitorConfig(), zap.NewNop())
		svc.now = func() time.Time { return now }
		seed(t, store, "fresh", domain.StatusSending, time.Minute)

		fixed, err := svc.Sweep(2 * time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 0, fixed)

		log, err := store.GetByID("fresh")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSending, log.Status)
	})

	t.Run("超时记录标记为失败", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewStuckService(store, monitorConfig(), zap.NewNop())
		svc.now = func() time.Time { return now }
		broadcaster := &recordingBroadcaster{}
		svc.SetBroadcaster(broadcaster)
		seed(t, store, "stuck", domain.StatusSending, 3*time.Minute)
		seed(t, store, "done", domain.StatusSent, 3*time.Minute)

		fixed, err := svc.Sweep(2 * time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, fixed)

		log, err := store.GetByID("stuck")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, log.Status)
		assert.Contains(t, log.ErrorMessage, "2 minutes")
		assert.NotNil(t, log.FailedAt)

		// 已完成的记录不受影响
		done, err := store.GetByID("done")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSent, done.Status)

		assert.Equal(t, []string{"email.failed"}, broadcaster.events)
	})

	t.Run("重复扫描是幂等的", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewStuckService(store, monitorConfig(), zap.NewNop())
		svc.now = func() time.Time { return now }
		seed(t, store, "stuck", domain.StatusSending, 3*time.Minute)

		fixed, err := svc.Sweep(2 * time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, fixed)

		fixed, err = svc.Sweep(2 * time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 0, fixed)
	})
}
