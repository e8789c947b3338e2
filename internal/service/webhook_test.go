package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailwatch/internal/domain"
	"mailwatch/internal/storage"
	"mailwatch/internal/storage/memory"
)

func seedWebhookLog(t *testing.T, store *memory.Store, status domain.Status) *domain.EmailLog {
	t.Helper()
	log := &domain.EmailLog{
		ID:        "id-1",
		MessageID: "msg-1",
		To:        "user@example.com",
		From:      "noreply@example.com",
		Subject:   "Welcome",
		Status:    status,
	}
	require.NoError(t, store.Create(log))
	return log
}

func TestWebhookService_ProcessStatusUpdate(t *testing.T) {
	t.Run("缺少必填字段", func(t *testing.T) {
		svc := NewWebhookService(memory.NewStore(), zap.NewNop())

		err := svc.ProcessStatusUpdate(domain.StatusUpdate{Status: "delivered"})
		assert.ErrorIs(t, err, ErrMissingFields)

		err = svc.ProcessStatusUpdate(domain.StatusUpdate{MessageID: "msg-1"})
		assert.ErrorIs(t, err, ErrMissingFields)
	})

	t.Run("无法识别的状态", func(t *testing.T) {
		svc := NewWebhookService(memory.NewStore(), zap.NewNop())

		err := svc.ProcessStatusUpdate(domain.StatusUpdate{MessageID: "msg-1", Status: "queued"})
		assert.ErrorIs(t, err, ErrUnknownStatus)

		// sending/sent 不是回调可设置的目标状态
		err = svc.ProcessStatusUpdate(domain.StatusUpdate{MessageID: "msg-1", Status: "sent"})
		assert.ErrorIs(t, err, ErrUnknownStatus)
	})

	t.Run("Message-ID 未命中", func(t *testing.T) {
		svc := NewWebhookService(memory.NewStore(), zap.NewNop())

		err := svc.ProcessStatusUpdate(domain.StatusUpdate{MessageID: "unknown", Status: "delivered"})
		assert.ErrorIs(t, err, storage.ErrEmailLogNotFound)
	})

	t.Run("标记为已送达", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewWebhookService(store, zap.NewNop())
		broadcaster := &recordingBroadcaster{}
		svc.SetBroadcaster(broadcaster)
		seedWebhookLog(t, store, domain.StatusSent)

		require.NoError(t, svc.ProcessStatusUpdate(domain.StatusUpdate{MessageID: "msg-1", Status: "delivered"}))

		log, err := store.GetByID("id-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDelivered, log.Status)
		assert.NotNil(t, log.DeliveredAt)
		assert.Nil(t, log.SentAt)
		assert.Equal(t, []string{"email.delivered"}, broadcaster.events)
	})

	t.Run("标记为退回并记录原因", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewWebhookService(store, zap.NewNop())
		seedWebhookLog(t, store, domain.StatusSent)

		require.NoError(t, svc.ProcessStatusUpdate(domain.StatusUpdate{
			MessageID: "msg-1",
			Status:    "bounced",
			Reason:    "mailbox full",
		}))

		log, err := store.GetByID("id-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusBounced, log.Status)
		assert.Equal(t, "mailbox full", log.ErrorMessage)
		assert.NotNil(t, log.FailedAt)
	})

	t.Run("回调可将 sending 直接置为 failed", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewWebhookService(store, zap.NewNop())
		seedWebhookLog(t, store, domain.StatusSending)

		require.NoError(t, svc.ProcessStatusUpdate(domain.StatusUpdate{
			MessageID: "msg-1",
			Status:    "failed",
			Reason:    "rejected by relay",
		}))

		log, err := store.GetByID("id-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, log.Status)
		assert.Equal(t, "rejected by relay", log.ErrorMessage)
	})

	t.Run("终态记录拒绝再次流转", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewWebhookService(store, zap.NewNop())
		log := seedWebhookLog(t, store, domain.StatusSending)
		log.MarkAsDelivered(time.Now())
		require.NoError(t, store.Save(log))

		err := svc.ProcessStatusUpdate(domain.StatusUpdate{MessageID: "msg-1", Status: "bounced"})
		assert.ErrorIs(t, err, ErrTerminalStatus)

		// 记录保持不变
		got, gerr := store.GetByID("id-1")
		require.NoError(t, gerr)
		assert.Equal(t, domain.StatusDelivered, got.Status)
	})
}

// recordingNotifier 记录收到的状态通知
type recordingNotifier struct {
	statusLogs []*domain.EmailLog
	cleanups   []int
}

func (n *recordingNotifier) NotifyStatusChange(log *domain.EmailLog) {
	n.statusLogs = append(n.statusLogs, log)
}

func (n *recordingNotifier) NotifyCleanup(deleted int, retentionDays int) {
	n.cleanups = append(n.cleanups, deleted)
}

func TestWebhookService_Notifications(t *testing.T) {
	t.Run("退回触发通知", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewWebhookService(store, zap.NewNop())
		notifier := &recordingNotifier{}
		svc.SetNotifier(notifier)
		seedWebhookLog(t, store, domain.StatusSent)

		require.NoError(t, svc.ProcessStatusUpdate(domain.StatusUpdate{MessageID: "msg-1", Status: "bounced"}))
		require.Len(t, notifier.statusLogs, 1)
		assert.Equal(t, domain.StatusBounced, notifier.statusLogs[0].Status)
	})

	t.Run("送达不触发通知", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewWebhookService(store, zap.NewNop())
		notifier := &recordingNotifier{}
		svc.SetNotifier(notifier)
		seedWebhookLog(t, store, domain.StatusSent)

		require.NoError(t, svc.ProcessStatusUpdate(domain.StatusUpdate{MessageID: "msg-1", Status: "delivered"}))
		assert.Empty(t, notifier.statusLogs)
	})
}
