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

// recordingBroadcaster 记录推送过的事件，供断言使用
type recordingBroadcaster struct {
	events []string
	logs   []*domain.EmailLog
}

func (b *recordingBroadcaster) BroadcastLogEvent(event string, log *domain.EmailLog) {
	b.events = append(b.events, event)
	b.logs = append(b.logs, log)
}

func monitorConfig() *config.Config {
	return &config.Config{
		Monitor: config.MonitorConfig{
			Enabled:       true,
			LogBody:       true,
			LogMetadata:   true,
			RecencyWindow: 5 * time.Minute,
			StuckTimeout:  2 * time.Minute,
		},
	}
}

func outgoingMessage(messageID string) domain.OutgoingMessage {
	return domain.OutgoingMessage{
		MessageID: messageID,
		To:        []string{"user@example.com"},
		From:      []string{"noreply@example.com"},
		Subject:   "Welcome",
		Body:      "Hello there",
	}
}

func TestMonitorService_HandleSending(t *testing.T) {
	t.Run("创建带正文与元数据的记录", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewMonitorService(store, monitorConfig(), zap.NewNop())

		reqCtx := domain.RequestContext{UserID: "u-1", IPAddress: "10.0.0.1", UserAgent: "curl"}
		require.NoError(t, svc.HandleSending(outgoingMessage("msg-1"), reqCtx))

		log, err := store.FindByMessageID("msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSending, log.Status)
		assert.Equal(t, "user@example.com", log.To)
		assert.Equal(t, "noreply@example.com", log.From)
		assert.Equal(t, "Hello there", log.Body)
		assert.Equal(t, "u-1", log.Metadata["user_id"])
		assert.Equal(t, "10.0.0.1", log.Metadata["ip_address"])
	})

	t.Run("关闭正文与元数据开关时不保存", func(t *testing.T) {
		store := memory.NewStore()
		cfg := monitorConfig()
		cfg.Monitor.LogBody = false
		cfg.Monitor.LogMetadata = false
		svc := NewMonitorService(store, cfg, zap.NewNop())

		require.NoError(t, svc.HandleSending(outgoingMessage("msg-1"), domain.RequestContext{UserID: "u-1"}))

		log, err := store.FindByMessageID("msg-1")
		require.NoError(t, err)
		assert.Empty(t, log.Body)
		assert.Nil(t, log.Metadata)
	})

	t.Run("缺少 Message-ID 时生成随机标识", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewMonitorService(store, monitorConfig(), zap.NewNop())

		require.NoError(t, svc.HandleSending(outgoingMessage(""), domain.RequestContext{}))

		recent, err := store.Recent(1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.NotEmpty(t, recent[0].MessageID)
	})

	t.Run("追踪关闭时不创建记录", func(t *testing.T) {
		store := memory.NewStore()
		cfg := monitorConfig()
		cfg.Monitor.Enabled = false
		svc := NewMonitorService(store, cfg, zap.NewNop())

		require.NoError(t, svc.HandleSending(outgoingMessage("msg-1"), domain.RequestContext{}))

		recent, err := store.Recent(10)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})
}

func TestMonitorService_HandleSent(t *testing.T) {
	t.Run("按 Message-ID 精确匹配", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewMonitorService(store, monitorConfig(), zap.NewNop())
		broadcaster := &recordingBroadcaster{}
		svc.SetBroadcaster(broadcaster)

		require.NoError(t, svc.HandleSending(outgoingMessage("msg-1"), domain.RequestContext{}))
		require.NoError(t, svc.HandleSent(outgoingMessage("msg-1")))

		log, err := store.FindByMessageID("msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSent, log.Status)
		assert.NotNil(t, log.SentAt)
		assert.Equal(t, []string{"email.sending", "email.sent"}, broadcaster.events)

		// 一次发送只产生一条记录
		recent, err := store.Recent(10)
		require.NoError(t, err)
		assert.Len(t, recent, 1)
	})

	t.Run("Message-ID 不一致时在窗口内回退匹配", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewMonitorService(store, monitorConfig(), zap.NewNop())

		require.NoError(t, svc.HandleSending(outgoingMessage("protocol-id"), domain.RequestContext{}))
		// 完成事件携带不同的 Message-ID，按 to/from/subject 回退命中
		require.NoError(t, svc.HandleSent(outgoingMessage("rewritten-id")))

		log, err := store.FindByMessageID("protocol-id")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSent, log.Status)
	})

	t.Run("窗口外的记录不回退匹配", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewMonitorService(store, monitorConfig(), zap.NewNop())

		stale := &domain.EmailLog{
			ID:        "stale",
			MessageID: "protocol-id",
			To:        "user@example.com",
			From:      "noreply@example.com",
			Subject:   "Welcome",
			Status:    domain.StatusSending,
			CreatedAt: time.Now().Add(-10 * time.Minute),
		}
		require.NoError(t, store.Create(stale))

		// 无 Message-ID 命中且超出回退窗口，事件被丢弃
		require.NoError(t, svc.HandleSent(outgoingMessage("rewritten-id")))

		log, err := store.GetByID("stale")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSending, log.Status)
	})

	t.Run("完全无匹配时静默丢弃", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewMonitorService(store, monitorConfig(), zap.NewNop())

		assert.NoError(t, svc.HandleSent(outgoingMessage("unknown")))
	})
}

func TestMonitorService_HandleFailed(t *testing.T) {
	t.Run("精确匹配并归一化错误", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewMonitorService(store, monitorConfig(), zap.NewNop())

		require.NoError(t, svc.HandleSending(outgoingMessage("msg-1"), domain.RequestContext{}))
		require.NoError(t, svc.HandleFailed(outgoingMessage("msg-1"), "Authentication failed: 535"))

		log, err := store.FindByMessageID("msg-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, log.Status)
		assert.NotNil(t, log.FailedAt)
		assert.Equal(t, "SMTP Authentication failed - check your email credentials", log.ErrorMessage)
	})

	t.Run("Message-ID 不一致时回退匹配", func(t *testing.T) {
		store := memory.NewStore()
		svc := NewMonitorService(store, monitorConfig(), zap.NewNop())

		require.NoError(t, svc.HandleSending(outgoingMessage("protocol-id"), domain.RequestContext{}))
		require.NoError(t, svc.HandleFailed(outgoingMessage("rewritten-id"), "connection refused"))

		log, err := store.FindByMessageID("protocol-id")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, log.Status)
		assert.Equal(t, "SMTP Connection failed - check your SMTP settings", log.ErrorMessage)
	})
}

func TestNormalizeTransportError(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"认证失败", "535 Authentication failed", "SMTP Authentication failed - check your email credentials"},
		{"连接失败", "dial tcp: connection refused", "SMTP Connection failed - check your SMTP settings"},
		{"TLS 错误", "TLS handshake error", "SSL/TLS connection error - check your encryption settings"},
		{"未识别的错误原样透传", "550 mailbox unavailable", "550 mailbox unavailable"},
		{"空错误", "", "Unknown error occurred"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeTransportError(tc.raw))
		})
	}
}

// failingSink 所有事件都报错，用于验证吞错包装
type failingSink struct {
	err error
}

func (f *failingSink) HandleSending(domain.OutgoingMessage, domain.RequestContext) error { return f.err }
func (f *failingSink) HandleSent(domain.OutgoingMessage) error                           { return f.err }
func (f *failingSink) HandleFailed(domain.OutgoingMessage, string) error                 { return f.err }

func TestSilentSink_SwallowsErrors(t *testing.T) {
	inner := &failingSink{err: assert.AnError}
	sink := NewSilentSink(inner, zap.NewNop())

	assert.NoError(t, sink.HandleSending(outgoingMessage("msg-1"), domain.RequestContext{}))
	assert.NoError(t, sink.HandleSent(outgoingMessage("msg-1")))
	assert.NoError(t, sink.HandleFailed(outgoingMessage("msg-1"), "boom"))
}
