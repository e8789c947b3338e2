package domain

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsValid(t *testing.T) {
	valid := []Status{StatusSending, StatusSent, StatusDelivered, StatusFailed, StatusBounced}
	for _, s := range valid {
		assert.True(t, s.IsValid(), "status %q should be valid", s)
	}

	assert.False(t, Status("queued").IsValid())
	assert.False(t, Status("").IsValid())
	assert.False(t, Status("SENT").IsValid())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	t.Run("sending 可流转到全部后续状态", func(t *testing.T) {
		for _, target := range []Status{StatusSent, StatusFailed, StatusDelivered, StatusBounced} {
			assert.True(t, StatusSending.CanTransitionTo(target), "sending -> %s", target)
		}
	})

	t.Run("sent 仅接受投递回调状态", func(t *testing.T) {
		assert.True(t, StatusSent.CanTransitionTo(StatusDelivered))
		assert.True(t, StatusSent.CanTransitionTo(StatusBounced))
		assert.True(t, StatusSent.CanTransitionTo(StatusFailed))
		assert.False(t, StatusSent.CanTransitionTo(StatusSending))
	})

	t.Run("终态不再流转", func(t *testing.T) {
		for _, terminal := range []Status{StatusDelivered, StatusFailed, StatusBounced} {
			assert.True(t, terminal.IsTerminal())
			for _, target := range []Status{StatusSending, StatusSent, StatusDelivered, StatusFailed, StatusBounced} {
				assert.False(t, terminal.CanTransitionTo(target), "%s -> %s", terminal, target)
			}
		}
	})
}

func TestEmailLog_Transitions(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	t.Run("标记为已发送只保留 sent_at", func(t *testing.T) {
		log := &EmailLog{Status: StatusSending}
		log.MarkAsSent(now)

		assert.Equal(t, StatusSent, log.Status)
		assert.Equal(t, now, *log.SentAt)
		assert.Nil(t, log.DeliveredAt)
		assert.Nil(t, log.FailedAt)
	})

	t.Run("标记为已送达清空其他时间戳", func(t *testing.T) {
		log := &EmailLog{Status: StatusSending}
		log.MarkAsSent(now)
		log.MarkAsDelivered(now.Add(time.Minute))

		assert.Equal(t, StatusDelivered, log.Status)
		assert.Equal(t, now.Add(time.Minute), *log.DeliveredAt)
		assert.Nil(t, log.SentAt)
		assert.Nil(t, log.FailedAt)
	})

	t.Run("标记为失败写入错误信息", func(t *testing.T) {
		log := &EmailLog{Status: StatusSending}
		log.MarkAsFailed(now, "connection refused")

		assert.Equal(t, StatusFailed, log.Status)
		assert.Equal(t, now, *log.FailedAt)
		assert.Equal(t, "connection refused", log.ErrorMessage)
		assert.Nil(t, log.SentAt)
		assert.Nil(t, log.DeliveredAt)
	})

	t.Run("退回与失败共用 failed_at", func(t *testing.T) {
		log := &EmailLog{Status: StatusSent}
		log.MarkAsBounced(now, "mailbox full")

		assert.Equal(t, StatusBounced, log.Status)
		assert.Equal(t, now, *log.FailedAt)
		assert.Equal(t, "mailbox full", log.ErrorMessage)
		assert.Nil(t, log.SentAt)
	})

	t.Run("重发重置清空状态与错误", func(t *testing.T) {
		log := &EmailLog{Status: StatusSending}
		log.MarkAsFailed(now, "timeout")
		log.ResetForResend()

		assert.Equal(t, StatusSending, log.Status)
		assert.Empty(t, log.ErrorMessage)
		assert.Nil(t, log.SentAt)
		assert.Nil(t, log.DeliveredAt)
		assert.Nil(t, log.FailedAt)
	})
}

func TestEmailLog_IsStuck(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	timeout := 2 * time.Minute

	fresh := &EmailLog{Status: StatusSending, CreatedAt: now.Add(-time.Minute)}
	assert.False(t, fresh.IsStuck(timeout, now))

	stuck := &EmailLog{Status: StatusSending, CreatedAt: now.Add(-3 * time.Minute)}
	assert.True(t, stuck.IsStuck(timeout, now))

	// 已完成的记录不算卡死
	sent := &EmailLog{Status: StatusSent, CreatedAt: now.Add(-3 * time.Minute)}
	assert.False(t, sent.IsStuck(timeout, now))
}

func TestEmailLog_Recipients(t *testing.T) {
	log := &EmailLog{
		To:  "a@example.com, b@example.com",
		Cc:  " c@example.com ",
		Bcc: "",
	}
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, log.Recipients())
}

func TestStuckErrorMessage(t *testing.T) {
	assert.Equal(t,
		"email timed out - stuck in sending status for more than 2 minutes",
		StuckErrorMessage(2*time.Minute),
	)
	assert.Equal(t,
		"email timed out - stuck in sending status for more than 90 minutes",
		StuckErrorMessage(90*time.Minute),
	)
	// 不足一分钟时退化为原始时长表述
	assert.Contains(t, StuckErrorMessage(30*time.Second), "30s")
}

func TestEmailLog_PortableIndexTags(t *testing.T) {
	// to/from 的索引由存储层按方言补建，结构体标签里不允许出现
	// MySQL 专用的前缀长度语法，否则 PostgreSQL 下建表会失败
	typ := reflect.TypeOf(EmailLog{})
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("gorm")
		assert.NotContains(t, tag, "length:", "field %s", typ.Field(i).Name)
	}

	toField, ok := typ.FieldByName("To")
	require.True(t, ok)
	assert.NotContains(t, toField.Tag.Get("gorm"), "index")

	fromField, ok := typ.FieldByName("From")
	require.True(t, ok)
	assert.NotContains(t, fromField.Tag.Get("gorm"), "index")
}

func TestJoinAddresses(t *testing.T) {
	assert.Equal(t, "a@example.com, b@example.com", JoinAddresses([]string{"a@example.com", " b@example.com "}))
	assert.Equal(t, "", JoinAddresses(nil))
	assert.Equal(t, "a@example.com", JoinAddresses([]string{"", "a@example.com", " "}))
}
