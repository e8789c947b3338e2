package notify

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	mail "gopkg.in/gomail.v2"

	"mailwatch/internal/config"
	"mailwatch/internal/domain"
	"mailwatch/internal/pool"
)

// Notifier 在失败/退回/清理事件发生时向运维收件人发送通知邮件
//
// 投递经由协程池异步执行，发送失败只记录日志，
// 不影响触发它的生命周期事件。
type Notifier struct {
	cfg    config.NotifyConfig
	dialer *mail.Dialer
	pool   *pool.WorkerPool
	logger *zap.Logger
}

// New 创建通知器，pool 负责异步投递
func New(cfg config.NotifyConfig, p *pool.WorkerPool, logger *zap.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		dialer: mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		pool:   p,
		logger: logger.Named("notify"),
	}
}

// NotifyStatusChange 在记录进入 failed/bounced 状态时发送通知
func (n *Notifier) NotifyStatusChange(log *domain.EmailLog) {
	if !n.enabled() {
		return
	}
	switch log.Status {
	case domain.StatusFailed:
		if !n.cfg.OnFailed {
			return
		}
	case domain.StatusBounced:
		if !n.cfg.OnBounced {
			return
		}
	default:
		return
	}

	subject := fmt.Sprintf("[mailwatch] email %s: %s", log.Status, log.Subject)
	var b strings.Builder
	fmt.Fprintf(&b, "An outgoing email has entered status %q.\n\n", log.Status)
	fmt.Fprintf(&b, "To:      %s\n", log.To)
	fmt.Fprintf(&b, "From:    %s\n", log.From)
	fmt.Fprintf(&b, "Subject: %s\n", log.Subject)
	if log.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error:   %s\n", log.ErrorMessage)
	}
	fmt.Fprintf(&b, "Created: %s\n", log.CreatedAt.Format(time.RFC3339))

	n.dispatch(subject, b.String())
}

// NotifyCleanup 在定期清理删除记录后发送通知
func (n *Notifier) NotifyCleanup(deleted int, retentionDays int) {
	if !n.enabled() || !n.cfg.OnCleanup {
		return
	}
	subject := "[mailwatch] cleanup removed old email logs"
	body := fmt.Sprintf(
		"Retention cleanup finished at %s.\n\nDeleted records: %d\nRetention days:  %d\n",
		time.Now().Format(time.RFC3339), deleted, retentionDays,
	)
	n.dispatch(subject, body)
}

func (n *Notifier) enabled() bool {
	return n.cfg.Enabled && len(n.cfg.Recipients) > 0 && n.cfg.SMTPHost != ""
}

// dispatch 异步投递；队列打满时丢弃并记录，通知不是关键路径
func (n *Notifier) dispatch(subject, body string) {
	ok := n.pool.TrySubmit(func() {
		m := mail.NewMessage()
		m.SetHeader("From", n.cfg.From)
		m.SetHeader("To", n.cfg.Recipients...)
		m.SetHeader("Subject", subject)
		m.SetBody("text/plain", body)

		if err := n.dialer.DialAndSend(m); err != nil {
			n.logger.Error("通知邮件发送失败",
				zap.String("subject", subject),
				zap.Error(err),
			)
			return
		}
		n.logger.Info("通知邮件已发送", zap.String("subject", subject))
	})
	if !ok {
		n.logger.Warn("通知队列已满，通知被丢弃", zap.String("subject", subject))
	}
}
