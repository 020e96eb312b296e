package notify

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"paygate/app/models/notification"
	"paygate/app/models/user"
	"paygate/pkg/logger"
	"paygate/pkg/queue"
)

// Config 通知渠道配置
type Config struct {
	EmailEnabled     bool
	SMSEnabled       bool
	EmailSuccessRate float64
	SMSSuccessRate   float64
}

// Store 通知记录存储
type Store interface {
	Create(ctx context.Context, n *notification.Notification) error
	FindUser(ctx context.Context, userID uint64) (*user.User, error)
}

// Dispatcher 模拟邮件和短信发送，并记录每一次发送
type Dispatcher struct {
	cfg   Config
	store Store
	now   func() time.Time
}

// NewDispatcher 创建通知分发器
func NewDispatcher(cfg Config, store Store) *Dispatcher {
	return &Dispatcher{
		cfg:   cfg,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle 实现 queue.Handler
func (d *Dispatcher) Handle(ctx context.Context, task *queue.Task) error {
	event, err := DecodeEvent(task)
	if err != nil {
		// 无法解析的任务重试也没有意义
		logger.ErrorString("Notify", "Decode", err.Error())
		return nil
	}
	return d.Dispatch(ctx, event)
}

// Notify 实现 Notifier，同步发送
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if err := d.Dispatch(ctx, event); err != nil {
		logger.ErrorString("Notify", "Dispatch", err.Error())
	}
}

// Dispatch 向用户发送邮件和短信，返回的错误只代表记录写入失败
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	u, err := d.store.FindUser(ctx, event.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WarnString("Notify", "Recipient", fmt.Sprintf("user %d not found, skip %s", event.UserID, event.TransactionNo))
			return nil
		}
		return fmt.Errorf("find user %d: %w", event.UserID, err)
	}

	content := Render(event)
	if d.cfg.EmailEnabled && u.Email != "" {
		if err := d.send(ctx, event, notification.ChannelEmail, u.Email, content, d.cfg.EmailSuccessRate); err != nil {
			return err
		}
	}
	if d.cfg.SMSEnabled && u.Phone != "" {
		if err := d.send(ctx, event, notification.ChannelSMS, u.Phone, content, d.cfg.SMSSuccessRate); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, event Event, channel notification.Channel, recipient, content string, successRate float64) error {
	record := &notification.Notification{
		TransactionID: event.TransactionID,
		UserID:        event.UserID,
		Type:          channel,
		Recipient:     recipient,
		Event:         string(event.Kind),
		Content:       content,
	}

	if rand.Float64() < successRate {
		sentAt := d.now()
		record.Status = notification.StatusSent
		record.SentAt = &sentAt
	} else {
		record.Status = notification.StatusFailed
		record.ErrorMessage = fmt.Sprintf("%s gateway rejected the message", channel)
	}

	if err := d.store.Create(ctx, record); err != nil {
		return fmt.Errorf("save %s notification for %s: %w", channel, event.TransactionNo, err)
	}
	return nil
}

// Render 通知正文
func Render(event Event) string {
	switch event.Kind {
	case KindSuccess:
		return fmt.Sprintf("您的订单 %s 已支付成功，金额 %s 元。", event.TransactionNo, event.Amount)
	case KindFailed:
		return fmt.Sprintf("您的订单 %s 支付失败：%s。", event.TransactionNo, event.Reason)
	case KindTimeout:
		return fmt.Sprintf("您的订单 %s 因超时未支付已关闭。", event.TransactionNo)
	case KindCancelled:
		return fmt.Sprintf("您的订单 %s 已取消。", event.TransactionNo)
	}
	return fmt.Sprintf("您的订单 %s 状态已更新。", event.TransactionNo)
}
