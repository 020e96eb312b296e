// Package notify 交易结果通知，发送失败不影响交易流程
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paygate/pkg/logger"
	"paygate/pkg/queue"
)

// Kind 通知事件类型
type Kind string

const (
	KindSuccess   Kind = "success"
	KindFailed    Kind = "failed"
	KindTimeout   Kind = "timeout"
	KindCancelled Kind = "cancelled"
)

// TaskType 通知任务在队列中的类型
const TaskType = "payment.notification"

// Event 交易结果事件
type Event struct {
	Kind          Kind      `json:"kind"`
	TransactionID uint64    `json:"transaction_id"`
	TransactionNo string    `json:"transaction_no"`
	UserID        uint64    `json:"user_id"`
	Amount        string    `json:"amount"`
	Method        string    `json:"method"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier 通知发送方
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier 只写日志，Redis 未启用时使用
type LogNotifier struct{}

// Notify 实现 Notifier
func (LogNotifier) Notify(ctx context.Context, event Event) {
	logger.Info("Notify",
		zap.String("kind", string(event.Kind)),
		zap.String("transaction_no", event.TransactionNo),
		zap.Uint64("user_id", event.UserID),
		zap.String("amount", event.Amount),
		zap.String("reason", event.Reason),
	)
}

// QueueNotifier 将通知投递到 Redis 队列，由工作器异步发送
type QueueNotifier struct {
	queue   queue.Source
	timeout time.Duration
}

// NewQueueNotifier 创建队列通知
func NewQueueNotifier(source queue.Source) *QueueNotifier {
	return &QueueNotifier{queue: source, timeout: 3 * time.Second}
}

// Notify 实现 Notifier，入队失败只记录日志
func (n *QueueNotifier) Notify(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.ErrorString("Notify", "Marshal", err.Error())
		return
	}

	// 请求结束后通知仍需入队
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	task := &queue.Task{
		ID:        uuid.NewString(),
		Type:      TaskType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.queue.PushTask(pushCtx, task); err != nil {
		logger.ErrorString("Notify", "Enqueue", fmt.Sprintf("transaction %s %s: %v", event.TransactionNo, event.Kind, err))
	}
}

// DecodeEvent 解析队列任务中的事件
func DecodeEvent(task *queue.Task) (Event, error) {
	var event Event
	if task.Type != TaskType {
		return event, fmt.Errorf("unexpected task type %q", task.Type)
	}
	if err := json.Unmarshal(task.Payload, &event); err != nil {
		return event, fmt.Errorf("decode notification event: %w", err)
	}
	return event, nil
}
