package bootstrap

import (
	"time"

	"gorm.io/gorm"

	"paygate/app/repositories"
	"paygate/pkg/config"
	"paygate/pkg/logger"
	"paygate/pkg/notify"
	"paygate/pkg/queue"
	"paygate/pkg/redis"
)

// Notification 通知通道及其后台消费者
type Notification struct {
	Notifier notify.Notifier
	Queue    *queue.QueueService
	Worker   *queue.Worker
}

// SetupQueue 初始化通知队列，consume 为 false 时只投递不消费。Redis 不可用时通知只写日志
func SetupQueue(db *gorm.DB, consume bool) *Notification {
	client := redis.GetRedis(redis.QueueDB)
	if client == nil {
		logger.WarnString("Queue", "Setup", "Redis 队列库未初始化，通知降级为日志输出")
		return &Notification{Notifier: notify.LogNotifier{}}
	}

	queueService := queue.NewQueueService(client, queue.Options{
		Prefix:       config.GetString("redis.queue_prefix"),
		StatusTTL:    config.GetDuration("redis.queue_timeout", 3600),
		RateLimit:    config.GetInt("queue.rate_limit", 200),
		RateBurst:    config.GetInt("queue.rate_burst", 50),
		MaxQueueSize: config.GetInt("queue.max_queue_size", 10000),
	})

	notification := &Notification{
		Notifier: notify.NewQueueNotifier(queueService),
		Queue:    queueService,
	}
	if !consume {
		return notification
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		EmailEnabled:     config.GetBool("notification.email_enabled"),
		SMSEnabled:       config.GetBool("notification.sms_enabled"),
		EmailSuccessRate: config.GetFloat64("notification.email_success_rate"),
		SMSSuccessRate:   config.GetFloat64("notification.sms_success_rate"),
	}, repositories.NewNotificationRepository(db))

	worker := queue.NewWorker(queueService, dispatcher, queue.WorkerConfig{
		WorkerCount:     config.GetInt("queue.worker_count", 4),
		MaxRetries:      config.GetInt("queue.retry_times", 3),
		RetryInterval:   config.GetDuration("queue.retry_delay", 1),
		ShutdownTimeout: config.GetDuration("queue.shutdown_timeout", 30),
		TaskTimeout:     30 * time.Second,
	})

	go worker.Start()
	notification.Worker = worker

	logger.InfoString("Queue", "Setup", "通知队列启动成功")
	return notification
}

// Stop 停止消费者
func (n *Notification) Stop() {
	if n.Worker != nil {
		n.Worker.Stop()
	}
}
