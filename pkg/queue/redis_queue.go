package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"paygate/pkg/redis"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ErrQueueFull 队列积压超过上限
var ErrQueueFull = errors.New("queue is full")

// Task 队列任务，Payload 由任务类型的处理方解析
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
}

// Options 队列配置
type Options struct {
	Prefix       string
	StatusTTL    time.Duration
	RateLimit    int
	RateBurst    int
	MaxQueueSize int
	// PopTimeout BRPop 单次阻塞时间
	PopTimeout time.Duration
}

// QueueService Redis 列表队列
// 支持限流和监控指标收集
type QueueService struct {
	client       *redis.RedisClient
	prefix       string
	timeout      time.Duration
	popTimeout   time.Duration
	maxQueueSize int64
	rateLimiter  *rate.Limiter
	metrics      *QueueMetrics
}

// NewQueueService 创建新的队列服务实例
func NewQueueService(client *redis.RedisClient, opts Options) *QueueService {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1000
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = opts.RateLimit
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = time.Hour
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 2 * time.Second
	}

	return &QueueService{
		client:       client,
		prefix:       opts.Prefix,
		timeout:      opts.StatusTTL,
		popTimeout:   opts.PopTimeout,
		maxQueueSize: int64(opts.MaxQueueSize),
		rateLimiter:  rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		metrics:      NewQueueMetrics(),
	}
}

func (q *QueueService) tasksKey() string {
	return fmt.Sprintf("%s:tasks", q.prefix)
}

func (q *QueueService) statusKey(taskID string) string {
	return fmt.Sprintf("%s:status:%s", q.prefix, taskID)
}

// PushTask 将任务推送到队列
func (q *QueueService) PushTask(ctx context.Context, task *Task) error {
	// 应用限流
	if err := q.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	start := time.Now()
	defer func() {
		q.metrics.RecordPushLatency(time.Since(start))
	}()

	if q.maxQueueSize > 0 {
		length, err := q.client.Client.LLen(ctx, q.tasksKey()).Result()
		if err == nil && length >= q.maxQueueSize {
			q.metrics.RecordError(OpPush)
			return ErrQueueFull
		}
		q.metrics.SetQueueLength(length)
	}

	taskJSON, err := json.Marshal(task)
	if err != nil {
		q.metrics.RecordError(OpPush)
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	// 入队与状态写入放在同一个 pipeline
	pipe := q.client.Client.TxPipeline()
	pipe.LPush(ctx, q.tasksKey(), taskJSON)
	pipe.Set(ctx, q.statusKey(task.ID), string(TaskPending), q.timeout)

	if _, err = pipe.Exec(ctx); err != nil {
		q.metrics.RecordError(OpPush)
		return fmt.Errorf("failed to push task: %w", err)
	}

	q.metrics.StartWaitTime(TaskID(task.ID))
	q.metrics.RecordSuccess(OpPush)
	return nil
}

// PopTask 从队列中获取任务，超时无任务时返回 nil, nil
func (q *QueueService) PopTask(ctx context.Context) (*Task, error) {
	start := time.Now()
	result, err := q.client.Client.BRPop(ctx, q.popTimeout, q.tasksKey()).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		q.metrics.RecordError(OpPop)
		return nil, fmt.Errorf("failed to pop task from queue: %w", err)
	}
	q.metrics.RecordPopLatency(time.Since(start))

	if len(result) != 2 {
		return nil, fmt.Errorf("invalid result from queue")
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	q.metrics.EndWaitTime(TaskID(task.ID))
	return &task, nil
}

// UpdateTaskStatus 更新任务状态
func (q *QueueService) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus) error {
	if err := q.client.Client.Set(ctx, q.statusKey(taskID), string(status), q.timeout).Err(); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// GetTaskStatus 获取任务状态，任务不存在时返回空字符串
func (q *QueueService) GetTaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	status, err := q.client.Client.Get(ctx, q.statusKey(taskID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get task status: %w", err)
	}
	return TaskStatus(status), nil
}

// Ping 检查队列服务健康状态
func (q *QueueService) Ping(ctx context.Context) error {
	return q.client.Ping()
}

// Metrics 队列指标
func (q *QueueService) Metrics() *QueueMetrics {
	return q.metrics
}
