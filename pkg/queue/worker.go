package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paygate/pkg/logger"
)

// Source 任务来源，QueueService 实现了该接口
type Source interface {
	PushTask(ctx context.Context, task *Task) error
	PopTask(ctx context.Context) (*Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus) error
}

// Handler 任务处理方
type Handler interface {
	Handle(ctx context.Context, task *Task) error
}

// HandlerFunc 函数形式的 Handler
type HandlerFunc func(ctx context.Context, task *Task) error

// Handle 实现 Handler
func (f HandlerFunc) Handle(ctx context.Context, task *Task) error {
	return f(ctx, task)
}

// Worker 队列工作器组
type Worker struct {
	source   Source
	handler  Handler
	stopChan chan struct{}
	stopOnce sync.Once
	metrics  *QueueMetrics // 性能指标
	wg       sync.WaitGroup
	config   WorkerConfig
}

// WorkerConfig 工作器配置
type WorkerConfig struct {
	WorkerCount     int           // 并发工作器数量
	MaxRetries      int           // 单个任务最大重试次数
	RetryInterval   time.Duration // 重试间隔
	ShutdownTimeout time.Duration // 关闭超时时间
	TaskTimeout     time.Duration // 单个任务处理超时
}

// NewWorker 创建新的工作器组
func NewWorker(source Source, handler Handler, config WorkerConfig) *Worker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 20 * time.Second
	}

	return &Worker{
		source:   source,
		handler:  handler,
		stopChan: make(chan struct{}),
		metrics:  NewQueueMetrics(),
		config:   config,
	}
}

// Start 启动工作器组
func (w *Worker) Start() {
	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.startWorker(i)
	}
}

// startWorker 启动单个工作器
func (w *Worker) startWorker(id int) {
	defer w.wg.Done()

	logger.InfoString("Worker", "Start", fmt.Sprintf("Worker %d started", id))

	for {
		select {
		case <-w.stopChan:
			logger.InfoString("Worker", "Stop", fmt.Sprintf("Worker %d stopping", id))
			return
		default:
		}

		if err := w.processNextTask(); err != nil {
			logger.ErrorString("Worker", "Error", fmt.Sprintf("Worker %d error: %v", id, err))
			// 错误恢复延迟
			select {
			case <-w.stopChan:
			case <-time.After(time.Second):
			}
		}
	}
}

// processNextTask 获取并处理下一个任务
func (w *Worker) processNextTask() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 关闭时中断阻塞中的 PopTask
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	task, err := w.source.PopTask(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("pop task error: %w", err)
	}
	if task == nil {
		return nil
	}

	return w.handleTask(context.Background(), task)
}

// handleTask 处理单个任务，失败时按配置重新入队
func (w *Worker) handleTask(ctx context.Context, task *Task) error {
	start := time.Now()
	defer func() {
		w.metrics.RecordProcessLatency(time.Since(start))
	}()

	if err := w.source.UpdateTaskStatus(ctx, task.ID, TaskRunning); err != nil {
		logger.WarnString("Worker", "UpdateStatus", err.Error())
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.config.TaskTimeout)
	err := w.handler.Handle(taskCtx, task)
	cancel()

	if err == nil {
		w.metrics.RecordSuccess(OpProcess)
		if updateErr := w.source.UpdateTaskStatus(ctx, task.ID, TaskCompleted); updateErr != nil {
			logger.WarnString("Worker", "UpdateStatus", updateErr.Error())
		}
		return nil
	}

	w.metrics.RecordError(OpProcess)
	task.Attempts++
	if task.Attempts <= w.config.MaxRetries {
		logger.WarnString("Worker", "Retry", fmt.Sprintf("task %s (%s) attempt %d failed: %v", task.ID, task.Type, task.Attempts, err))
		w.requeueLater(task)
		return nil
	}

	if updateErr := w.source.UpdateTaskStatus(ctx, task.ID, TaskFailed); updateErr != nil {
		logger.WarnString("Worker", "UpdateStatus", updateErr.Error())
	}
	return fmt.Errorf("task %s (%s) failed after %d attempts: %w", task.ID, task.Type, task.Attempts, err)
}

// requeueLater 等待重试间隔后重新入队，关闭时放弃
func (w *Worker) requeueLater(task *Task) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-w.stopChan:
			return
		case <-time.After(w.config.RetryInterval):
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.source.PushTask(ctx, task); err != nil {
			logger.ErrorString("Worker", "Requeue", err.Error())
		}
	}()
}

// Metrics 工作器指标
func (w *Worker) Metrics() *QueueMetrics {
	return w.metrics
}

// Stop 优雅关闭工作器组
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})

	// 等待所有工作器完成
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoString("Worker", "Stop", "All workers stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		logger.WarnString("Worker", "Stop", "Worker shutdown timed out")
	}
}
