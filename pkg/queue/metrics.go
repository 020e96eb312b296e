package queue

import (
	"sync"
	"sync/atomic"
	"time"
)

// TaskID 任务ID的类型别名
type TaskID string

// MetricOperation 定义指标操作类型
type MetricOperation string

const (
	OpPush    MetricOperation = "push"
	OpPop     MetricOperation = "pop"
	OpProcess MetricOperation = "process"
)

// LatencyStats 延迟统计
type LatencyStats struct {
	mu    sync.Mutex
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// QueueMetrics 队列性能指标
type QueueMetrics struct {
	totalTasks      atomic.Int64
	successfulTasks atomic.Int64
	failedTasks     atomic.Int64

	// 延迟统计
	pushLatency    *LatencyStats
	popLatency     *LatencyStats
	processLatency *LatencyStats

	// 队列状态
	queueLength     atomic.Int64
	avgWaitTime     atomic.Int64 // 平均等待时间(毫秒)
	waitSamples     atomic.Int64
	peakQueueLength atomic.Int64

	// 等待时间计算
	waitTimeStart *sync.Map // map[TaskID]time.Time
}

// MetricsSnapshot 指标快照，用于健康检查输出
type MetricsSnapshot struct {
	TotalTasks       int64   `json:"total_tasks"`
	SuccessfulTasks  int64   `json:"successful_tasks"`
	FailedTasks      int64   `json:"failed_tasks"`
	QueueLength      int64   `json:"queue_length"`
	PeakQueueLength  int64   `json:"peak_queue_length"`
	AvgWaitMillis    int64   `json:"avg_wait_ms"`
	AvgProcessMillis float64 `json:"avg_process_ms"`
	MaxProcessMillis int64   `json:"max_process_ms"`
	AvgPushLatencyMs float64 `json:"avg_push_latency_ms"`
}

// NewQueueMetrics 创建新的指标收集器
func NewQueueMetrics() *QueueMetrics {
	return &QueueMetrics{
		waitTimeStart:  &sync.Map{},
		pushLatency:    &LatencyStats{},
		popLatency:     &LatencyStats{},
		processLatency: &LatencyStats{},
	}
}

// RecordSuccess 记录成功操作
func (m *QueueMetrics) RecordSuccess(op MetricOperation) {
	m.successfulTasks.Add(1)
	m.totalTasks.Add(1)
}

// RecordError 记录失败操作
func (m *QueueMetrics) RecordError(op MetricOperation) {
	m.failedTasks.Add(1)
	m.totalTasks.Add(1)
}

// StartWaitTime 记录任务开始等待的时间
func (m *QueueMetrics) StartWaitTime(taskID TaskID) {
	m.waitTimeStart.Store(taskID, time.Now())
}

// EndWaitTime 计算并更新平均等待时间
func (m *QueueMetrics) EndWaitTime(taskID TaskID) {
	startTime, ok := m.waitTimeStart.LoadAndDelete(taskID)
	if !ok {
		return
	}
	waitDuration := time.Since(startTime.(time.Time))

	n := m.waitSamples.Add(1)
	currentAvg := m.avgWaitTime.Load()
	m.avgWaitTime.Store(currentAvg + (waitDuration.Milliseconds()-currentAvg)/n)
}

// SetQueueLength 更新队列长度及峰值
func (m *QueueMetrics) SetQueueLength(length int64) {
	m.queueLength.Store(length)
	for {
		peak := m.peakQueueLength.Load()
		if length <= peak || m.peakQueueLength.CompareAndSwap(peak, length) {
			return
		}
	}
}

// RecordPushLatency 记录推送延迟
func (m *QueueMetrics) RecordPushLatency(d time.Duration) {
	m.pushLatency.record(d)
}

// RecordPopLatency 记录获取延迟
func (m *QueueMetrics) RecordPopLatency(d time.Duration) {
	m.popLatency.record(d)
}

// RecordProcessLatency 记录处理延迟
func (m *QueueMetrics) RecordProcessLatency(d time.Duration) {
	m.processLatency.record(d)
}

// Snapshot 读取当前指标
func (m *QueueMetrics) Snapshot() MetricsSnapshot {
	avgProcess, maxProcess := m.processLatency.stats()
	avgPush, _ := m.pushLatency.stats()
	return MetricsSnapshot{
		TotalTasks:       m.totalTasks.Load(),
		SuccessfulTasks:  m.successfulTasks.Load(),
		FailedTasks:      m.failedTasks.Load(),
		QueueLength:      m.queueLength.Load(),
		PeakQueueLength:  m.peakQueueLength.Load(),
		AvgWaitMillis:    m.avgWaitTime.Load(),
		AvgProcessMillis: avgProcess,
		MaxProcessMillis: maxProcess.Milliseconds(),
		AvgPushLatencyMs: avgPush,
	}
}

// record 记录延迟数据
func (s *LatencyStats) record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.total += d

	// 更新最小值
	if s.min == 0 || d < s.min {
		s.min = d
	}

	// 更新最大值
	if d > s.max {
		s.max = d
	}
}

// stats 平均值（毫秒）与最大值
func (s *LatencyStats) stats() (float64, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return 0, 0
	}
	return float64(s.total.Milliseconds()) / float64(s.count), s.max
}
