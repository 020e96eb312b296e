package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paygate/pkg/logger"
)

// Sweeper 定时关闭超时交易
type Sweeper struct {
	service  *Service
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper 创建超时扫描器
func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start 启动后台扫描
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logger.InfoString("Sweeper", "Start", fmt.Sprintf("sweeping every %s", s.interval))
		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.runOnce()
			}
		}
	}()
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	if _, err := s.service.SweepTimeouts(ctx); err != nil {
		logger.ErrorString("Sweeper", "Sweep", err.Error())
	}
}

// Stop 停止扫描并等待当前批次结束
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}
