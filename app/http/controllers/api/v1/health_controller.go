package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"paygate/pkg/app"
	"paygate/pkg/queue"
	"paygate/pkg/response"
)

// HealthController 健康检查
type HealthController struct {
	db     *gorm.DB
	queue  *queue.QueueService
	worker *queue.Worker
}

// NewHealthController queue 与 worker 在 Redis 关闭时为 nil
func NewHealthController(db *gorm.DB, q *queue.QueueService, worker *queue.Worker) *HealthController {
	return &HealthController{db: db, queue: q, worker: worker}
}

// Show GET /v1/health
func (hc *HealthController) Show(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	healthy := true
	checks := gin.H{}

	if sqlDB, err := hc.db.DB(); err != nil {
		healthy = false
		checks["database"] = err.Error()
	} else if err := sqlDB.PingContext(ctx); err != nil {
		healthy = false
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	if hc.queue == nil {
		checks["queue"] = "disabled"
	} else if err := hc.queue.Ping(ctx); err != nil {
		healthy = false
		checks["queue"] = err.Error()
	} else {
		checks["queue"] = "ok"
		checks["queue_metrics"] = hc.queue.Metrics().Snapshot()
	}
	if hc.worker != nil {
		checks["worker_metrics"] = hc.worker.Metrics().Snapshot()
	}

	data := gin.H{
		"status": "ok",
		"time":   app.TimenowInTimezone().Format(time.RFC3339),
		"checks": checks,
	}
	if !healthy {
		data["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Code:    http.StatusServiceUnavailable,
			Message: "degraded",
			Data:    data,
		})
		return
	}
	response.Data(c, data)
}
