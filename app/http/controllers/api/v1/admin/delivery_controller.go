package admin

import (
	"github.com/gin-gonic/gin"

	v1 "paygate/app/http/controllers/api/v1"
	"paygate/app/requests"
	"paygate/pkg/reconcile"
	"paygate/pkg/response"
)

// DeliveryController 外部状态推送的人工跟进
type DeliveryController struct {
	reconcile *reconcile.Service
}

// NewDeliveryController 创建控制器
func NewDeliveryController(reconciler *reconcile.Service) *DeliveryController {
	return &DeliveryController{reconcile: reconciler}
}

// Index 推送失败、需要人工处理的订单
// GET /v1/admin/deliveries
func (dc *DeliveryController) Index(c *gin.Context) {
	page, pageSize := requests.Pagination(c)

	mappings, total, err := dc.reconcile.ListUndelivered(c.Request.Context(), page, pageSize)
	if err != nil {
		v1.RespondError(c, err)
		return
	}
	response.Data(c, gin.H{
		"items": mappings,
		"total": total,
		"page":  page,
	})
}

// Redeliver 重新推送
// POST /v1/admin/deliveries/:payment_id/redeliver
func (dc *DeliveryController) Redeliver(c *gin.Context) {
	paymentID := c.Param("payment_id")

	delivered, err := dc.reconcile.Redeliver(c.Request.Context(), paymentID)
	if err != nil {
		v1.RespondError(c, err)
		return
	}
	response.Data(c, gin.H{
		"paymentId": paymentID,
		"delivered": delivered,
	})
}
