package routes

import (
	"github.com/gin-gonic/gin"

	v1 "paygate/app/http/controllers/api/v1"
	"paygate/app/http/controllers/api/v1/admin"
	"paygate/app/http/controllers/api/v1/payment"
	"paygate/app/http/middlewares"
	"paygate/pkg/limiter"
)

// 路由限流默认值
const (
	// 全局限流：每小时每IP 30000 请求
	GlobalRateLimit = "30000-H"
	// 创建支付限流：每小时每IP 600 请求
	CreatePaymentLimit = "600-H"
)

// Controllers 路由依赖
type Controllers struct {
	Payment  *payment.PaymentController
	Delivery *admin.DeliveryController
	Health   *v1.HealthController

	// InternalToken 管理接口令牌
	InternalToken string

	// LimitStore 为空时使用进程内限流
	LimitStore      *limiter.Store
	GlobalRateLimit string
	CreateRateLimit string
}

// RegisterAPIRoutes 注册所有 API 路由
func RegisterAPIRoutes(r *gin.Engine, ctl Controllers) {
	globalLimit := ctl.GlobalRateLimit
	if globalLimit == "" {
		globalLimit = GlobalRateLimit
	}
	createLimit := ctl.CreateRateLimit
	if createLimit == "" {
		createLimit = CreatePaymentLimit
	}

	v1Group := r.Group("/v1")
	v1Group.Use(
		middlewares.SecurityHeaders(),
		middlewares.Cors(),
		middlewares.LimitIP(globalLimit),
	)

	v1Group.GET("/health", ctl.Health.Show)

	paymentRoutes := v1Group.Group("/payments")
	{
		pc := ctl.Payment

		// POST /v1/payments/create
		paymentRoutes.POST("/create",
			middlewares.LimitPerRoute(createLimit, ctl.LimitStore),
			pc.Create,
		)
		paymentRoutes.GET("/query", pc.Query)
		paymentRoutes.POST("/query", pc.Query)
		paymentRoutes.POST("/process", pc.Process)
		paymentRoutes.POST("/retry", pc.Retry)
		paymentRoutes.POST("/cancel", pc.Cancel)
		// 渠道回调，签名在业务层校验
		paymentRoutes.POST("/callback", pc.Callback)
		// 支付宝、微信等渠道的原生通知，按商户订单号定位交易
		paymentRoutes.POST("/notify/:method", pc.Notify)
	}

	v1Group.GET("/users/:user_id/transactions", ctl.Payment.History)

	adminRoutes := v1Group.Group("/admin", middlewares.InternalToken(ctl.InternalToken))
	{
		adminRoutes.GET("/deliveries", ctl.Delivery.Index)
		adminRoutes.POST("/deliveries/:payment_id/redeliver", ctl.Delivery.Redeliver)
	}
}
