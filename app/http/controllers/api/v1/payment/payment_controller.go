package payment

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	v1 "paygate/app/http/controllers/api/v1"
	"paygate/app/models/paymentdetail"
	"paygate/app/models/transaction"
	"paygate/app/requests"
	"paygate/pkg/payment"
	"paygate/pkg/payment/types"
	"paygate/pkg/reconcile"
	"paygate/pkg/response"
)

// PaymentController 支付接口
type PaymentController struct {
	payments  *payment.Service
	reconcile *reconcile.Service
}

// NewPaymentController 创建支付控制器
func NewPaymentController(payments *payment.Service, reconciler *reconcile.Service) *PaymentController {
	return &PaymentController{
		payments:  payments,
		reconcile: reconciler,
	}
}

// TransactionView 交易详情
type TransactionView struct {
	TransactionNo  string     `json:"transactionNo"`
	UserID         uint64     `json:"userId"`
	Amount         string     `json:"amount"`
	PaymentMethod  string     `json:"paymentMethod"`
	Status         string     `json:"status"`
	Description    string     `json:"description,omitempty"`
	RiskLevel      string     `json:"riskLevel"`
	ReviewRequired bool       `json:"reviewRequired"`
	Attempts       *int       `json:"attempts,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt"`
}

func viewOf(txn *transaction.Transaction, detail *paymentdetail.PaymentDetail) TransactionView {
	view := TransactionView{
		TransactionNo:  txn.TransactionNo,
		UserID:         txn.UserID,
		Amount:         txn.Amount.StringFixed(2),
		PaymentMethod:  txn.PaymentMethod,
		Status:         strings.ToUpper(string(txn.Status)),
		Description:    txn.Description,
		RiskLevel:      txn.RiskLevel,
		ReviewRequired: txn.ReviewRequired,
		CreatedAt:      txn.CreatedAt,
		UpdatedAt:      txn.UpdatedAt,
		CompletedAt:    txn.CompletedAt,
	}
	if detail != nil {
		attempts := detail.Attempts
		view.Attempts = &attempts
		view.ErrorMessage = detail.ErrorMessage
	}
	return view
}

// Create 创建支付
// POST /v1/payments/create
func (pc *PaymentController) Create(c *gin.Context) {
	req, err := requests.ValidateCreatePayment(c)
	if err != nil {
		v1.RespondBindError(c, err)
		return
	}

	ctx := c.Request.Context()

	// 外部订单系统下单
	if req.OrderID != "" {
		result, err := pc.reconcile.RequestCreate(ctx, reconcile.CreateRequest{
			ExternalOrderID: req.OrderID,
			UserID:          req.UserID,
			Amount:          req.Amount,
			Method:          req.Method,
			Description:     req.Description,
			NotifyURL:       req.NotifyURL,
			ReturnURL:       req.ReturnURL,
			IP:              c.ClientIP(),
			UserAgent:       c.Request.UserAgent(),
		})
		if err != nil {
			v1.RespondError(c, err)
			return
		}

		data := gin.H{
			"paymentId":     result.PaymentID,
			"orderId":       result.OrderID,
			"transactionNo": result.TransactionNo,
			"paymentUrl":    result.PaymentURL,
			"expireTime":    result.ExpireTime.Format(time.RFC3339),
			"amount":        result.Amount.StringFixed(2),
			"paymentMethod": result.Method.External(),
			"status":        result.Status,
			"existing":      result.Existing,
		}
		if result.QRCode != "" {
			data["qrCode"] = result.QRCode
		}
		response.Data(c, data)
		return
	}

	txn, err := pc.payments.Create(ctx, payment.CreateRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Method:      req.Method,
		Description: req.Description,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		v1.RespondError(c, err)
		return
	}

	response.Data(c, gin.H{
		"transactionNo":  txn.TransactionNo,
		"payUrl":         pc.reconcile.PaymentURL(txn.TransactionNo),
		"amount":         txn.Amount.StringFixed(2),
		"paymentMethod":  txn.PaymentMethod,
		"status":         strings.ToUpper(string(txn.Status)),
		"riskLevel":      txn.RiskLevel,
		"reviewRequired": txn.ReviewRequired,
	})
}

// Query 查询支付
// GET|POST /v1/payments/query
func (pc *PaymentController) Query(c *gin.Context) {
	ref, err := requests.ValidatePaymentRef(c)
	if err != nil {
		v1.RespondBindError(c, err)
		return
	}

	if ref.PaymentID != "" {
		view, err := pc.reconcile.Query(c.Request.Context(), ref.PaymentID)
		if err != nil {
			v1.RespondError(c, err)
			return
		}
		response.Data(c, view)
		return
	}

	txn, detail, err := pc.payments.Query(c.Request.Context(), ref.TransactionNo)
	if err != nil {
		v1.RespondError(c, err)
		return
	}
	response.Data(c, viewOf(txn, detail))
}

// Process 发起扣款
// POST /v1/payments/process
func (pc *PaymentController) Process(c *gin.Context) {
	transactionNo, ok := pc.resolve(c)
	if !ok {
		return
	}

	result, err := pc.payments.Process(c.Request.Context(), transactionNo)
	if err != nil {
		v1.RespondError(c, err)
		return
	}

	data := gin.H{
		"transactionNo": result.Transaction.TransactionNo,
		"status":        strings.ToUpper(string(result.Transaction.Status)),
		"success":       result.Gateway.Outcome == types.OutcomeSuccess,
		"attempts":      result.Attempts,
		"canRetry":      result.CanRetry,
	}
	if result.Gateway.ProviderPaymentNo != "" {
		data["providerPaymentNo"] = result.Gateway.ProviderPaymentNo
	}
	if result.Gateway.PaymentURL != "" {
		data["paymentUrl"] = result.Gateway.PaymentURL
	}
	if result.Gateway.ErrorCode != "" {
		data["errorCode"] = result.Gateway.ErrorCode
		data["errorMessage"] = result.Gateway.ErrorMessage
	}
	response.Data(c, data)
}

// Retry 重新激活失败的交易
// POST /v1/payments/retry
func (pc *PaymentController) Retry(c *gin.Context) {
	transactionNo, ok := pc.resolve(c)
	if !ok {
		return
	}

	txn, err := pc.payments.Retry(c.Request.Context(), transactionNo)
	if err != nil {
		v1.RespondError(c, err)
		return
	}
	response.Data(c, viewOf(txn, nil))
}

// Cancel 取消支付
// POST /v1/payments/cancel
func (pc *PaymentController) Cancel(c *gin.Context) {
	ref, err := requests.ValidatePaymentRef(c)
	if err != nil {
		v1.RespondBindError(c, err)
		return
	}

	if ref.PaymentID != "" {
		result, err := pc.reconcile.Cancel(c.Request.Context(), ref.PaymentID, ref.Reason)
		if err != nil {
			v1.RespondError(c, err)
			return
		}
		response.Data(c, gin.H{
			"paymentId":  result.PaymentID,
			"status":     result.Status,
			"cancelTime": result.CancelTime.Format(time.RFC3339),
		})
		return
	}

	txn, err := pc.payments.Cancel(c.Request.Context(), ref.TransactionNo, ref.Reason)
	if err != nil {
		v1.RespondError(c, err)
		return
	}
	response.Data(c, gin.H{
		"transactionNo": txn.TransactionNo,
		"status":        reconcile.StatusCancelled,
		"cancelTime":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Callback 渠道回调
// POST /v1/payments/callback
func (pc *PaymentController) Callback(c *gin.Context) {
	req, err := requests.ValidateCallback(c)
	if err != nil {
		v1.RespondBindError(c, err)
		return
	}

	result, err := pc.reconcile.ReceiveCallback(c.Request.Context(), reconcile.Callback{
		PaymentID: req.PaymentID,
		Status:    req.Status,
		Signature: req.Signature,
		Fields:    req.Fields,
		Raw:       req.Raw,
	})
	if err != nil {
		v1.RespondError(c, err)
		return
	}

	if !result.Delivered {
		// 本地状态已更新，外部同步失败留待人工处理
		response.Data(c, gin.H{"warning": "订单状态同步失败，已加入待处理队列"})
		return
	}
	response.Success(c)
}

// Notify 真实渠道的异步支付通知
// POST /v1/payments/notify/:method
func (pc *PaymentController) Notify(c *gin.Context) {
	req, err := requests.ValidateProviderNotify(c)
	if err != nil {
		v1.RespondBindError(c, err)
		return
	}

	result, err := pc.payments.HandleProviderNotify(c.Request.Context(), payment.ProviderNotice{
		Method: req.Method,
		Fields: req.Fields,
		Raw:    req.Raw,
	})
	if err != nil {
		v1.RespondError(c, err)
		return
	}

	// 支付宝只认纯文本 success，否则会持续重发
	if req.Method == types.MethodAlipay {
		c.String(http.StatusOK, "success")
		return
	}
	response.Data(c, gin.H{
		"transactionNo": result.Transaction.TransactionNo,
		"status":        strings.ToUpper(string(result.Transaction.Status)),
		"changed":       result.Changed,
	})
}

// History 用户历史交易
// GET /v1/users/:user_id/transactions
func (pc *PaymentController) History(c *gin.Context) {
	userID, err := cast.ToUint64E(c.Param("user_id"))
	if err != nil || userID == 0 {
		response.Abort400(c, "用户 ID 无效")
		return
	}
	page, pageSize := requests.Pagination(c)

	txns, total, err := pc.payments.History(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		v1.RespondError(c, err)
		return
	}

	items := make([]TransactionView, 0, len(txns))
	for i := range txns {
		items = append(items, viewOf(&txns[i], nil))
	}
	response.Data(c, gin.H{
		"items": items,
		"total": total,
		"page":  page,
	})
}

// resolve 取交易号，只给了支付 ID 时通过映射查找
func (pc *PaymentController) resolve(c *gin.Context) (string, bool) {
	ref, err := requests.ValidatePaymentRef(c)
	if err != nil {
		v1.RespondBindError(c, err)
		return "", false
	}
	if ref.TransactionNo != "" {
		return ref.TransactionNo, true
	}

	view, err := pc.reconcile.Query(c.Request.Context(), ref.PaymentID)
	if err != nil {
		v1.RespondError(c, err)
		return "", false
	}
	return view.TransactionNo, true
}
