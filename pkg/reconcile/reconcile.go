// Package reconcile 外部订单系统对接：幂等下单、状态推送与渠道回调
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"paygate/app/models"
	"paygate/app/models/ordermapping"
	"paygate/app/models/transaction"
	"paygate/app/repositories"
	"paygate/pkg/database"
	"paygate/pkg/logger"
	"paygate/pkg/payment"
	"paygate/pkg/payment/types"
	"paygate/pkg/payment/utils"
)

var (
	// ErrNotFound 支付 ID 不存在
	ErrNotFound = errors.New("payment not found")
	// ErrInvalidSignature 回调签名校验失败
	ErrInvalidSignature = errors.New("invalid callback signature")
)

// 外部系统使用的状态
const (
	StatusPending   = "PENDING"
	StatusSuccess   = "SUCCESS"
	StatusPaid      = "PAID"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// DeliveryStatus 本地终态对应的推送状态，非终态不推送
func DeliveryStatus(s transaction.Status) (string, bool) {
	switch s {
	case transaction.StatusSuccess:
		return StatusPaid, true
	case transaction.StatusFailed:
		return StatusFailed, true
	case transaction.StatusCancelled, transaction.StatusTimeout:
		return StatusCancelled, true
	}
	return "", false
}

// QueryStatus 查询接口返回的外部状态
func QueryStatus(s transaction.Status) string {
	switch s {
	case transaction.StatusSuccess:
		return StatusSuccess
	case transaction.StatusFailed:
		return StatusFailed
	case transaction.StatusCancelled, transaction.StatusTimeout:
		return StatusCancelled
	}
	return StatusPending
}

// Config 对接配置
type Config struct {
	ExternalSystem  string
	OrderUpdateURL  string
	InternalToken   string
	Timeout         time.Duration
	MaxRetries      int
	RetryInterval   time.Duration
	CallbackSecret  string
	VerifySignature bool
	// BaseURL 拼接收银台地址
	BaseURL       string
	PaymentExpire time.Duration
}

// CreateRequest 外部系统下单
type CreateRequest struct {
	ExternalOrderID string
	UserID          uint64
	Amount          decimal.Decimal
	Method          types.Method
	Description     string
	NotifyURL       string
	ReturnURL       string
	IP              string
	UserAgent       string
}

// CreateResult 下单结果，Existing 表示命中已有映射
type CreateResult struct {
	PaymentID     string
	OrderID       string
	TransactionNo string
	PaymentURL    string
	ExpireTime    time.Time
	Amount        decimal.Decimal
	Method        types.Method
	Status        string
	Existing      bool
	// QRCode 支付宝、微信下单时附带的收银台二维码
	QRCode string
}

// Callback 渠道回调
type Callback struct {
	PaymentID string
	Status    string
	Signature string
	// Fields 参与签名的全部字段
	Fields map[string]string
	Raw    models.JSON
}

// CallbackResult 回调处理结果
type CallbackResult struct {
	// Duplicate 该支付已推送成功，本次未做任何修改
	Duplicate bool
	Delivered bool
	Status    string
}

// CancelResult 取消结果
type CancelResult struct {
	PaymentID  string
	Status     string
	CancelTime time.Time
	Delivered  bool
}

// PaymentView 对外的支付状态
type PaymentView struct {
	PaymentID     string     `json:"paymentId"`
	OrderID       string     `json:"orderId"`
	TransactionNo string     `json:"transactionNo"`
	Status        string     `json:"status"`
	Amount        float64    `json:"amount"`
	PaidAmount    float64    `json:"paidAmount"`
	PaymentMethod string     `json:"paymentMethod"`
	PaidTime      *time.Time `json:"paidTime"`
	FailReason    *string    `json:"failReason"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Service 外部订单对接服务
type Service struct {
	cfg       Config
	payments  *payment.Service
	mappings  *repositories.OrderMappingRepository
	deliverer Deliverer
	now       func() time.Time
}

// NewService 创建对接服务，并订阅交易终态以推送状态
func NewService(db *gorm.DB, cfg Config, payments *payment.Service, deliverer Deliverer) *Service {
	if cfg.ExternalSystem == "" {
		cfg.ExternalSystem = "booking_panel"
	}
	if cfg.PaymentExpire <= 0 {
		cfg.PaymentExpire = payments.Config().Timeout
	}
	if deliverer == nil {
		deliverer = NewClient(cfg)
	}

	s := &Service{
		cfg:       cfg,
		payments:  payments,
		mappings:  repositories.NewOrderMappingRepository(db),
		deliverer: deliverer,
		now:       func() time.Time { return time.Now().UTC() },
	}
	payments.Subscribe(s)
	return s
}

// RequestCreate 按 (外部系统, 外部订单号) 幂等创建交易
func (s *Service) RequestCreate(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if strings.TrimSpace(req.ExternalOrderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", payment.ErrValidation)
	}

	existing, err := s.mappings.GetByExternal(ctx, s.cfg.ExternalSystem, req.ExternalOrderID)
	if err == nil {
		return s.existingResult(ctx, existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup order %s: %w", req.ExternalOrderID, err)
	}

	var mapping *ordermapping.OrderMapping
	txn, err := s.payments.Create(ctx, payment.CreateRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Method:      req.Method,
		Description: req.Description,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
	}, func(tx *gorm.DB, txn *transaction.Transaction) error {
		mapping = &ordermapping.OrderMapping{
			TransactionID:   txn.ID,
			ExternalSystem:  s.cfg.ExternalSystem,
			ExternalOrderID: req.ExternalOrderID,
			PaymentID:       utils.GeneratePaymentID(),
			NotifyURL:       req.NotifyURL,
			ReturnURL:       req.ReturnURL,
			DeliveryStatus:  ordermapping.DeliveryNone,
		}
		return s.mappings.WithTx(tx).Create(ctx, mapping)
	})
	if err != nil {
		// 并发请求抢先写入了映射，整笔创建已回滚
		if database.IsDuplicateKey(err) {
			if existing, lookupErr := s.mappings.GetByExternal(ctx, s.cfg.ExternalSystem, req.ExternalOrderID); lookupErr == nil {
				return s.existingResult(ctx, existing)
			}
		}
		return nil, err
	}

	logger.InfoString("Reconcile", "Create", fmt.Sprintf("order %s -> %s (%s)", req.ExternalOrderID, mapping.PaymentID, txn.TransactionNo))
	return s.result(mapping, txn, false), nil
}

func (s *Service) existingResult(ctx context.Context, mapping *ordermapping.OrderMapping) (*CreateResult, error) {
	txn, err := s.payments.GetByID(ctx, mapping.TransactionID)
	if err != nil {
		return nil, err
	}
	logger.InfoString("Reconcile", "Create", fmt.Sprintf("order %s already mapped to %s", mapping.ExternalOrderID, mapping.PaymentID))
	return s.result(mapping, txn, true), nil
}

func (s *Service) result(mapping *ordermapping.OrderMapping, txn *transaction.Transaction, existing bool) *CreateResult {
	out := &CreateResult{
		PaymentID:     mapping.PaymentID,
		OrderID:       mapping.ExternalOrderID,
		TransactionNo: txn.TransactionNo,
		PaymentURL:    s.PaymentURL(txn.TransactionNo),
		ExpireTime:    txn.CreatedAt.Add(s.cfg.PaymentExpire),
		Amount:        txn.Amount,
		Method:        types.Method(txn.PaymentMethod),
		Status:        QueryStatus(txn.Status),
		Existing:      existing,
	}
	if scanToPay(out.Method) {
		out.QRCode = QRCode(out.PaymentURL)
	}
	return out
}

// PaymentURL 收银台地址
func (s *Service) PaymentURL(transactionNo string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/pay?transaction_no=" + url.QueryEscape(transactionNo)
}

// DeliverStatus 推送交易终态，返回是否推送成功
// 推送失败只记录在映射上并标记人工处理，不作为错误返回
func (s *Service) DeliverStatus(ctx context.Context, mapping *ordermapping.OrderMapping, txn *transaction.Transaction) (bool, error) {
	status, ok := DeliveryStatus(txn.Status)
	if !ok {
		return false, nil
	}

	paymentTime := txn.UpdatedAt
	if txn.CompletedAt != nil {
		paymentTime = *txn.CompletedAt
	}
	if paymentTime.IsZero() {
		paymentTime = s.now()
	}

	delivery := s.deliverer.Send(ctx, StatusUpdate{
		OrderID:     mapping.ExternalOrderID,
		Status:      status,
		PaymentID:   mapping.PaymentID,
		PaymentTime: paymentTime.Format(time.RFC3339),
	})

	fields := map[string]interface{}{
		"delivered_status":  status,
		"delivery_attempts": gorm.Expr("delivery_attempts + ?", delivery.Attempts),
		"delivery_response": deliveryResponse(delivery),
	}
	if delivery.Success {
		deliveredAt := s.now()
		fields["delivery_status"] = ordermapping.DeliverySuccess
		fields["needs_manual"] = false
		fields["delivered_at"] = deliveredAt
		mapping.DeliveryStatus = ordermapping.DeliverySuccess
		mapping.NeedsManual = false
		mapping.DeliveredAt = &deliveredAt
	} else {
		fields["delivery_status"] = ordermapping.DeliveryFailed
		fields["needs_manual"] = true
		mapping.DeliveryStatus = ordermapping.DeliveryFailed
		mapping.NeedsManual = true
		logger.ErrorString("Reconcile", "NeedsManual", fmt.Sprintf("payment %s order %s: %v",
			mapping.PaymentID, mapping.ExternalOrderID, delivery.Err))
	}
	mapping.DeliveredStatus = status
	mapping.DeliveryAttempts += delivery.Attempts

	if err := s.mappings.UpdateDelivery(context.WithoutCancel(ctx), mapping.ID, fields); err != nil {
		return delivery.Success, fmt.Errorf("save delivery result for %s: %w", mapping.PaymentID, err)
	}
	return delivery.Success, nil
}

func deliveryResponse(d Delivery) string {
	if d.Response != "" {
		return d.Response
	}
	if d.Err != nil {
		return d.Err.Error()
	}
	return ""
}

// ReceiveCallback 处理渠道回调，已推送成功的支付直接返回
func (s *Service) ReceiveCallback(ctx context.Context, cb Callback) (*CallbackResult, error) {
	if cb.PaymentID == "" {
		return nil, fmt.Errorf("%w: paymentId is required", payment.ErrValidation)
	}

	mapping, err := s.mapping(ctx, cb.PaymentID)
	if err != nil {
		return nil, err
	}
	if mapping.DeliveryStatus == ordermapping.DeliverySuccess {
		logger.InfoString("Reconcile", "Callback", fmt.Sprintf("payment %s already delivered", cb.PaymentID))
		return &CallbackResult{Duplicate: true, Delivered: true, Status: mapping.DeliveredStatus}, nil
	}

	if s.cfg.VerifySignature && !VerifyCallback(cb.Fields, cb.Signature, s.cfg.CallbackSecret) {
		logger.WarnString("Reconcile", "Callback", fmt.Sprintf("payment %s signature mismatch", cb.PaymentID))
		return nil, ErrInvalidSignature
	}

	txn, err := s.payments.GetByID(ctx, mapping.TransactionID)
	if err != nil {
		return nil, err
	}

	success := strings.EqualFold(cb.Status, StatusSuccess)
	if _, err := s.payments.ApplyCallbackStatus(ctx, txn, success, cb.Raw); err != nil {
		return nil, err
	}

	delivered, err := s.DeliverStatus(ctx, mapping, txn)
	if err != nil {
		logger.ErrorString("Reconcile", "Callback", err.Error())
	}
	status, _ := DeliveryStatus(txn.Status)
	return &CallbackResult{Delivered: delivered, Status: status}, nil
}

// Cancel 按支付 ID 取消，取消结果随终态推送给外部系统
func (s *Service) Cancel(ctx context.Context, paymentID, reason string) (*CancelResult, error) {
	mapping, err := s.mapping(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	txn, err := s.payments.GetByID(ctx, mapping.TransactionID)
	if err != nil {
		return nil, err
	}

	if _, err := s.payments.Cancel(ctx, txn.TransactionNo, reason); err != nil {
		return nil, err
	}

	// 终态观察者已经完成推送，重新读取推送结果
	delivered := false
	if latest, err := s.mappings.GetByPaymentID(ctx, paymentID); err == nil {
		delivered = latest.Delivered(StatusCancelled)
	}
	return &CancelResult{
		PaymentID:  paymentID,
		Status:     StatusCancelled,
		CancelTime: s.now(),
		Delivered:  delivered,
	}, nil
}

// Query 按支付 ID 查询外部视角的支付状态
func (s *Service) Query(ctx context.Context, paymentID string) (*PaymentView, error) {
	mapping, err := s.mapping(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	txn, err := s.payments.GetByID(ctx, mapping.TransactionID)
	if err != nil {
		return nil, err
	}
	detail, err := s.payments.Detail(ctx, txn.ID)
	if err != nil {
		return nil, err
	}

	status := QueryStatus(txn.Status)
	view := &PaymentView{
		PaymentID:     mapping.PaymentID,
		OrderID:       mapping.ExternalOrderID,
		TransactionNo: txn.TransactionNo,
		Status:        status,
		Amount:        txn.Amount.InexactFloat64(),
		PaymentMethod: types.Method(txn.PaymentMethod).External(),
		CreatedAt:     txn.CreatedAt,
	}
	if status == StatusSuccess {
		view.PaidAmount = view.Amount
		view.PaidTime = txn.CompletedAt
	}
	if status == StatusFailed {
		reason := detail.ErrorMessage
		if reason == "" {
			reason = "payment failed"
		}
		view.FailReason = &reason
	}
	return view, nil
}

// Redeliver 人工触发重新推送
func (s *Service) Redeliver(ctx context.Context, paymentID string) (bool, error) {
	mapping, err := s.mapping(ctx, paymentID)
	if err != nil {
		return false, err
	}
	txn, err := s.payments.GetByID(ctx, mapping.TransactionID)
	if err != nil {
		return false, err
	}
	if _, ok := DeliveryStatus(txn.Status); !ok {
		return false, fmt.Errorf("%w: %s is still %s", payment.ErrStateConflict, txn.TransactionNo, txn.Status)
	}
	return s.DeliverStatus(ctx, mapping, txn)
}

// ListUndelivered 推送失败待人工处理的映射
func (s *Service) ListUndelivered(ctx context.Context, page, pageSize int) ([]ordermapping.OrderMapping, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.mappings.ListNeedsManual(ctx, page, pageSize)
}

// OnTerminal 交易进入终态后推送给外部系统，没有映射的交易忽略
func (s *Service) OnTerminal(ctx context.Context, txn *transaction.Transaction) {
	mapping, err := s.mappings.GetByTransactionID(ctx, txn.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.ErrorString("Reconcile", "OnTerminal", err.Error())
		}
		return
	}

	status, ok := DeliveryStatus(txn.Status)
	if !ok || mapping.Delivered(status) {
		return
	}
	if _, err := s.DeliverStatus(ctx, mapping, txn); err != nil {
		logger.ErrorString("Reconcile", "OnTerminal", err.Error())
	}
}

func (s *Service) mapping(ctx context.Context, paymentID string) (*ordermapping.OrderMapping, error) {
	mapping, err := s.mappings.GetByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, paymentID)
		}
		return nil, fmt.Errorf("lookup payment %s: %w", paymentID, err)
	}
	return mapping, nil
}
