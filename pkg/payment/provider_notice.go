package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"paygate/app/models"
	"paygate/app/models/transaction"
	"paygate/pkg/logger"
	"paygate/pkg/payment/types"
)

// ProviderNotice 渠道原生的异步通知，字段原样保留用于验签
type ProviderNotice struct {
	Method types.Method
	Fields map[string]string
	Raw    models.JSON
}

// NoticeResult 通知处理结果
type NoticeResult struct {
	Transaction *transaction.Transaction
	// Changed 本次通知推进了交易状态
	Changed bool
	// Settled 通知里的交易状态是终局结果，未终局的通知只做确认
	Settled bool
}

// 不参与签名的字段
var unsignedFields = map[string]bool{"sign": true, "sign_type": true, "signature": true}

// HandleProviderNotify 处理真实渠道的支付通知：按商户订单号找到交易，
// 用该渠道的验签规则校验，再按通知里的交易状态推进
func (s *Service) HandleProviderNotify(ctx context.Context, n ProviderNotice) (*NoticeResult, error) {
	gw, err := s.gateways.Get(n.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	transactionNo := firstField(n.Fields, "out_trade_no", "transaction_no", "transactionNo")
	if transactionNo == "" {
		return nil, fmt.Errorf("%w: out_trade_no is required", ErrValidation)
	}

	signature := firstField(n.Fields, "sign", "signature")
	signed := make(map[string]string, len(n.Fields))
	for k, v := range n.Fields {
		if !unsignedFields[k] {
			signed[k] = v
		}
	}
	if signature == "" || !gw.VerifySignature(signed, signature) {
		logger.WarnString("Payment", "Notify", fmt.Sprintf("%s notice for %s failed verification", n.Method, transactionNo))
		return nil, ErrInvalidSignature
	}

	txn, err := s.Get(ctx, transactionNo)
	if err != nil {
		return nil, err
	}
	if txn.PaymentMethod != string(n.Method) {
		return nil, fmt.Errorf("%w: %s was paid with %s", ErrValidation, transactionNo, txn.PaymentMethod)
	}

	success, settled := noticeOutcome(n.Fields)
	out := &NoticeResult{Transaction: txn, Settled: settled}
	if !settled {
		logger.InfoString("Payment", "Notify", fmt.Sprintf("%s notice for %s is not final yet", n.Method, transactionNo))
		return out, nil
	}

	out.Changed, err = s.ApplyCallbackStatus(ctx, txn, success, n.Raw)
	if err != nil {
		return nil, err
	}
	if !out.Changed {
		return out, nil
	}

	dbCtx := context.WithoutCancel(ctx)
	attempts := 0
	detail, err := s.txns.GetDetail(dbCtx, txn.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.ErrorString("Payment", "Notify", fmt.Sprintf("load detail for %s: %v", transactionNo, err))
	}
	if detail != nil {
		attempts = detail.Attempts
	}
	if txn.IsFinal(attempts, s.cfg.RetryLimit) {
		s.fireTerminal(dbCtx, txn)
	}
	return out, nil
}

// noticeOutcome 读取通知中的交易状态，兼容支付宝 trade_status 和微信 trade_state
func noticeOutcome(fields map[string]string) (success, settled bool) {
	status := strings.ToUpper(firstField(fields, "trade_status", "trade_state", "status"))
	switch status {
	case "TRADE_SUCCESS", "TRADE_FINISHED", "SUCCESS":
		return true, true
	case "TRADE_CLOSED", "CLOSED", "PAYERROR", "REVOKED", "FAILED":
		return false, true
	}
	return false, false
}

func firstField(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}
