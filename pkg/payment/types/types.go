package types

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Method 支付方式
type Method string

const (
	MethodAlipay     Method = "alipay"
	MethodWechat     Method = "wechat"
	MethodBankCard   Method = "bank_card"
	MethodCreditCard Method = "credit_card"
)

// Methods 全部支持的支付方式
var Methods = []Method{MethodAlipay, MethodWechat, MethodBankCard, MethodCreditCard}

// Valid 是否为支持的支付方式
func (m Method) Valid() bool {
	for _, v := range Methods {
		if v == m {
			return true
		}
	}
	return false
}

// External 外部系统使用的支付方式名称
func (m Method) External() string {
	switch m {
	case MethodAlipay:
		return "ALIPAY"
	case MethodWechat:
		return "WECHAT"
	case MethodBankCard:
		return "UNIONPAY"
	case MethodCreditCard:
		return "CREDIT_CARD"
	}
	return ""
}

// ParseMethod 解析本地或外部系统的支付方式名称
func ParseMethod(s string) (Method, error) {
	switch s {
	case "alipay", "ALIPAY":
		return MethodAlipay, nil
	case "wechat", "WECHAT":
		return MethodWechat, nil
	case "bank_card", "UNIONPAY":
		return MethodBankCard, nil
	case "credit_card", "CREDIT_CARD":
		return MethodCreditCard, nil
	}
	return "", fmt.Errorf("unsupported payment method: %q", s)
}

// Outcome 渠道处理结果
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	// OutcomePending 真实渠道下单成功，等待用户支付后回调
	OutcomePending Outcome = "pending"
)

// Attempt 一次支付请求的规范化内容，各渠道据此签名
type Attempt struct {
	TransactionNo string
	Amount        decimal.Decimal
	Description   string
	Timestamp     time.Time
}

// Fields 参与签名的字段
func (a Attempt) Fields() map[string]string {
	return map[string]string{
		"transaction_no": a.TransactionNo,
		"amount":         a.Amount.StringFixed(2),
		"description":    a.Description,
		"timestamp":      fmt.Sprintf("%d", a.Timestamp.Unix()),
	}
}

// Result 渠道返回
type Result struct {
	Outcome           Outcome           `json:"outcome"`
	Method            Method            `json:"method"`
	ProviderPaymentNo string            `json:"provider_payment_no,omitempty"`
	Signature         string            `json:"signature,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	ErrorCode         string            `json:"error_code,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	PaymentURL        string            `json:"payment_url,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// Succeeded 渠道确认扣款成功
func (r *Result) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Gateway 支付渠道接口
type Gateway interface {
	Method() Method
	CreatePayment(ctx context.Context, attempt Attempt) (*Result, error)
	VerifySignature(fields map[string]string, signature string) bool
}

// Config 模拟渠道配置
type Config struct {
	SuccessRate float64
	MinLatency  time.Duration
	MaxLatency  time.Duration
	Secret      string
}

// Validate 检查配置是否合理
func (c Config) Validate() error {
	if c.SuccessRate < 0 || c.SuccessRate > 1 {
		return fmt.Errorf("success rate must be within [0,1], got %v", c.SuccessRate)
	}
	if c.MinLatency < 0 || c.MaxLatency < c.MinLatency {
		return fmt.Errorf("invalid latency range [%s,%s]", c.MinLatency, c.MaxLatency)
	}
	if c.Secret == "" {
		return fmt.Errorf("signing secret is required")
	}
	return nil
}
