package alipay

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/smartwalle/alipay/v3"

	"paygate/pkg/payment/types"
)

// LiveConfig 支付宝开放平台配置
type LiveConfig struct {
	AppID        string
	PrivateKey   string
	PublicKey    string
	NotifyURL    string
	ReturnURL    string
	IsProduction bool
}

// LiveGateway 电脑网站支付，下单后等待异步通知
type LiveGateway struct {
	client    *alipay.Client
	notifyURL string
	returnURL string
}

// NewLive 创建支付宝真实渠道
func NewLive(config LiveConfig) (*LiveGateway, error) {
	client, err := alipay.New(config.AppID, config.PrivateKey, config.IsProduction)
	if err != nil {
		return nil, fmt.Errorf("create alipay client error: %w", err)
	}

	if err := client.LoadAliPayPublicKey(config.PublicKey); err != nil {
		return nil, fmt.Errorf("load alipay public key error: %w", err)
	}

	return &LiveGateway{
		client:    client,
		notifyURL: config.NotifyURL,
		returnURL: config.ReturnURL,
	}, nil
}

// Method 支付方式
func (g *LiveGateway) Method() types.Method {
	return types.MethodAlipay
}

// CreatePayment 生成支付页链接
func (g *LiveGateway) CreatePayment(ctx context.Context, attempt types.Attempt) (*types.Result, error) {
	trade := alipay.TradePagePay{}
	trade.NotifyURL = g.notifyURL
	trade.ReturnURL = g.returnURL
	trade.Subject = attempt.Description
	trade.OutTradeNo = attempt.TransactionNo
	trade.TotalAmount = attempt.Amount.StringFixed(2)
	trade.ProductCode = "FAST_INSTANT_TRADE_PAY"

	payURL, err := g.client.TradePagePay(trade)
	if err != nil {
		return nil, fmt.Errorf("create alipay payment error: %w", err)
	}

	return &types.Result{
		Outcome:    types.OutcomePending,
		Method:     types.MethodAlipay,
		Timestamp:  time.Now().UTC(),
		PaymentURL: payURL.String(),
	}, nil
}

// VerifySignature 使用支付宝公钥校验异步通知
func (g *LiveGateway) VerifySignature(fields map[string]string, signature string) bool {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("sign", signature)
	return g.client.VerifySign(values) == nil
}
