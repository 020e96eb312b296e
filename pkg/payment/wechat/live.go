package wechat

import (
	"context"
	"fmt"
	"time"

	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/option"
	"github.com/wechatpay-apiv3/wechatpay-go/services/payments/jsapi"
	wxutils "github.com/wechatpay-apiv3/wechatpay-go/utils"

	"paygate/pkg/payment/types"
	"paygate/pkg/payment/utils"
)

// LiveConfig 微信支付商户配置
type LiveConfig struct {
	AppID      string
	MchID      string
	SerialNo   string
	PrivateKey string
	APIv3Key   string
	NotifyURL  string
	// 回调签名密钥
	Secret string
}

// LiveGateway JSAPI 下单，下单成功后等待支付通知
type LiveGateway struct {
	client    *core.Client
	appID     string
	mchID     string
	notifyURL string
	secret    string
}

// NewLive 创建微信支付真实渠道
func NewLive(ctx context.Context, config LiveConfig) (*LiveGateway, error) {
	// 1. 加载商户私钥
	mchPrivateKey, err := wxutils.LoadPrivateKey(config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load merchant private key error: %w", err)
	}

	// 2. 自动获取平台证书
	opts := []core.ClientOption{
		option.WithWechatPayAutoAuthCipher(
			config.MchID,
			config.SerialNo,
			mchPrivateKey,
			config.APIv3Key,
		),
	}

	// 3. 创建客户端
	client, err := core.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create wechat pay client error: %w", err)
	}

	return &LiveGateway{
		client:    client,
		appID:     config.AppID,
		mchID:     config.MchID,
		notifyURL: config.NotifyURL,
		secret:    config.Secret,
	}, nil
}

// Method 支付方式
func (g *LiveGateway) Method() types.Method {
	return types.MethodWechat
}

// CreatePayment 预下单，返回 prepay_id
func (g *LiveGateway) CreatePayment(ctx context.Context, attempt types.Attempt) (*types.Result, error) {
	svc := jsapi.JsapiApiService{Client: g.client}
	prepayResp, result, err := svc.Prepay(ctx, jsapi.PrepayRequest{
		Appid:       core.String(g.appID),
		Mchid:       core.String(g.mchID),
		Description: core.String(attempt.Description),
		OutTradeNo:  core.String(attempt.TransactionNo),
		NotifyUrl:   core.String(g.notifyURL),
		Amount: &jsapi.Amount{
			// 单位为分
			Total:    core.Int64(attempt.Amount.Shift(2).IntPart()),
			Currency: core.String("CNY"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create wechat payment error: %w", err)
	}
	if result != nil && result.Response.StatusCode != 200 {
		return nil, fmt.Errorf("create wechat payment failed with status code: %d", result.Response.StatusCode)
	}

	return prepayResult(g.appID, prepayResp)
}

// prepayResult 渠道返回 200 但缺少 prepay_id 时按下单失败处理
func prepayResult(appID string, resp *jsapi.PrepayResponse) (*types.Result, error) {
	if resp == nil || resp.PrepayId == nil || *resp.PrepayId == "" {
		return nil, fmt.Errorf("create wechat payment: response carries no prepay_id")
	}

	prepayID := *resp.PrepayId
	return &types.Result{
		Outcome:           types.OutcomePending,
		Method:            types.MethodWechat,
		ProviderPaymentNo: prepayID,
		Timestamp:         time.Now().UTC(),
		Extra: map[string]string{
			"appId":    appID,
			"nonceStr": utils.GenerateNonceStr(),
			"package":  "prepay_id=" + prepayID,
		},
	}, nil
}

// VerifySignature 校验回调签名
func (g *LiveGateway) VerifySignature(fields map[string]string, signature string) bool {
	return utils.EqualSignature(Sign(fields, g.secret), signature)
}
