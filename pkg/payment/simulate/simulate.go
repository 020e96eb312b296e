// Package simulate 模拟支付渠道：按配置的延迟和成功率返回结果
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"paygate/pkg/payment/types"
	"paygate/pkg/payment/utils"
)

// ErrorCode 渠道错误码
type ErrorCode struct {
	Code    string
	Message string
}

// Profile 各渠道的差异部分
type Profile struct {
	Method     types.Method
	Prefix     string
	ErrorCodes []ErrorCode
	// Sign 对规范化字段签名
	Sign func(fields map[string]string) string
	// Extra 成功时附加的渠道信息，可为空
	Extra func() map[string]string
}

// Gateway 模拟渠道
type Gateway struct {
	cfg     types.Config
	profile Profile
	now     func() time.Time
}

// New 创建模拟渠道
func New(cfg types.Config, profile Profile) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s gateway config: %w", profile.Method, err)
	}
	if profile.Sign == nil || len(profile.ErrorCodes) == 0 {
		return nil, fmt.Errorf("%s gateway: signer and error codes are required", profile.Method)
	}
	return &Gateway{
		cfg:     cfg,
		profile: profile,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Method 支付方式
func (g *Gateway) Method() types.Method {
	return g.profile.Method
}

// CreatePayment 模拟一次扣款
func (g *Gateway) CreatePayment(ctx context.Context, attempt types.Attempt) (*types.Result, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	now := g.now()
	result := &types.Result{
		Method:    g.profile.Method,
		Signature: g.profile.Sign(attempt.Fields()),
		Timestamp: now,
	}

	if rand.Float64() < g.cfg.SuccessRate {
		result.Outcome = types.OutcomeSuccess
		result.ProviderPaymentNo = fmt.Sprintf("%s%s%04d", g.profile.Prefix, now.Format("20060102150405"), rand.IntN(10000))
		if g.profile.Extra != nil {
			result.Extra = g.profile.Extra()
		}
		return result, nil
	}

	code := g.profile.ErrorCodes[rand.IntN(len(g.profile.ErrorCodes))]
	result.Outcome = types.OutcomeFailed
	result.ErrorCode = code.Code
	result.ErrorMessage = code.Message
	return result, nil
}

// VerifySignature 校验签名
func (g *Gateway) VerifySignature(fields map[string]string, signature string) bool {
	return utils.EqualSignature(g.profile.Sign(fields), signature)
}

// wait 模拟渠道处理耗时，可被 ctx 取消
func (g *Gateway) wait(ctx context.Context) error {
	latency := g.cfg.MinLatency
	if span := g.cfg.MaxLatency - g.cfg.MinLatency; span > 0 {
		latency += time.Duration(rand.Int64N(int64(span) + 1))
	}
	if latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pick 从候选项中随机选一个
func Pick(options []string) string {
	return options[rand.IntN(len(options))]
}
