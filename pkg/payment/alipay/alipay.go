// Package alipay 支付宝渠道：模拟实现与基于官方 SDK 的真实实现
package alipay

import (
	"paygate/pkg/payment/simulate"
	"paygate/pkg/payment/types"
	"paygate/pkg/payment/utils"
)

var errorCodes = []simulate.ErrorCode{
	{Code: "INSUFFICIENT_BALANCE", Message: "余额不足"},
	{Code: "PAYMENT_TIMEOUT", Message: "支付超时"},
	{Code: "NETWORK_ERROR", Message: "网络错误"},
	{Code: "INVALID_ACCOUNT", Message: "账户异常"},
}

// Sign 排序后的 query 串做 HMAC-SHA256
func Sign(fields map[string]string, secret string) string {
	return utils.HMACSHA256(utils.SortedQuery(fields), secret)
}

// NewSimulated 创建模拟的支付宝渠道
func NewSimulated(cfg types.Config) (*simulate.Gateway, error) {
	return simulate.New(cfg, simulate.Profile{
		Method:     types.MethodAlipay,
		Prefix:     "ALIPAY_",
		ErrorCodes: errorCodes,
		Sign: func(fields map[string]string) string {
			return Sign(fields, cfg.Secret)
		},
	})
}
