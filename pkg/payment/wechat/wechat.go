// Package wechat 微信支付渠道
package wechat

import (
	"paygate/pkg/payment/simulate"
	"paygate/pkg/payment/types"
	"paygate/pkg/payment/utils"
)

var errorCodes = []simulate.ErrorCode{
	{Code: "USER_CANCEL", Message: "用户取消支付"},
	{Code: "BALANCE_NOT_ENOUGH", Message: "零钱余额不足"},
	{Code: "SYSTEM_ERROR", Message: "系统繁忙"},
	{Code: "AUTH_FAILED", Message: "身份验证失败"},
}

// Sign 排序后的 k=v& 串拼接 key=密钥，取大写 MD5
func Sign(fields map[string]string, apiKey string) string {
	return utils.KeyedMD5(fields, apiKey)
}

// NewSimulated 创建模拟的微信支付渠道
func NewSimulated(cfg types.Config) (*simulate.Gateway, error) {
	return simulate.New(cfg, simulate.Profile{
		Method:     types.MethodWechat,
		Prefix:     "WECHAT_",
		ErrorCodes: errorCodes,
		Sign: func(fields map[string]string) string {
			return Sign(fields, cfg.Secret)
		},
	})
}
