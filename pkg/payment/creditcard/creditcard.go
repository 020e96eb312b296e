// Package creditcard 信用卡渠道
package creditcard

import (
	"paygate/pkg/payment/simulate"
	"paygate/pkg/payment/types"
	"paygate/pkg/payment/utils"
)

var errorCodes = []simulate.ErrorCode{
	{Code: "CARD_EXPIRED", Message: "信用卡已过期"},
	{Code: "CVV_ERROR", Message: "安全码错误"},
	{Code: "CREDIT_LIMIT", Message: "超出信用额度"},
	{Code: "CARD_BLOCKED", Message: "信用卡已锁定"},
	{Code: "ISSUER_DECLINED", Message: "发卡行拒绝"},
}

var cardTypes = []string{"VISA", "MASTERCARD", "UNIONPAY", "AMEX", "JCB"}

// Sign 排序后的 JSON 做 HMAC-SHA512
func Sign(fields map[string]string, secret string) string {
	return utils.HMACSHA512(utils.SortedJSON(fields, true), secret)
}

// NewSimulated 创建模拟的信用卡渠道
func NewSimulated(cfg types.Config) (*simulate.Gateway, error) {
	return simulate.New(cfg, simulate.Profile{
		Method:     types.MethodCreditCard,
		Prefix:     "CREDIT_",
		ErrorCodes: errorCodes,
		Sign: func(fields map[string]string) string {
			return Sign(fields, cfg.Secret)
		},
		Extra: func() map[string]string {
			return map[string]string{"card_type": simulate.Pick(cardTypes)}
		},
	})
}
