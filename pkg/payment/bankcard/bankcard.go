// Package bankcard 银行卡（借记卡）渠道
package bankcard

import (
	"paygate/pkg/payment/simulate"
	"paygate/pkg/payment/types"
	"paygate/pkg/payment/utils"
)

var errorCodes = []simulate.ErrorCode{
	{Code: "CARD_INVALID", Message: "银行卡无效"},
	{Code: "INSUFFICIENT_FUNDS", Message: "余额不足"},
	{Code: "CARD_LOCKED", Message: "银行卡已冻结"},
	{Code: "PIN_ERROR", Message: "密码错误"},
	{Code: "TRANSACTION_LIMIT", Message: "超出交易限额"},
}

var banks = []string{"工商银行", "建设银行", "农业银行", "中国银行", "招商银行", "交通银行"}

// Sign 排序后的 JSON（不转义）做 HMAC-SHA256
func Sign(fields map[string]string, secret string) string {
	return utils.HMACSHA256(utils.SortedJSON(fields, false), secret)
}

// NewSimulated 创建模拟的银行卡渠道
func NewSimulated(cfg types.Config) (*simulate.Gateway, error) {
	return simulate.New(cfg, simulate.Profile{
		Method:     types.MethodBankCard,
		Prefix:     "BANK_",
		ErrorCodes: errorCodes,
		Sign: func(fields map[string]string) string {
			return Sign(fields, cfg.Secret)
		},
		Extra: func() map[string]string {
			return map[string]string{"bank_name": simulate.Pick(banks)}
		},
	})
}
