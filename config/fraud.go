package config

import "paygate/pkg/config"

func init() {
	config.Add("fraud", func() map[string]interface{} {
		return map[string]interface{}{
			// 单笔金额上限
			"max_amount": config.Env("FRAUD_MAX_AMOUNT", "50000"),
			// 每小时最多交易笔数
			"max_hourly_transactions": config.Env("FRAUD_MAX_HOURLY", 10),
			// 24 小时内最多失败笔数
			"max_failed_attempts": config.Env("FRAUD_MAX_FAILED", 5),
			// 小额高频判定的金额上限
			"small_amount": config.Env("FRAUD_SMALL_AMOUNT", "100"),
		}
	})
}
