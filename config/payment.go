package config

import "paygate/pkg/config"

func init() {
	config.Add("payment", func() map[string]interface{} {
		return map[string]interface{}{
			// 待支付/处理中的交易超过该秒数会被超时扫描关闭
			"timeout": config.Env("PAYMENT_TIMEOUT", 900),
			// 失败交易最多可处理的次数
			"retry_times": config.Env("PAYMENT_RETRY_TIMES", 3),
			// 超时扫描间隔（秒），0 表示不在 serve 进程内扫描
			"sweep_interval": config.Env("PAYMENT_SWEEP_INTERVAL", 60),

			// 各支付渠道，mode 可选 simulate / live（仅 alipay、wechat 支持 live）
			"gateways": map[string]interface{}{
				"alipay": map[string]interface{}{
					"mode":         config.Env("ALIPAY_MODE", "simulate"),
					"success_rate": config.Env("ALIPAY_SUCCESS_RATE", 0.85),
					"min_latency":  config.Env("ALIPAY_MIN_LATENCY", 0.5),
					"max_latency":  config.Env("ALIPAY_MAX_LATENCY", 1.5),
					"secret":       config.Env("ALIPAY_SECRET", "alipay_secret_key_123456"),

					"app_id":      config.Env("ALIPAY_APP_ID", ""),
					"private_key": config.Env("ALIPAY_PRIVATE_KEY", ""),
					"public_key":  config.Env("ALIPAY_PUBLIC_KEY", ""),
					"notify_url":  config.Env("ALIPAY_NOTIFY_URL", ""),
					"return_url":  config.Env("ALIPAY_RETURN_URL", ""),
					"production":  config.Env("ALIPAY_PRODUCTION", false),
				},
				"wechat": map[string]interface{}{
					"mode":         config.Env("WECHAT_MODE", "simulate"),
					"success_rate": config.Env("WECHAT_SUCCESS_RATE", 0.80),
					"min_latency":  config.Env("WECHAT_MIN_LATENCY", 0.6),
					"max_latency":  config.Env("WECHAT_MAX_LATENCY", 1.6),
					"secret":       config.Env("WECHAT_SECRET", "wechat_api_key_123456"),

					"app_id":      config.Env("WECHAT_APP_ID", ""),
					"mch_id":      config.Env("WECHAT_MCH_ID", ""),
					"serial_no":   config.Env("WECHAT_SERIAL_NO", ""),
					"private_key": config.Env("WECHAT_PRIVATE_KEY", ""),
					"api_v3_key":  config.Env("WECHAT_API_V3_KEY", ""),
					"notify_url":  config.Env("WECHAT_NOTIFY_URL", ""),
				},
				"bank_card": map[string]interface{}{
					"success_rate": config.Env("BANK_SUCCESS_RATE", 0.90),
					"min_latency":  config.Env("BANK_MIN_LATENCY", 0.8),
					"max_latency":  config.Env("BANK_MAX_LATENCY", 2.0),
					"secret":       config.Env("BANK_SECRET", "bank_secret_key_123456"),
				},
				"credit_card": map[string]interface{}{
					"success_rate": config.Env("CREDIT_SUCCESS_RATE", 0.88),
					"min_latency":  config.Env("CREDIT_MIN_LATENCY", 0.7),
					"max_latency":  config.Env("CREDIT_MAX_LATENCY", 1.8),
					"secret":       config.Env("CREDIT_SECRET", "credit_secret_key_123456"),
				},
			},
		}
	})
}
