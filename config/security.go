package config

import "paygate/pkg/config"

func init() {
	config.Add("security", func() map[string]interface{} {
		return map[string]interface{}{
			// 回调签名密钥
			"callback_secret_key": config.Env("CALLBACK_SECRET_KEY", "booking_panel_callback_secret"),
			// 内部系统之间调用使用的令牌
			"internal_token": config.Env("INTERNAL_API_TOKEN", "internal_token_change_me"),
			// 是否校验入站回调签名
			"verify_callback_signature": config.Env("VERIFY_CALLBACK_SIGNATURE", false),
		}
	})
}
