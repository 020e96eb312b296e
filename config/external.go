package config

import "paygate/pkg/config"

func init() {
	config.Add("external", func() map[string]interface{} {
		return map[string]interface{}{
			// 未显式指定时使用的外部系统名
			"default_system": config.Env("EXTERNAL_DEFAULT_SYSTEM", "booking_panel"),

			"booking_panel": map[string]interface{}{
				"order_update_url": config.Env("BOOKING_PANEL_ORDER_UPDATE_URL", "http://localhost:8000/api/v1/orders/update-status"),
				// 单次请求超时（秒）
				"timeout":        config.Env("BOOKING_PANEL_TIMEOUT", 5),
				"max_retries":    config.Env("BOOKING_PANEL_MAX_RETRIES", 3),
				"retry_interval": config.Env("BOOKING_PANEL_RETRY_INTERVAL", 5),
			},
		}
	})
}
