package config

import "paygate/pkg/config"

func init() {
	config.Add("notification", func() map[string]interface{} {
		return map[string]interface{}{
			"email_enabled":      config.Env("NOTIFY_EMAIL_ENABLED", true),
			"sms_enabled":        config.Env("NOTIFY_SMS_ENABLED", true),
			"email_success_rate": config.Env("NOTIFY_EMAIL_SUCCESS_RATE", 0.9),
			"sms_success_rate":   config.Env("NOTIFY_SMS_SUCCESS_RATE", 0.85),
		}
	})
}
