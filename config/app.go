// Package config 站点配置信息
package config

import "paygate/pkg/config"

func init() {
	config.Add("app", func() map[string]interface{} {
		return map[string]interface{}{

			// 应用名称
			"name": config.Env("APP_NAME", "Paygate"),

			// 当前环境，用以区分多环境，一般为 local, stage, production, testing
			"env": config.Env("APP_ENV", "production"),

			// 是否进入调试模式
			"debug": config.Env("APP_DEBUG", false),

			// 应用服务端口
			"port": config.Env("APP_PORT", "8080"),

			// 对外访问地址，用于拼接支付页链接
			"base_url": config.Env("APP_BASE_URL", "http://localhost:8080"),

			// 设置时区，日志记录里会使用到
			"timezone": config.Env("TIMEZONE", "Asia/Shanghai"),

			// 限流格式为 数量-单位，单位 S/M/H/D
			"global_rate_limit": config.Env("GLOBAL_RATE_LIMIT", "30000-H"),
			"create_rate_limit": config.Env("CREATE_RATE_LIMIT", "600-H"),
		}
	})
}
