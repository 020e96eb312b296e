package config

import "paygate/pkg/config"

func init() {
	config.Add("queue", func() map[string]interface{} {
		return map[string]interface{}{
			"rate_limit":       config.Env("QUEUE_RATE_LIMIT", 200),
			"rate_burst":       config.Env("QUEUE_RATE_BURST", 50),
			"worker_count":     config.Env("QUEUE_WORKER_COUNT", 4),
			"retry_times":      config.Env("QUEUE_RETRY_TIMES", 3),
			"retry_delay":      config.Env("QUEUE_RETRY_DELAY", 1),
			"shutdown_timeout": config.Env("QUEUE_SHUTDOWN_TIMEOUT", 30),
			"max_queue_size":   config.Env("QUEUE_MAX_SIZE", 10000),
		}
	})
}
