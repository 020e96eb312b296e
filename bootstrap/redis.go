package bootstrap

import (
	"fmt"

	"paygate/pkg/config"
	"paygate/pkg/logger"
	"paygate/pkg/redis"
)

// SetupRedis 初始化 Redis，未启用时返回 false
func SetupRedis() bool {
	if !config.GetBool("redis.enabled") {
		logger.InfoString("Redis", "Setup", "Redis 未启用，通知走日志通道，限流使用进程内存")
		return false
	}

	err := redis.InitRedis(
		fmt.Sprintf("%v:%v", config.GetString("redis.host"), config.GetString("redis.port")),
		config.GetString("redis.username"),
		config.GetString("redis.password"),
		config.GetInt("redis.database"),
		config.GetInt("redis.queue_database"),
	)
	if err != nil {
		// Redis 不是交易主流程的依赖，连接失败时降级运行
		logger.ErrorString("Redis", "Setup", err.Error())
		return false
	}
	return true
}
