package bootstrap

import (
	"context"
	"time"

	"paygate/pkg/config"
	"paygate/pkg/fraudgraph"
	"paygate/pkg/logger"
)

// SetupFraudGraph 初始化风控图谱，未启用或连接失败时返回空实现
func SetupFraudGraph() fraudgraph.Recorder {
	if !config.GetBool("graph.enabled") {
		return fraudgraph.NopRecorder{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recorder, err := fraudgraph.NewNeo4jRecorder(ctx, fraudgraph.Options{
		URI:            config.GetString("graph.uri"),
		Username:       config.GetString("graph.username"),
		Password:       config.GetString("graph.password"),
		Database:       config.GetString("graph.database"),
		MaxConnections: config.GetInt("graph.max_connections", 20),
	})
	if err != nil {
		logger.ErrorString("FraudGraph", "Setup", err.Error())
		return fraudgraph.NopRecorder{}
	}

	logger.InfoString("FraudGraph", "Setup", "风控图谱连接成功")
	return recorder
}
