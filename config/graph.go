package config

import "paygate/pkg/config"

func init() {
	config.Add("graph", func() map[string]interface{} {
		return map[string]interface{}{
			// 风控图谱，开启后风控记录会同步写入 Neo4j
			"enabled":         config.Env("GRAPH_ENABLED", false),
			"uri":             config.Env("GRAPH_URI", "bolt://localhost:7687"),
			"username":        config.Env("GRAPH_USERNAME", "neo4j"),
			"password":        config.Env("GRAPH_PASSWORD", ""),
			"database":        config.Env("GRAPH_DATABASE", ""),
			"max_connections": config.Env("GRAPH_MAX_CONNECTIONS", 20),
		}
	})
}
