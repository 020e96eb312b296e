// Package fraudgraph 将风控记录同步为用户与 IP 之间的图关系，便于关联分析
package fraudgraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrMissingURI 未配置图数据库地址
var ErrMissingURI = errors.New("graph uri is required")

// Entry 一条风控记录
type Entry struct {
	UserID        uint64
	IP            string
	TransactionNo string
	Level         string
	Type          string
	Action        string
	Description   string
	At            time.Time
}

// Recorder 风控图谱写入
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Close(ctx context.Context) error
}

// Options 连接配置
type Options struct {
	URI            string
	Username       string
	Password       string
	Database       string
	MaxConnections int
}

// NopRecorder 未启用图谱时使用
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) error { return nil }
func (NopRecorder) Close(context.Context) error         { return nil }

// Neo4jRecorder 基于 Bolt 协议写入 Neo4j
type Neo4jRecorder struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jRecorder 建立连接并验证可用性
func NewNeo4jRecorder(ctx context.Context, opts Options) (*Neo4jRecorder, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}

	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, auth, func(c *neo4j.Config) {
		if opts.MaxConnections > 0 {
			c.MaxConnectionPoolSize = opts.MaxConnections
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}

	return &Neo4jRecorder{
		driver:   driver,
		database: opts.Database,
	}, nil
}

const recordWithIP = `
MERGE (u:User {id: $userId})
MERGE (ip:IP {address: $ip})
CREATE (u)-[:FLAGGED {level: $level, type: $type, action: $action, description: $description, transaction_no: $transactionNo, at: $at}]->(ip)
`

const recordWithoutIP = `
MERGE (u:User {id: $userId})
SET u.last_flagged_at = $at, u.last_risk_level = $level, u.last_risk_type = $type
`

// Record 写入一条风控关系
func (r *Neo4jRecorder) Record(ctx context.Context, entry Entry) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	cypher := recordWithIP
	if entry.IP == "" {
		cypher = recordWithoutIP
	}

	res, err := session.Run(ctx, cypher, map[string]any{
		"userId":        int64(entry.UserID),
		"ip":            entry.IP,
		"level":         entry.Level,
		"type":          entry.Type,
		"action":        entry.Action,
		"description":   entry.Description,
		"transactionNo": entry.TransactionNo,
		"at":            entry.At.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("record fraud edge: %w", err)
	}
	_, err = res.Consume(ctx)
	return err
}

// Close 关闭连接
func (r *Neo4jRecorder) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}
