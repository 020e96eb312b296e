// Package testutil 测试辅助方法
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"paygate/pkg/database"
	"paygate/pkg/database/migrations"
)

// NewDB 创建一个迁移完毕的内存 SQLite 数据库，测试结束时自动关闭
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	// 每个测试独立的共享缓存库，单连接保证写入串行
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := database.Open(sqlite.Open(dsn), gormlogger.Default.LogMode(gormlogger.Silent))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(migrations.RegisterTables()...))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}
