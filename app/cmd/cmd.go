// Package cmd 存放程序的命令行子命令
package cmd

import (
	"gorm.io/gorm"

	"paygate/bootstrap"
	"paygate/pkg/config"
)

// Env 存储全局选项 --env 的值
var Env string

// setup 加载配置、日志和数据库，所有子命令共用
func setup() *gorm.DB {
	config.InitConfig(Env)
	bootstrap.SetupLogger()
	return bootstrap.SetupDB()
}
