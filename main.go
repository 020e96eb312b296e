package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"paygate/app/cmd"
	btsConfig "paygate/config"
)

// 加载应用程序的基础配置
func init() {
	// 加载 config 目录下的配置信息
	btsConfig.Initialize()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "paygate",
		Short: "Payment transaction service",
	}

	// 注册子命令
	rootCmd.AddCommand(
		cmd.CmdServe,
		cmd.CmdSweep,
		cmd.CmdMigrate,
	)

	// 默认运行 Web 服务
	rootCmd.RunE = cmd.CmdServe.RunE

	// 注册全局参数，--env
	rootCmd.PersistentFlags().StringVarP(&cmd.Env, "env", "e", "", "load .env file, example: --env=testing will use .env.testing file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run app with %v: %s\n", os.Args, err.Error())
		os.Exit(1)
	}
}
