package cmd

import (
	"github.com/spf13/cobra"

	"paygate/bootstrap"
)

// CmdMigrate 迁移数据表结构
var CmdMigrate = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		setup()
		return bootstrap.MigrateDB()
	},
}
