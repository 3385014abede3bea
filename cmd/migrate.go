package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sessions-portal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建或更新数据库表",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context(), bootOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if err := db.AutoMigrateModels(a.db); err != nil {
			return err
		}
		fmt.Println("数据库迁移完成")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
