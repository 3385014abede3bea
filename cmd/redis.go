package cmd

import (
	"context"
	"fmt"
	"time"

	"sessions-portal/cache"
	"sessions-portal/core/dispatch"
	"sessions-portal/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，进行基本读写操作，并显示下载队列长度。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("开始测试Redis连接...")
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := db.ConnectRedis(cfg)
		if err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer db.CloseRedis()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		fmt.Println("开始测试Redis基本操作...")
		if err := cache.SelfTest(ctx, client); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")

		n, err := dispatch.NewRedisQueue(client, cfg.QueueKey).Len(ctx)
		if err != nil {
			return fmt.Errorf("读取队列长度失败: %w", err)
		}
		fmt.Printf("下载队列 %s: %d 个待处理任务\n", cfg.QueueKey, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
