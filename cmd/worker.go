package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sessions-portal/logger"
)

var workerCount int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "只运行视频下载worker（消费Redis队列）",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.RedisEnabled {
			return errRedisRequired
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap(ctx, bootOptions{pipeline: true, workers: workerCount})
		if err != nil {
			return err
		}
		defer a.close()

		logger.Info("worker consuming queue", logger.String("queue", cfg.QueueKey))
		return a.dispatcher.Run(ctx)
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerCount, "workers", -1, "number of concurrent downloads (default WORKER_COUNT)")
	rootCmd.AddCommand(workerCmd)
}
