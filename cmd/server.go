package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sessions-portal/core/auth"
	"sessions-portal/core/google"
	"sessions-portal/db"
	"sessions-portal/logger"
	"sessions-portal/server"
)

var serveWorkers int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP服务器和视频处理worker",
	Long: `Starts the REST API and, in the same process, the workers that download
Google Drive videos. With REDIS_ENABLED the queue and status events go through
Redis, so extra "worker" processes can share the load.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	workers := serveWorkers
	if workers < 0 {
		workers = cfg.WorkerCount
	}
	if workers == 0 && !cfg.RedisEnabled {
		// 内存队列没有其他消费者
		logger.Warn("in-memory queue needs at least one worker, starting one")
		workers = 1
	}

	a, err := bootstrap(ctx, bootOptions{pipeline: true, workers: workers})
	if err != nil {
		return err
	}
	defer a.close()

	if err := db.AutoMigrateModels(a.db); err != nil {
		return err
	}

	handler := server.NewAPIHandler(server.Deps{
		Cfg:        cfg,
		Users:      a.users,
		Events:     a.events,
		Labels:     a.labels,
		Assets:     a.assets,
		Store:      a.store,
		Tokens:     auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Google:     google.NewClient(cfg.GoogleUserinfoEndpoint),
		Dispatcher: a.dispatcher,
		Uploader:   a.task,
		Hub:        a.hub,
		LabelCache: a.labelCache,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, cfg.HTTPAddr, server.NewRouter(handler))
	})
	if workers > 0 {
		g.Go(func() error {
			return a.dispatcher.Run(gctx)
		})
	}
	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Forward(gctx, a.hub)
		})
	}
	return g.Wait()
}

func init() {
	serveCmd.Flags().IntVar(&serveWorkers, "workers", -1, "number of ingestion workers (default WORKER_COUNT)")
	rootCmd.AddCommand(serveCmd)
}
