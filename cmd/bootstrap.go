package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"sessions-portal/cache"
	"sessions-portal/config"
	"sessions-portal/core/dispatch"
	"sessions-portal/core/drive"
	"sessions-portal/core/ingest"
	"sessions-portal/core/media"
	"sessions-portal/core/notify"
	"sessions-portal/db"
	"sessions-portal/logger"
	"sessions-portal/repository"
	"sessions-portal/storage"
)

// app holds everything a command may need. Fields a command does not ask
// for stay nil.
type app struct {
	cfg    *config.Config
	db     *gorm.DB
	redis  *redis.Client
	store  storage.Store
	users  repository.UserRepository
	events repository.EventRepository
	labels repository.LabelRepository
	assets repository.VideoAssetRepository

	hub        *notify.Hub
	relay      *notify.RedisRelay
	task       *ingest.Task
	queue      dispatch.Queue
	dispatcher *dispatch.Dispatcher
	labelCache *cache.LabelCache
}

type bootOptions struct {
	storage  bool
	pipeline bool // task, queue and dispatcher
	workers  int  // <0 keeps WORKER_COUNT
}

func bootstrap(ctx context.Context, opts bootOptions) (*app, error) {
	a := &app{cfg: cfg}

	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return nil, err
	}
	a.db = gdb
	a.users = repository.NewGormUserRepository(gdb)
	a.events = repository.NewGormEventRepository(gdb)
	a.labels = repository.NewGormLabelRepository(gdb)
	a.assets = repository.NewGormVideoAssetRepository(gdb)

	if cfg.RedisEnabled {
		client, err := db.ConnectRedis(cfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client
		logger.Info("Successfully connected to Redis", logger.String("addr", client.Options().Addr))
	}
	a.labelCache = cache.NewLabelCache(a.redis, cfg.LabelCacheTTL)

	if opts.storage || opts.pipeline {
		store, err := storage.New(ctx, cfg)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init storage: %w", err)
		}
		a.store = store
	}

	if opts.pipeline {
		if err := a.buildPipeline(opts.workers); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) buildPipeline(workers int) error {
	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		return fmt.Errorf("create temp dir %s: %w", cfg.TempDir, err)
	}

	a.hub = notify.NewHub()
	var publisher notify.Publisher = a.hub
	if a.redis != nil {
		// 多进程部署时状态事件经 Redis 转发到各 HTTP 进程
		a.relay = notify.NewRedisRelay(a.redis, cfg.StatusChannel)
		publisher = a.relay
		a.queue = dispatch.NewRedisQueue(a.redis, cfg.QueueKey)
	} else {
		a.queue = dispatch.NewMemoryQueue(cfg.QueueSize)
	}

	a.task = ingest.NewTask(ingest.Deps{
		Assets: a.assets,
		Fetcher: drive.NewFetcher(drive.Options{
			Timeout:         cfg.DriveTimeout,
			ExportBase:      cfg.DriveExportBase,
			UsercontentBase: cfg.DriveUsercontentBase,
		}),
		Store:     a.store,
		Prober:    media.NewFFmpegProber(cfg.FFmpegPath, cfg.FFprobePath, cfg.ProbeTimeout),
		Publisher: publisher,
		TempDir:   cfg.TempDir,
	})

	if workers < 0 {
		workers = cfg.WorkerCount
	}
	a.dispatcher = dispatch.New(a.queue, a.task, a.assets, dispatch.Options{
		Workers: workers,
		Retry: dispatch.RetryPolicy{
			MaxRetries: cfg.RetryMax,
			Start:      cfg.RetryIntervalStart,
			Step:       cfg.RetryIntervalStep,
			Max:        cfg.RetryIntervalMax,
		},
	})
	return nil
}

func (a *app) close() {
	if a.queue != nil {
		_ = a.queue.Close()
	}
	if err := db.CloseRedis(); err != nil {
		logger.Warn("close redis", logger.ErrorField(err))
	}
	if err := db.CloseGormDB(); err != nil {
		logger.Warn("close database", logger.ErrorField(err))
	}
}

var errRedisRequired = errors.New("this command needs Redis: set REDIS_ENABLED=true")
