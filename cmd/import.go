package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sessions-portal/core/importer"
	"sessions-portal/logger"
)

var (
	importDryRun       bool
	importSkipDownload bool
	importCreator      string
	importWatchDir     string
)

var importCmd = &cobra.Command{
	Use:   "import [csv]",
	Short: "从CSV批量导入活动",
	Long: `Creates events, presenters, tags and playlists from a sessions spreadsheet
export (columns: Title, Details, Trainer, Publish Date, Link, Playlist, Tags) and
queues the linked Google Drive videos. Rows whose title and date already exist
are skipped, so a file can be imported again safely.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if importWatchDir == "" && len(args) != 1 {
			return fmt.Errorf("expected a CSV file, or --watch <dir>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		needPipeline := !importDryRun && !importSkipDownload
		a, err := bootstrap(ctx, bootOptions{pipeline: needPipeline, workers: -1})
		if err != nil {
			return err
		}
		defer a.close()

		opts := importer.Options{
			DryRun:            importDryRun,
			SkipVideoDownload: importSkipDownload,
			PresenterDomain:   cfg.PresenterEmailDomain,
		}
		if importCreator != "" {
			u, err := a.users.GetByEmail(ctx, importCreator)
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("creator %s does not exist", importCreator)
			}
			opts.Creator = u
		}

		var submitter importer.Submitter
		if needPipeline {
			submitter = a.dispatcher
			// 没有Redis时由本进程消费内存队列，导入结束后等待下载完成
			if a.redis == nil {
				a.dispatcher.Start(ctx)
				defer waitForDownloads(a)
			}
		}
		im := importer.New(a.users, a.events, a.labels, a.assets, submitter)

		if importWatchDir != "" {
			return im.Watch(ctx, importWatchDir, opts, func(path string, sum *importer.Summary, err error) {
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					return
				}
				fmt.Printf("\n### %s\n", path)
				sum.Print(os.Stdout)
			})
		}

		sum, err := im.ImportFile(ctx, args[0], opts)
		if sum != nil {
			sum.Print(os.Stdout)
		}
		return err
	},
}

func waitForDownloads(a *app) {
	n, _ := a.queue.Len(context.Background())
	logger.Info("waiting for queued downloads", logger.Int64("pending", n))
	a.dispatcher.Stop()
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "parse and report without writing to the database")
	importCmd.Flags().BoolVar(&importSkipDownload, "skip-video-download", false, "create video assets but do not download them")
	importCmd.Flags().StringVar(&importCreator, "creator", "", "email of the user recorded as event creator (default: first staff user)")
	importCmd.Flags().StringVar(&importWatchDir, "watch", "", "import every CSV created in this directory until interrupted")
	rootCmd.AddCommand(importCmd)
}
