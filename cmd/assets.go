package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"sessions-portal/model"
	"sessions-portal/repository"
)

var (
	assetsAll        bool
	assetsRecent     int
	assetsProcessing bool
	resubmitForce    bool
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "视频资源管理",
}

var assetsStatusCmd = &cobra.Command{
	Use:   "status [ids...]",
	Short: "查看视频资源处理状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if len(ids) == 0 && !assetsAll && assetsRecent <= 0 {
			return fmt.Errorf("please specify either specific asset IDs, --all flag, or --recent hours")
		}

		a, err := bootstrap(cmd.Context(), bootOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		q := repository.AssetQuery{IDs: ids}
		if len(ids) == 0 && assetsRecent > 0 {
			since := time.Now().Add(-time.Duration(assetsRecent) * time.Hour)
			q.Since = &since
		}
		if assetsProcessing {
			q.Statuses = []model.VideoStatus{model.VideoStatusProcessing, model.VideoStatusFailed}
		}
		assets, err := a.assets.List(cmd.Context(), q)
		if err != nil {
			return err
		}
		if len(assets) == 0 {
			fmt.Println("No video assets found matching the criteria")
			return nil
		}
		printAssetReport(cmd.Context(), os.Stdout, a.events, assets)
		return nil
	},
}

// printAssetReport lists each asset and ends with per-status counts.
func printAssetReport(ctx context.Context, w io.Writer, events repository.EventRepository, assets []model.VideoAsset) {
	fmt.Fprintf(w, "\n=== Video Assets Status (%d assets) ===\n\n", len(assets))

	counts := make(map[model.VideoStatus]int)
	titles := make(map[uint]string)
	for _, asset := range assets {
		counts[asset.Status]++

		eventInfo := "No associated event"
		if asset.EventID != nil {
			title, ok := titles[*asset.EventID]
			if !ok {
				if ev, err := events.GetByID(ctx, *asset.EventID); err == nil && ev != nil {
					title = ev.Title
				}
				titles[*asset.EventID] = title
			}
			if title != "" {
				eventInfo = "'" + title + "'"
			}
		}

		fmt.Fprintf(w, "Video Asset ID: %d\n", asset.ID)
		fmt.Fprintf(w, "  Title: %s\n", asset.Title)
		fmt.Fprintf(w, "  Event: %s\n", eventInfo)
		fmt.Fprintf(w, "  Created: %s\n", asset.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  Status: %s\n", asset.Status)
		if asset.ClaimedAt != nil {
			fmt.Fprintf(w, "  Claimed: %s (%s ago)\n", asset.ClaimedAt.Format("2006-01-02 15:04:05"), time.Since(*asset.ClaimedAt).Round(time.Second))
		}
		if asset.VideoFile != nil && *asset.VideoFile != "" {
			fmt.Fprintf(w, "  File: %s\n", *asset.VideoFile)
		}
		if asset.HasThumbnail() {
			fmt.Fprintf(w, "  Thumbnail: %s\n", *asset.Thumbnail)
		}
		if asset.LastError != "" {
			fmt.Fprintf(w, "  Error: %s\n", asset.LastError)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Status Summary ===")
	for _, s := range model.AllVideoStatuses {
		if n := counts[s]; n > 0 {
			fmt.Fprintf(w, "%s: %d\n", s, n)
		}
	}
}

var assetsResubmitCmd = &cobra.Command{
	Use:   "resubmit <id>",
	Short: "重新处理READY或FAILED的视频资源",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		id := ids[0]
		ctx := cmd.Context()

		a, err := bootstrap(ctx, bootOptions{pipeline: true, workers: 0})
		if err != nil {
			return err
		}
		defer a.close()

		asset, err := a.assets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if asset == nil {
			return fmt.Errorf("video asset %d does not exist", id)
		}
		if asset.SourceLink == "" {
			return fmt.Errorf("video asset %d has no Google Drive link", id)
		}
		resubmit := a.assets.Resubmit
		if resubmitForce {
			resubmit = a.assets.ForceResubmit
		}
		ok, err := resubmit(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("video asset %d is %s, only READY or FAILED assets can be resubmitted (use --force for a stuck PROCESSING asset)", id, asset.Status)
		}

		if a.redis != nil {
			if err := a.dispatcher.Submit(ctx, id, asset.SourceLink); err != nil {
				return err
			}
			fmt.Printf("Video asset %d queued\n", id)
			return nil
		}
		// 没有Redis就没有常驻worker，直接在本进程处理
		return runIngest(ctx, a, id, asset.SourceLink)
	},
}

var assetsIngestCmd = &cobra.Command{
	Use:   "ingest <id> <link>",
	Short: "同步执行一次下载任务（调试用）",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[:1])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := bootstrap(ctx, bootOptions{pipeline: true, workers: 0})
		if err != nil {
			return err
		}
		defer a.close()

		asset, err := a.assets.GetByID(ctx, ids[0])
		if err != nil {
			return err
		}
		if asset == nil {
			return fmt.Errorf("video asset %d does not exist", ids[0])
		}
		if asset.Status.IsFinal() {
			if _, err := a.assets.Resubmit(ctx, asset.ID); err != nil {
				return err
			}
		}
		return runIngest(ctx, a, asset.ID, args[1])
	},
}

func runIngest(ctx context.Context, a *app, id uint, link string) error {
	start := time.Now()
	if err := a.task.Execute(ctx, id, link); err != nil {
		return fmt.Errorf("video asset %d failed after %s: %w", id, time.Since(start).Round(time.Millisecond), err)
	}
	asset, err := a.assets.GetByID(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("Video asset %d is %s (%d bytes, %ds)\n", id, asset.Status, asset.FileSize, asset.Duration)
	return nil
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))
	for _, s := range args {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid asset id %q", s)
		}
		ids = append(ids, uint(n))
	}
	return ids, nil
}

func init() {
	assetsStatusCmd.Flags().BoolVar(&assetsAll, "all", false, "check all video assets")
	assetsStatusCmd.Flags().IntVar(&assetsRecent, "recent", 0, "check video assets created in the last N hours")
	assetsStatusCmd.Flags().BoolVar(&assetsProcessing, "processing", false, "only show processing or failed assets")
	assetsResubmitCmd.Flags().BoolVar(&resubmitForce, "force", false, "also take back a PROCESSING asset whose worker died")

	assetsCmd.AddCommand(assetsStatusCmd, assetsResubmitCmd, assetsIngestCmd)
	rootCmd.AddCommand(assetsCmd)
}
