package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sessions-portal/logger"
	"sessions-portal/storage"
)

var (
	storagePrefix string
	storageStats  bool
	storageDelete bool
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "存储管理（本地或MinIO）",
	Long:  `列出存储中的视频和缩略图，查看统计信息，或删除某个前缀下的所有文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fmt.Printf("存储驱动: %s\n", cfg.StorageDriver)
		store, err := storage.New(ctx, cfg)
		if err != nil {
			return err
		}

		objects, err := store.List(ctx, storagePrefix)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}

		switch {
		case storageDelete:
			if storagePrefix == "" {
				return fmt.Errorf("删除操作需要指定目录前缀")
			}
			for _, o := range objects {
				if err := store.Delete(ctx, o.Key); err != nil {
					return fmt.Errorf("delete %s: %w", o.Key, err)
				}
				logger.Info("object deleted", logger.String("key", o.Key))
			}
			fmt.Printf("已删除 %d 个文件 (前缀: %s)\n", len(objects), storagePrefix)

		case storageStats:
			st := storage.Stats(objects)
			fmt.Printf("\n对象数: %d\n总大小: %s\n", st.TotalObjects, humanBytes(st.TotalSize))
			if !st.LastModified.IsZero() {
				fmt.Printf("最后修改: %s\n", st.LastModified.Format("2006-01-02 15:04:05"))
			}
			kinds := make([]string, 0, len(st.ByKind))
			for k := range st.ByKind {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Printf("  %-6s %s\n", k, humanBytes(st.ByKind[k]))
			}

		default:
			fmt.Printf("\n列出文件 (前缀: %q)...\n", storagePrefix)
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
			for _, o := range objects {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Key, humanBytes(o.Size), o.LastModified.Format("2006-01-02 15:04:05"))
			}
			tw.Flush()
			fmt.Printf("共 %d 个文件\n", len(objects))
		}
		return nil
	},
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(storageCmd)

	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "按前缀过滤文件，例如 videos/")
	storageCmd.Flags().BoolVarP(&storageStats, "stats", "s", false, "显示统计信息")
	storageCmd.Flags().BoolVarP(&storageDelete, "delete", "d", false, "删除指定前缀下的所有文件")

	storageCmd.Example = `  # 列出所有文件
  sessions_portal storage

  # 只看缩略图
  sessions_portal storage -p "thumbnails/"

  # 显示统计信息
  sessions_portal storage -s`
}
