package ingestord

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var stateLimit int

var zeroTime = time.Time{}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print recent bundle-tracking and error-log rows.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		errs, err := appStore.RecentErrorLogs(ctx, stateLimit)
		if err != nil {
			return fmt.Errorf("query error logs: %w", err)
		}
		fmt.Printf("Recent errors (%d):\n", len(errs))
		for _, e := range errs {
			fmt.Printf("  [%s] %s/%s %s file=%s folder=%s archive=%s solved=%v\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.DataSource, e.Environment,
				e.ErrorKind, e.FileName, e.FolderPath, e.OriginalArchiveFileName, e.Solved)
		}

		bundles, err := appStore.BundleTrackingSince(ctx, zeroTime)
		if err != nil {
			return fmt.Errorf("query bundle tracking: %w", err)
		}
		if len(bundles) > stateLimit {
			bundles = bundles[:stateLimit]
		}
		fmt.Printf("Recent bundles (%d):\n", len(bundles))
		for _, b := range bundles {
			fmt.Printf("  [%s] %s/%s %s files=%d bytes=%d uploaded=%v backup=%s\n",
				b.CreatedAt.Format("2006-01-02 15:04:05"), b.DataSource, b.Environment,
				b.FinalArchiveName, b.TotalFilesCount, b.BundleSizeBytes, b.UploadedToDatalake, b.BackupPath)
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "limit the number of rows displayed")
}
