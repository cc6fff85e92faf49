package ingestord

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler forever, firing the ingestion and housekeeping ticks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sch := newScheduler()
		if err := sch.Start(ctx, appConfig.IngestCron, appConfig.HousekeepingCron); err != nil {
			return err
		}
		rootLogger.Info("scheduler started",
			"ingest_cron", appConfig.IngestCron, "housekeeping_cron", appConfig.HousekeepingCron)

		<-ctx.Done()
		rootLogger.Info("shutdown signal received, stopping scheduler")
		sch.Stop()
		return nil
	},
}
