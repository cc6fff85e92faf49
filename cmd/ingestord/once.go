package ingestord

import (
	"context"

	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single ingestion pass over all active data sources and exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sch := newScheduler()
		sch.RunOnce(context.Background())
		return nil
	},
}
