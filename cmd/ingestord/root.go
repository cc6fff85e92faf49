package ingestord

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arclake/ingestord/internal/config"
	"github.com/arclake/ingestord/internal/datalake"
	"github.com/arclake/ingestord/internal/pipeline"
	"github.com/arclake/ingestord/internal/scheduler"
	"github.com/arclake/ingestord/internal/store"
)

var (
	cfgFile        string
	processingRoot string
	databaseDSN    string
	numWorkers     int
	uploadEnabled  bool
	ingestCron     string
	housekeepCron  string
	logFormat      string
	logLevel       string
	logOutput      string

	rootLogger *slog.Logger
	appConfig  config.Config
	appStore   *store.PostgresStore
)

var rootCmd = &cobra.Command{
	Use:   "ingestord",
	Short: "Drain, extract, bundle, and archive inbound data-source files.",
	Long: `ingestord watches a configured set of source directories per data source,
recursively extracts nested archives, quarantines duplicates and unrecognized
files, and rebundles survivors into size-capped output archives with a full
lineage trail back to their originating folder and first-level archive.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		switch strings.ToLower(logOutput) {
		case "", "stderr":
			logWriter = os.Stderr
		case "stdout":
			logWriter = os.Stdout
		default:
			f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("open log file %s: %w", logOutput, err)
			}
			logWriter = f
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)

		appConfig = config.Default()
		if cfgFile != "" {
			loaded, err := config.LoadFile(cfgFile)
			if err != nil {
				return fmt.Errorf("load config file %s: %w", cfgFile, err)
			}
			appConfig = loaded
		}
		if processingRoot != "" {
			appConfig.ProcessingRoot = processingRoot
		}
		if databaseDSN != "" {
			appConfig.DatabaseDSN = databaseDSN
		}
		if numWorkers > 0 {
			appConfig.NumWorkers = numWorkers
		}
		if cmd.Flags().Changed("upload-to-datalake") {
			appConfig.UploadToDatalake = uploadEnabled
		}
		if ingestCron != "" {
			appConfig.IngestCron = ingestCron
		}
		if housekeepCron != "" {
			appConfig.HousekeepingCron = housekeepCron
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		if err := os.MkdirAll(appConfig.ProcessingRoot, 0o755); err != nil {
			return fmt.Errorf("create processing root %s: %w", appConfig.ProcessingRoot, err)
		}

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st, err := store.Open(pingCtx, appConfig.DatabaseDSN, rootLogger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		appStore = st
		rootLogger.Info("store ready")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appStore != nil {
			if err := appStore.Close(); err != nil {
				rootLogger.Error("failed to close store cleanly", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to rootCmd and runs it.
func Execute() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(stateCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	rootCmd.PersistentFlags().StringVar(&processingRoot, "processing-root", "", "root directory for per-data-source trees")
	rootCmd.PersistentFlags().StringVar(&databaseDSN, "database-dsn", "", "Postgres connection string")
	rootCmd.PersistentFlags().IntVarP(&numWorkers, "workers", "w", 0, "worker pool size for the ingestion tick (0 lets the scheduler pick)")
	rootCmd.PersistentFlags().BoolVar(&uploadEnabled, "upload-to-datalake", false, "enable the data-lake upload stub")
	rootCmd.PersistentFlags().StringVar(&ingestCron, "ingest-cron", "", "cron expression for the ingestion tick")
	rootCmd.PersistentFlags().StringVar(&housekeepCron, "housekeeping-cron", "", "cron expression for the housekeeping tick")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.1.0"
}

// buildDeps assembles the pipeline collaborators shared by serve and once.
func buildDeps() pipeline.Deps {
	var uploader datalake.Uploader = datalake.NoopUploader{}
	if appConfig.UploadToDatalake {
		client, err := datalake.New(datalake.Config{
			Endpoint:  appConfig.Datalake.Endpoint,
			Bucket:    appConfig.Datalake.Bucket,
			AccessKey: appConfig.Datalake.AccessKey,
			SecretKey: appConfig.Datalake.SecretKey,
			UseSSL:    appConfig.Datalake.UseSSL,
		})
		if err != nil {
			rootLogger.Error("failed to configure data lake uploader, falling back to no-op", "error", err)
		} else {
			uploader = client
		}
	}
	return pipeline.Deps{
		Store:    appStore,
		Uploader: uploader,
		Logger:   rootLogger,
	}
}

func newScheduler() *scheduler.Scheduler {
	return scheduler.New(appStore, buildDeps(), rootLogger, appConfig.ProcessingRoot,
		appConfig.NumWorkers, appConfig.RetainBackupYears, appConfig.RetainLogMonths)
}
