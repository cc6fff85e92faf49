// Package housekeeping runs the daily retention sweep: old backup archives
// and old log files are deleted based on a timestamp embedded in their
// filename, exactly as the original's deleteOldBackupFiles/
// deleteOldLogFiles (org.ft.services.FileProcessorService) do, generalized
// to walk every configured data source's tree and shaped after
// solaius-kf-reg's RetentionWorker (daily ticker, single cutoff, one
// cleanup pass).
package housekeeping

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sweep deletes files under backupDirs older than backupCutoff and files
// under logDirs older than logCutoff. Both sets of directories are walked
// non-recursively, matching the original's flat per-environment layout.
// A file whose name does not carry a recognizable timestamp is left alone
// rather than guessed at.
func Sweep(ctx context.Context, logger *slog.Logger, backupDirs, logDirs []string, backupCutoff, logCutoff time.Time) {
	for _, dir := range backupDirs {
		sweepDir(ctx, logger, dir, backupCutoff, backupArchiveTimestamp)
	}
	for _, dir := range logDirs {
		sweepDir(ctx, logger, dir, logCutoff, logFileTimestamp)
	}
}

func sweepDir(ctx context.Context, logger *slog.Logger, dir string, cutoff time.Time, parse func(string) (time.Time, bool)) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to list directory during housekeeping", "dir", dir, "error", err)
		}
		return
	}
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if e.IsDir() {
			continue
		}
		ts, ok := parse(e.Name())
		if !ok {
			continue
		}
		if ts.Before(cutoff) {
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				logger.Warn("failed to delete old file", "path", path, "error", err)
			} else {
				logger.Info("deleted old file", "path", path)
			}
		}
	}
}

// backupArchiveTimestamp parses the "<dataSource>_<yyyyMMdd'T'HHmmss>.zip"
// bundle naming scheme.
func backupArchiveTimestamp(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse("20060102T150405", base[idx+1:])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// logFileTimestamp parses fslog's "<dataSource>_<yyyy-MM-dd>.txt" naming
// scheme.
func logFileTimestamp(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse("2006-01-02", base[idx+1:])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
