// Package pipeline orchestrates one DataSource's ingestion pass: drain
// source folders into a working directory, recursively extract nested
// archives, quarantine offenders, bundle survivors, upload, and archive to
// backup. Grounded on the original's processFileTransferDataSource/
// processFolderPaths/extractCompressedFiles (org.ft.services.FileProcessorService),
// phased the way internal/orchestrator phases its own workflow, without
// that package's duplicated workflow entry point.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/arclake/ingestord/internal/archive"
	"github.com/arclake/ingestord/internal/bundler"
	"github.com/arclake/ingestord/internal/datalake"
	"github.com/arclake/ingestord/internal/fslog"
	"github.com/arclake/ingestord/internal/layout"
	"github.com/arclake/ingestord/internal/lineage"
	"github.com/arclake/ingestord/internal/persistence"
	"github.com/arclake/ingestord/internal/quarantine"
	"github.com/arclake/ingestord/internal/store"
)

// maxSweepIterations bounds the recursive extract sweep: a self-referential
// archive or a pathological nesting depth must not spin forever.
const maxSweepIterations = 100

// Deps are the collaborators a pipeline run needs; one set is shared
// across every DataSource and environment.
type Deps struct {
	Store    store.Store
	Uploader datalake.Uploader
	Logger   *slog.Logger
}

// RunDataSource partitions folders by environment and runs each
// environment's pass independently; environments of the same DataSource
// may run concurrently since they use disjoint working trees.
func RunDataSource(ctx context.Context, deps Deps, processingRoot string, ds store.DataSource, folders []store.FolderPath, maxZipSizeMB int) error {
	byEnv := make(map[string][]store.FolderPath)
	for _, f := range folders {
		if !f.Active {
			continue
		}
		byEnv[f.Environment] = append(byEnv[f.Environment], f)
	}
	if len(byEnv) == 0 {
		return nil
	}

	paths := layout.New(processingRoot, ds.Name)
	logger := deps.Logger.With("data_source", ds.Name)

	var wg sync.WaitGroup
	errsCh := make(chan error, len(byEnv))
	for env, envFolders := range byEnv {
		wg.Add(1)
		go func(env string, envFolders []store.FolderPath) {
			defer wg.Done()
			if err := RunEnvironment(ctx, deps, paths, ds.Name, env, envFolders, maxZipSizeMB); err != nil {
				errsCh <- fmt.Errorf("environment %s: %w", env, err)
			}
		}(env, envFolders)
	}
	wg.Wait()
	close(errsCh)

	var errs []error
	for err := range errsCh {
		logger.Error("environment pass failed", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// runLogs bundles the two per-data-source date-stamped log files written
// alongside the database rows, mirroring the original's successLogPath/
// errorLogPath split: success carries ordinary lifecycle lines, errors
// carries the line LogWriterService writes immediately before each
// moveToErrorFolder call.
type runLogs struct {
	success *fslog.Writer
	errors  *fslog.Writer
}

// logSuccess appends message to the success log, logging (not failing)
// any write error the same way the rest of the pipeline treats log-file
// failures as non-fatal.
func (l runLogs) logSuccess(logger *slog.Logger, message string) {
	if l.success == nil {
		return
	}
	if err := l.success.Write(message); err != nil {
		logger.Warn("failed to write log file line", "error", err)
	}
}

// RunEnvironment runs one (DataSource, environment) pass to completion:
// drain, extract, classify, bundle, upload, and archive to backup.
func RunEnvironment(ctx context.Context, deps Deps, paths layout.RunPaths, dataSource, env string, folders []store.FolderPath, maxZipSizeMB int) error {
	if err := paths.Ensure(env); err != nil {
		return fmt.Errorf("ensure layout: %w", err)
	}

	logger := deps.Logger.With("data_source", dataSource, "environment", env)
	tracker := lineage.New()
	tempDir := paths.Temp(env)
	errorFilesDir := paths.ErrorFiles(env)

	logs := runLogs{
		success: fslog.New(paths.Log(), dataSource),
		errors:  fslog.New(paths.ErrorLog(), dataSource),
	}
	defer logs.success.Close()
	defer logs.errors.Close()

	logs.logSuccess(logger, "Starting of moving files to temp folder")
	if err := drain(ctx, deps, logs, tracker, folders, tempDir, errorFilesDir, dataSource, env); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	logs.logSuccess(logger, "End of moving files to temp folder")

	logs.logSuccess(logger, "Start Compressed files in temp folder")
	if err := recursiveSweep(ctx, deps, logs, tracker, tempDir, errorFilesDir, dataSource, env, logger); err != nil {
		return fmt.Errorf("recursive extract sweep: %w", err)
	}
	logs.logSuccess(logger, "End of compressed files in temp folder")

	if err := classify(ctx, deps, logs, tracker, tempDir, errorFilesDir, dataSource, env); err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	capBytes := int64(maxZipSizeMB) * 1024 * 1024
	remaining, err := listFiles(tempDir)
	if err != nil {
		return fmt.Errorf("list remaining files: %w", err)
	}
	candidates := persistence.Candidates(tracker, remaining)
	if len(candidates) > 0 {
		logs.logSuccess(logger, "Start zipping files in temp folder")
	}
	if err := bundler.Bundle(ctx, deps.Store, logger, tempDir, dataSource, env, capBytes, candidates, tracker.SourceFolders()); err != nil {
		return fmt.Errorf("bundle: %w", err)
	}
	if len(candidates) > 0 {
		logs.logSuccess(logger, fmt.Sprintf("Total Zipfile : %d", len(candidates)))
		logs.logSuccess(logger, "End of zipping files in temp folder")
	}

	logs.logSuccess(logger, "Starting moving files to backup folder")
	if err := uploadAndArchive(ctx, deps, tempDir, paths.Backup(env), dataSource, env, logger); err != nil {
		return fmt.Errorf("upload and archive: %w", err)
	}
	logs.logSuccess(logger, "End of moving files to backup folder")
	return nil
}

// drain moves every top-level entry of each configured folder into
// tempDir, flattening directory substructure (the original flattens; this
// design keeps that behavior, see DESIGN.md). Every direct file is
// tracked with its origin folder; name collisions route the newcomer to
// quarantine.
func drain(ctx context.Context, deps Deps, logs runLogs, tracker *lineage.Tracker, folders []store.FolderPath, tempDir, errorFilesDir, dataSource, env string) error {
	var errs []error
	for _, fp := range folders {
		entries, err := os.ReadDir(fp.FolderPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", fp.FolderPath, err))
			continue
		}
		logs.logSuccess(deps.Logger, fmt.Sprintf("Total file in %s has : %d files", fp.FolderPath, len(entries)))
		for _, e := range entries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			src := filepath.Join(fp.FolderPath, e.Name())
			if e.IsDir() {
				if err := drainDir(ctx, deps, logs, tracker, src, fp.FolderPath, tempDir, errorFilesDir, dataSource, env); err != nil {
					errs = append(errs, err)
				}
				continue
			}
			if err := drainFile(deps, logs, tracker, src, fp.FolderPath, tempDir, errorFilesDir, dataSource, env); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// drainFile moves one file into tempDir, applying the name-uniqueness
// rule, and either tracks it as direct or quarantines the newcomer as a
// duplicate.
func drainFile(deps Deps, logs runLogs, tracker *lineage.Tracker, src, originFolder, tempDir, errorFilesDir, dataSource, env string) error {
	dest, collided := archive.UniquePath(filepath.Join(tempDir, filepath.Base(src)))
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dest, err)
	}

	if collided {
		return quarantine.Quarantine(context.Background(), deps.Store, tracker, deps.Logger, logs.errors,
			dest, errorFilesDir, dataSource, env, store.ErrorKindDuplicateFile, originFolder, "")
	}
	tracker.TrackDirect(filepath.Base(dest), originFolder, info.Size())
	logs.logSuccess(deps.Logger, fmt.Sprintf("Moved : %s to %s", src, dest))
	return nil
}

// drainDir walks a directory drained from a source folder and flattens
// every regular file it contains into tempDir, then removes the now-empty
// source directory.
func drainDir(ctx context.Context, deps Deps, logs runLogs, tracker *lineage.Tracker, srcDir, originFolder, tempDir, errorFilesDir, dataSource, env string) error {
	var errs []error
	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := drainFile(deps, logs, tracker, path, originFolder, tempDir, errorFilesDir, dataSource, env); err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("walk %s: %w", srcDir, err))
	}
	if rmErr := os.RemoveAll(srcDir); rmErr != nil {
		errs = append(errs, fmt.Errorf("remove drained directory %s: %w", srcDir, rmErr))
	}
	return errors.Join(errs...)
}

// recursiveSweep extracts every archive at the top level of tempDir,
// recursing as extraction uncovers nested archives, and prunes any empty
// directories left behind by archive directory entries. It re-lists
// tempDir on every iteration and stops once a pass finds nothing left to
// do, bounded by maxSweepIterations.
func recursiveSweep(ctx context.Context, deps Deps, logs runLogs, tracker *lineage.Tracker, tempDir, errorFilesDir, dataSource, env string, logger *slog.Logger) error {
	var errs []error
	for iter := 0; iter < maxSweepIterations; iter++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := os.ReadDir(tempDir)
		if err != nil {
			return fmt.Errorf("list %s: %w", tempDir, err)
		}

		active := false
		for _, e := range entries {
			path := filepath.Join(tempDir, e.Name())
			if e.IsDir() {
				if !pruneEmptyDirs(path) {
					active = true
				}
				continue
			}
			if !archive.IsCompressed(e.Name()) {
				continue
			}
			active = true
			written, err := archive.Extract(path, e.Name(), tracker, logger)
			if err != nil {
				logger.Error("extraction failed, quarantining archive", "archive", e.Name(), "error", err)
				info, _ := tracker.Info(e.Name())
				logs.logSuccess(logger, fmt.Sprintf("Failed to extract compressed file: %s - %s", path, err))
				if _, statErr := os.Stat(path); statErr == nil {
					if qerr := quarantine.Quarantine(ctx, deps.Store, tracker, logger, logs.errors,
						path, errorFilesDir, dataSource, env, store.ErrorKindExtractionError, info.OriginFolder, ""); qerr != nil {
						errs = append(errs, qerr)
					}
				} else {
					tracker.Remove(e.Name())
					row := store.ErrorLog{
						DataSource:  dataSource,
						Environment: env,
						ErrorKind:   store.ErrorKindExtractionError,
						FileName:    e.Name(),
						FolderPath:  info.OriginFolder,
					}
					if qerr := deps.Store.InsertErrorLog(ctx, row); qerr != nil {
						logger.Error("failed to record error log for already-deleted archive", "archive", e.Name(), "error", qerr)
					}
				}
				continue
			}
			logs.logSuccess(logger, fmt.Sprintf("Extracted compressed file: %s", path))
			for _, w := range written {
				if !w.Collided {
					continue
				}
				name := filepath.Base(w.Path)
				info, _ := tracker.Info(name)
				if qerr := quarantine.Quarantine(ctx, deps.Store, tracker, logger, logs.errors,
					w.Path, errorFilesDir, dataSource, env, store.ErrorKindDuplicateFile, info.OriginFolder, tracker.RootArchiveOf(name)); qerr != nil {
					errs = append(errs, qerr)
				}
			}
		}
		if !active {
			return errors.Join(errs...)
		}
	}
	logger.Warn("recursive extract sweep hit iteration cap", "dir", tempDir, "cap", maxSweepIterations)
	return errors.Join(errs...)
}

// pruneEmptyDirs removes dir, and any directory beneath it, bottom-up,
// stopping as soon as it finds a non-empty one. It returns true if dir
// itself was removed.
func pruneEmptyDirs(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			pruneEmptyDirs(filepath.Join(dir, e.Name()))
		}
	}
	entries, err = os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return false
	}
	return os.Remove(dir) == nil
}

// classify moves any surviving top-level file whose name does not end in
// ".xml" to the error tree as WRONG_FILE_TYPE.
func classify(ctx context.Context, deps Deps, logs runLogs, tracker *lineage.Tracker, tempDir, errorFilesDir, dataSource, env string) error {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return fmt.Errorf("list %s: %w", tempDir, err)
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(strings.ToLower(name), ".xml") {
			continue
		}
		info, _ := tracker.Info(name)
		originalArchive := ""
		if info.Source == lineage.SourceExtracted {
			originalArchive = info.RootArchive
		}
		path := filepath.Join(tempDir, name)
		if err := quarantine.Quarantine(ctx, deps.Store, tracker, deps.Logger, logs.errors,
			path, errorFilesDir, dataSource, env, store.ErrorKindWrongFileType, info.OriginFolder, originalArchive); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// uploadAndArchive invokes the data-lake upload stub for each bundle still
// in tempDir, then moves it to backupDir and updates its tracking row.
func uploadAndArchive(ctx context.Context, deps Deps, tempDir, backupDir, dataSource, env string, logger *slog.Logger) error {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return fmt.Errorf("list %s: %w", tempDir, err)
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		name := e.Name()
		path := filepath.Join(tempDir, name)
		objectKey := fmt.Sprintf("%s/%s/%s", dataSource, env, name)

		if err := deps.Uploader.Upload(ctx, env, dataSource, path, objectKey); err != nil {
			logger.Error("data lake upload failed, archive still moves to backup", "archive", name, "error", err)
		} else if err := deps.Store.UpdateUploadStatus(ctx, name, true); err != nil {
			logger.Error("failed to record upload status", "archive", name, "error", err)
		}

		dest := filepath.Join(backupDir, name)
		if err := os.Rename(path, dest); err != nil {
			errs = append(errs, fmt.Errorf("move %s to backup: %w", name, err))
			continue
		}
		if err := deps.Store.UpdateBackupPath(ctx, name, dest); err != nil {
			logger.Error("failed to record backup path", "archive", name, "error", err)
		}
	}
	return errors.Join(errs...)
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}
