// Package scheduler fires the ingestion pipeline on a periodic tick and
// the housekeeping sweep on a daily tick, enforcing single-flight across
// the whole process. Grounded on the original's Scheduler (org.ft.scheduler,
// a ThreadPoolTaskScheduler with a 50-thread pool and a CompletableFuture
// fan-out per DataSource) and solaius-kf-reg's WorkerPool for the bounded
// goroutine fan-out shape, replacing the original's shared mutable
// `isRunning` boolean with an atomic flag that is always cleared, even on
// panic.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arclake/ingestord/internal/housekeeping"
	"github.com/arclake/ingestord/internal/layout"
	"github.com/arclake/ingestord/internal/pipeline"
	"github.com/arclake/ingestord/internal/store"
)

// defaultWorkerPoolSize mirrors the original's ThreadPoolTaskScheduler
// pool size.
const defaultWorkerPoolSize = 50

// Scheduler owns the cron triggers and the single-flight guard for the
// ingestion tick.
type Scheduler struct {
	store          store.Store
	deps           pipeline.Deps
	logger         *slog.Logger
	processingRoot string
	workerPoolSize int

	retainBackupYears int
	retainLogMonths   int

	running atomic.Bool
	cron    *cron.Cron
}

// New creates a Scheduler. Its cron parser takes six-field, seconds-first
// expressions, the form Start expects for ingestCron and housekeepingCron.
func New(st store.Store, deps pipeline.Deps, logger *slog.Logger, processingRoot string,
	workerPoolSize, retainBackupYears, retainLogMonths int) *Scheduler {

	if workerPoolSize <= 0 {
		workerPoolSize = defaultWorkerPoolSize
	}
	return &Scheduler{
		store:             st,
		deps:              deps,
		logger:            logger,
		processingRoot:    processingRoot,
		workerPoolSize:    workerPoolSize,
		retainBackupYears: retainBackupYears,
		retainLogMonths:   retainLogMonths,
		cron:              cron.New(cron.WithSeconds()),
	}
}

// Start registers both cron jobs and begins running them. Call Stop to
// shut down cleanly.
func (s *Scheduler) Start(ctx context.Context, ingestCron, housekeepingCron string) error {
	if _, err := s.cron.AddFunc(ingestCron, func() { s.runIngestionTick(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(housekeepingCron, func() { s.runHousekeepingTick(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop blocks until any in-flight cron invocation returns.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce runs a single ingestion tick synchronously, for the one-shot CLI
// path. It honors the same single-flight guard as the scheduled tick.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runIngestionTick(ctx)
}

// runIngestionTick is the cron-fired entry point: check-and-set running,
// fan out over every active DataSource bounded by workerPoolSize, then
// clear running on every exit path.
func (s *Scheduler) runIngestionTick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("ingestion tick skipped, previous run still in flight")
		return
	}
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("ingestion tick panicked", "panic", r)
		}
	}()

	sources, err := s.store.ActiveDataSources(ctx)
	if err != nil {
		s.logger.Error("failed to load active data sources", "error", err)
		return
	}

	sem := make(chan struct{}, s.workerPoolSize)
	var wg sync.WaitGroup
	for _, ds := range sources {
		sem <- struct{}{}
		wg.Add(1)
		go func(ds store.DataSource) {
			defer wg.Done()
			defer func() { <-sem }()
			s.runOne(ctx, ds)
		}(ds)
	}
	wg.Wait()
}

// runOne processes a single DataSource, isolating any failure so it never
// aborts the rest of the tick.
func (s *Scheduler) runOne(ctx context.Context, ds store.DataSource) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("data source pass panicked", "data_source", ds.Name, "panic", r)
		}
	}()

	folders, err := s.store.ActiveFolderPaths(ctx, ds.ID)
	if err != nil {
		s.logger.Error("failed to load folder paths", "data_source", ds.Name, "error", err)
		return
	}
	maxZipSizeMB := s.store.MaxZipSizeMB(ctx)
	if err := pipeline.RunDataSource(ctx, s.deps, s.processingRoot, ds, folders, maxZipSizeMB); err != nil {
		s.logger.Error("data source pass failed", "data_source", ds.Name, "error", err)
	}
}

// runHousekeepingTick deletes backups and logs older than the configured
// retention windows, across every active DataSource. It shares the
// ingestion tick's single-flight guard so a sweep never runs concurrently
// with a pass that is still writing backups.
func (s *Scheduler) runHousekeepingTick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("housekeeping tick skipped, a tick is already in flight")
		return
	}
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("housekeeping tick panicked", "panic", r)
		}
	}()

	sources, err := s.store.ActiveDataSources(ctx)
	if err != nil {
		s.logger.Error("failed to load active data sources for housekeeping", "error", err)
		return
	}

	backupCutoff := time.Now().AddDate(-s.retainBackupYears, 0, 0)
	logCutoff := time.Now().AddDate(0, -s.retainLogMonths, 0)

	for _, ds := range sources {
		folders, err := s.store.ActiveFolderPaths(ctx, ds.ID)
		if err != nil {
			s.logger.Error("failed to load folder paths for housekeeping", "data_source", ds.Name, "error", err)
			continue
		}
		envs := map[string]struct{}{}
		for _, f := range folders {
			envs[f.Environment] = struct{}{}
		}

		p := layout.New(s.processingRoot, ds.Name)
		var backupDirs, logDirs []string
		for env := range envs {
			backupDirs = append(backupDirs, p.Backup(env))
		}
		logDirs = append(logDirs, p.Log(), p.ErrorLog())

		housekeeping.Sweep(ctx, s.logger.With("data_source", ds.Name), backupDirs, logDirs, backupCutoff, logCutoff)
	}
}
