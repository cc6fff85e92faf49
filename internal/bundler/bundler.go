// Package bundler packs the classified temp files of one pass into
// fixed-cap zip archives and records one bundle_tracking row per archive.
// Grounded on the original's zipFiles/saveZipTrackingInfo/addFileToZip
// (org.ft.services.FileProcessorService), written with the plain
// archive/zip streaming-writer idiom used elsewhere in this module, with
// the size check changed to a strict "would overflow" comparison so a file
// that exactly fills the cap stays in the bundle it is offered to.
package bundler

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/arclake/ingestord/internal/lineage"
	"github.com/arclake/ingestord/internal/store"
)

const closeFlushDelay = time.Second

// Candidate is one file ready to be packed, with enough lineage context to
// produce its FilesInfo entry.
type Candidate struct {
	Path string
	Name string
	Size int64
	Info lineage.FileInfo
}

// Bundle packs candidates into one or more zip archives under destDir,
// named "<dataSource>_<yyyyMMdd'T'HHmmss>.zip", such that no archive's
// total uncompressed content exceeds capBytes unless a single file alone
// exceeds the cap (which then gets an archive to itself). Each closed
// archive is persisted as a bundle_tracking row before Bundle returns.
// Every successfully bundled candidate's source file is removed from disk.
// sourceFolders is recorded verbatim on every row as source_folder_paths:
// every origin folder that contributed to this pass, not just to the one
// archive being closed, matching the original's getAllSourceFolderPaths.
func Bundle(ctx context.Context, st store.Store, logger *slog.Logger,
	destDir, dataSource, environment string, capBytes int64, candidates []Candidate, sourceFolders []string) error {

	if len(candidates) == 0 {
		return nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create bundle destination %s: %w", destDir, err)
	}

	var (
		current  *openBundle
		firstErr error
	)

	flush := func() error {
		if current == nil {
			return nil
		}
		err := current.closeAndRecord(ctx, st, logger, dataSource, environment, sourceFolders)
		current = nil
		return err
	}

	for _, c := range candidates {
		select {
		case <-ctx.Done():
			_ = flush()
			return ctx.Err()
		default:
		}

		if current != nil && current.size+c.Size > capBytes {
			if err := flush(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if current == nil {
			ob, err := newOpenBundle(destDir, dataSource)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			current = ob
		}

		if err := current.add(c); err != nil {
			logger.Error("failed to add file to bundle, leaving it in place for the next pass", "file", c.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}
	if err := flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// openBundle is one zip archive under construction. size accumulates the
// uncompressed input bytes added so far, used only for the cap comparison;
// the recorded bundle_size_bytes comes from stat'ing the closed archive,
// since the two numbers diverge once compression is in play.
type openBundle struct {
	path    string
	archive string
	file    *os.File
	zw      *zip.Writer
	size    int64
	files   []store.FileInfo
}

func newOpenBundle(destDir, dataSource string) (*openBundle, error) {
	name := fmt.Sprintf("%s_%s.zip", dataSource, time.Now().Format("20060102T150405"))
	path := filepath.Join(destDir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create bundle %s: %w", path, err)
	}
	return &openBundle{path: path, archive: name, file: f, zw: zip.NewWriter(f)}, nil
}

func (b *openBundle) add(c Candidate) error {
	w, err := b.zw.Create(c.Name)
	if err != nil {
		return fmt.Errorf("add entry %s: %w", c.Name, err)
	}
	src, err := os.Open(c.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.Path, err)
	}
	_, err = io.Copy(w, src)
	src.Close()
	if err != nil {
		return fmt.Errorf("copy %s into bundle: %w", c.Path, err)
	}

	b.size += c.Size
	b.files = append(b.files, store.FileInfo{
		FileName:           c.Name,
		Source:             string(c.Info.Source),
		SizeBytes:          c.Size,
		OriginalFolderPath: c.Info.OriginFolder,
		OriginalZip:        c.Info.RootArchive,
	})

	if err := os.Remove(c.Path); err != nil {
		return fmt.Errorf("remove bundled source file %s: %w", c.Path, err)
	}
	return nil
}

// closeAndRecord finalizes the zip, waits out the flush delay before the
// file is considered durable (matching the original's explicit sleep
// between closing a zip and recording its tracking row), and inserts the
// bundle_tracking row.
func (b *openBundle) closeAndRecord(ctx context.Context, st store.Store, logger *slog.Logger,
	dataSource, environment string, sourceFolders []string) error {

	if err := b.zw.Close(); err != nil {
		b.file.Close()
		return fmt.Errorf("close zip writer for %s: %w", b.path, err)
	}
	if err := b.file.Close(); err != nil {
		return fmt.Errorf("close bundle file %s: %w", b.path, err)
	}
	if len(b.files) == 0 {
		return os.Remove(b.path)
	}

	time.Sleep(closeFlushDelay)

	archiveInfo, err := os.Stat(b.path)
	if err != nil {
		return fmt.Errorf("stat closed bundle %s: %w", b.path, err)
	}

	row := store.BundleTracking{
		FinalArchiveName:  b.archive,
		DataSource:        dataSource,
		Environment:       environment,
		SourceFolderPaths: sourceFolders,
		FilesInfo:         b.files,
		BundleSizeBytes:   archiveInfo.Size(),
		TotalFilesCount:   len(b.files),
		CreatedAt:         time.Now(),
	}
	if _, err := st.InsertBundleTracking(ctx, row); err != nil {
		logger.Error("failed to record bundle tracking row, archive is on disk but untracked",
			"archive", b.archive, "error", err)
		return fmt.Errorf("insert bundle tracking for %s: %w", b.archive, err)
	}
	return nil
}
