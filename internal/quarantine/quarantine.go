// Package quarantine moves offending files out of the working tree and
// records why. Grounded on the original's moveToErrorFolder and the
// independent running-number counter used only for error-folder
// collisions (org.ft.services.FileProcessorService), kept separate from
// the extractor's own name-uniqueness counter so the two never interfere.
package quarantine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arclake/ingestord/internal/fslog"
	"github.com/arclake/ingestord/internal/lineage"
	"github.com/arclake/ingestord/internal/store"
)

// Quarantine moves path into errorFilesDir (suffixing the name if one
// already exists there, independently of any extraction-time collision
// counter), drops the file from tracker so it never surfaces in a bundle,
// and records an ErrorLog row. Failures to persist the ErrorLog row are
// logged and swallowed: a database outage must never abort the pass.
// errorLog may be nil, in which case the date-stamped error log file is
// skipped; a failure to write it is logged and swallowed for the same
// reason as the database row.
func Quarantine(ctx context.Context, st store.Store, tracker *lineage.Tracker, logger *slog.Logger, errorLog *fslog.Writer,
	path, errorFilesDir, dataSource, environment string, kind store.ErrorKind, folderPath, originalArchive string) error {

	name := filepath.Base(path)
	tracker.Remove(name)

	dest, err := uniqueErrorPath(errorFilesDir, name)
	if err != nil {
		return fmt.Errorf("resolve error-folder destination for %s: %w", name, err)
	}
	if err := os.MkdirAll(errorFilesDir, 0o755); err != nil {
		return fmt.Errorf("create error folder %s: %w", errorFilesDir, err)
	}
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("move %s to error folder: %w", path, err)
	}

	if errorLog != nil {
		if err := errorLog.Write(quarantineMessage(kind, name)); err != nil {
			logger.Warn("failed to write error log file line", "file", name, "error", err)
		}
	}

	row := store.ErrorLog{
		DataSource:              dataSource,
		Environment:             environment,
		ErrorKind:               kind,
		FileName:                filepath.Base(dest),
		FolderPath:              folderPath,
		OriginalArchiveFileName: originalArchive,
		Solved:                  false,
		CreatedAt:               time.Now(),
	}
	if err := st.InsertErrorLog(ctx, row); err != nil {
		logger.Error("failed to record error log, file already quarantined on disk",
			"file", row.FileName, "kind", kind, "error", err)
	}
	return nil
}

// quarantineMessage mirrors the original's writeLog call that immediately
// precedes each moveToErrorFolder call, one message shape per ErrorKind.
func quarantineMessage(kind store.ErrorKind, name string) string {
	switch kind {
	case store.ErrorKindDuplicateFile:
		return fmt.Sprintf("File already duplicate: %s", name)
	case store.ErrorKindWrongFileType:
		return fmt.Sprintf("Unsupported file format: %s", name)
	case store.ErrorKindExtractionError:
		return fmt.Sprintf("Failed to extract compressed file: %s", name)
	default:
		return fmt.Sprintf("Quarantined file: %s", name)
	}
}

// uniqueErrorPath resolves a free destination inside dir for base, using a
// "(n)" suffix counter scoped to that directory alone. This mirrors
// getUniqueFileNameRunningNumber in the original: a file already in the
// error tree must never collide with one freshly quarantined there, but
// this counter has no bearing on the extractor's own uniqueness rule.
func uniqueErrorPath(dir, base string) (string, error) {
	candidate := filepath.Join(dir, base)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	} else if err != nil && !os.IsNotExist(err) {
		// dir may not exist yet; that is not a collision.
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
			return candidate, nil
		}
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		try := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", stem, n, ext))
		if _, err := os.Stat(try); os.IsNotExist(err) {
			return try, nil
		}
	}
}
