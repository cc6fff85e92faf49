package quarantine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arclake/ingestord/internal/fslog"
	"github.com/arclake/ingestord/internal/lineage"
	"github.com/arclake/ingestord/internal/store"
)

type fakeStore struct {
	errorLogs []store.ErrorLog
	failWrite bool
}

func (f *fakeStore) ActiveDataSources(ctx context.Context) ([]store.DataSource, error) { return nil, nil }
func (f *fakeStore) ActiveFolderPaths(ctx context.Context, dataSourceID int64) ([]store.FolderPath, error) {
	return nil, nil
}
func (f *fakeStore) MaxZipSizeMB(ctx context.Context) int { return 1 }
func (f *fakeStore) InsertErrorLog(ctx context.Context, row store.ErrorLog) error {
	if f.failWrite {
		return context.DeadlineExceeded
	}
	f.errorLogs = append(f.errorLogs, row)
	return nil
}
func (f *fakeStore) InsertBundleTracking(ctx context.Context, row store.BundleTracking) (int64, error) {
	return 1, nil
}
func (f *fakeStore) UpdateBackupPath(ctx context.Context, finalArchiveName, path string) error { return nil }
func (f *fakeStore) UpdateUploadStatus(ctx context.Context, finalArchiveName string, uploaded bool) error {
	return nil
}
func (f *fakeStore) BundleTrackingSince(ctx context.Context, cutoff time.Time) ([]store.BundleTracking, error) {
	return nil, nil
}
func (f *fakeStore) RecentErrorLogs(ctx context.Context, limit int) ([]store.ErrorLog, error) {
	return f.errorLogs, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQuarantineMovesFileAndRecordsRow(t *testing.T) {
	srcDir := t.TempDir()
	errDir := t.TempDir()

	src := filepath.Join(srcDir, "offender.csv")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tr := lineage.New()
	tr.TrackDirect("offender.csv", "/folders/one", 1)

	logDir := t.TempDir()
	errorLog := fslog.New(logDir, "acme")
	defer errorLog.Close()

	st := &fakeStore{}
	err := Quarantine(context.Background(), st, tr, discardLogger(), errorLog,
		src, errDir, "acme", "prod", store.ErrorKindWrongFileType, "/folders/one", "")
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source file should have been moved out of the working tree")
	}
	dest := filepath.Join(errDir, "offender.csv")
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("expected quarantined file at %s: %v", dest, err)
	}

	if len(st.errorLogs) != 1 {
		t.Fatalf("got %d error log rows, want 1", len(st.errorLogs))
	}
	if st.errorLogs[0].ErrorKind != store.ErrorKindWrongFileType {
		t.Errorf("ErrorKind = %q, want %q", st.errorLogs[0].ErrorKind, store.ErrorKindWrongFileType)
	}

	if _, ok := tr.Info("offender.csv"); ok {
		t.Error("quarantined file must be removed from the lineage tracker")
	}

	logPath := filepath.Join(logDir, "acme_"+time.Now().Format("2006-01-02")+".txt")
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("expected error log file at %s: %v", logPath, err)
	}
	if !strings.Contains(string(data), "Unsupported file format: offender.csv") {
		t.Errorf("error log content %q does not mention the quarantined file", data)
	}
}

func TestQuarantineSurvivesErrorLogFailure(t *testing.T) {
	srcDir := t.TempDir()
	errDir := t.TempDir()
	src := filepath.Join(srcDir, "offender.csv")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tr := lineage.New()
	st := &fakeStore{failWrite: true}
	err := Quarantine(context.Background(), st, tr, discardLogger(), nil,
		src, errDir, "acme", "prod", store.ErrorKindDuplicateFile, "/folders/one", "")
	if err != nil {
		t.Fatalf("Quarantine should swallow a database failure, got: %v", err)
	}
	if _, err := os.Stat(filepath.Join(errDir, "offender.csv")); err != nil {
		t.Errorf("file should still be quarantined on disk despite the db failure: %v", err)
	}
}

func TestUniqueErrorPathSuffixesOnCollision(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.csv"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	got, err := uniqueErrorPath(dir, "a.csv")
	if err != nil {
		t.Fatalf("uniqueErrorPath: %v", err)
	}
	want := filepath.Join(dir, "a(1).csv")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestUniqueErrorPathIndependentOfDirNotYetCreated(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "error", "files", "prod")

	got, err := uniqueErrorPath(dir, "a.csv")
	if err != nil {
		t.Fatalf("uniqueErrorPath: %v", err)
	}
	want := filepath.Join(dir, "a.csv")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
