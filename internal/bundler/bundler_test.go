package bundler

import (
	"archive/zip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arclake/ingestord/internal/lineage"
	"github.com/arclake/ingestord/internal/store"
)

type fakeStore struct {
	rows []store.BundleTracking
}

func (f *fakeStore) ActiveDataSources(ctx context.Context) ([]store.DataSource, error) { return nil, nil }
func (f *fakeStore) ActiveFolderPaths(ctx context.Context, dataSourceID int64) ([]store.FolderPath, error) {
	return nil, nil
}
func (f *fakeStore) MaxZipSizeMB(ctx context.Context) int                          { return 1 }
func (f *fakeStore) InsertErrorLog(ctx context.Context, row store.ErrorLog) error  { return nil }
func (f *fakeStore) InsertBundleTracking(ctx context.Context, row store.BundleTracking) (int64, error) {
	f.rows = append(f.rows, row)
	return int64(len(f.rows)), nil
}
func (f *fakeStore) UpdateBackupPath(ctx context.Context, finalArchiveName, path string) error { return nil }
func (f *fakeStore) UpdateUploadStatus(ctx context.Context, finalArchiveName string, uploaded bool) error {
	return nil
}
func (f *fakeStore) BundleTrackingSince(ctx context.Context, cutoff time.Time) ([]store.BundleTracking, error) {
	return f.rows, nil
}
func (f *fakeStore) RecentErrorLogs(ctx context.Context, limit int) ([]store.ErrorLog, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedCandidate(t *testing.T, dir, name string, content []byte) Candidate {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("seed candidate %s: %v", name, err)
	}
	return Candidate{
		Path: path,
		Name: name,
		Size: int64(len(content)),
		Info: lineage.FileInfo{Source: lineage.SourceDirect, OriginFolder: "/folders/one"},
	}
}

func TestBundleSingleArchiveUnderCap(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	candidates := []Candidate{
		seedCandidate(t, srcDir, "a.xml", []byte("aaaa")),
		seedCandidate(t, srcDir, "b.xml", []byte("bb")),
	}

	sourceFolders := []string{"/folders/one", "/folders/two"}
	st := &fakeStore{}
	if err := Bundle(context.Background(), st, discardLogger(), destDir, "acme", "prod", 1<<20, candidates, sourceFolders); err != nil {
		t.Fatalf("Bundle: %v", err)
	}

	if len(st.rows) != 1 {
		t.Fatalf("got %d bundle_tracking rows, want 1", len(st.rows))
	}
	if st.rows[0].TotalFilesCount != 2 {
		t.Errorf("TotalFilesCount = %d, want 2", st.rows[0].TotalFilesCount)
	}
	if got := st.rows[0].SourceFolderPaths; len(got) != 2 || got[0] != "/folders/one" || got[1] != "/folders/two" {
		t.Errorf("SourceFolderPaths = %v, want the full pass-wide set %v", got, sourceFolders)
	}

	for _, c := range candidates {
		if _, err := os.Stat(c.Path); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed once bundled", c.Path)
		}
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatalf("read dest dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files in dest dir, want 1 zip", len(entries))
	}

	archiveInfo, err := os.Stat(filepath.Join(destDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("stat produced archive: %v", err)
	}
	if st.rows[0].BundleSizeBytes != archiveInfo.Size() {
		t.Errorf("BundleSizeBytes = %d, want the on-disk archive size %d", st.rows[0].BundleSizeBytes, archiveInfo.Size())
	}
	if st.rows[0].BundleSizeBytes == int64(len("aaaa")+len("bb")) {
		t.Error("BundleSizeBytes should be the archive's own size, not the sum of uncompressed input bytes")
	}
}

func TestBundleSplitsWhenCapWouldBeExceeded(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	candidates := []Candidate{
		seedCandidate(t, srcDir, "a.xml", []byte("12345")), // 5 bytes
		seedCandidate(t, srcDir, "b.xml", []byte("12345")), // 5 bytes; 5+5=10 > cap(8) -> new bundle
	}

	st := &fakeStore{}
	if err := Bundle(context.Background(), st, discardLogger(), destDir, "acme", "prod", 8, candidates, []string{"/folders/one"}); err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if len(st.rows) != 2 {
		t.Fatalf("got %d bundle_tracking rows, want 2", len(st.rows))
	}
}

func TestBundleExactFitStaysInSameArchive(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	candidates := []Candidate{
		seedCandidate(t, srcDir, "a.xml", []byte("1234")), // 4 bytes
		seedCandidate(t, srcDir, "b.xml", []byte("1234")), // 4+4=8, exactly the cap
	}

	st := &fakeStore{}
	if err := Bundle(context.Background(), st, discardLogger(), destDir, "acme", "prod", 8, candidates, []string{"/folders/one"}); err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if len(st.rows) != 1 {
		t.Fatalf("got %d bundle_tracking rows, want 1 (exact fit must not split)", len(st.rows))
	}
	if st.rows[0].TotalFilesCount != 2 {
		t.Errorf("TotalFilesCount = %d, want 2", st.rows[0].TotalFilesCount)
	}
}

func TestBundleProducesReadableZipWithExpectedContent(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	candidates := []Candidate{
		seedCandidate(t, srcDir, "a.xml", []byte("<a/>")),
	}

	st := &fakeStore{}
	if err := Bundle(context.Background(), st, discardLogger(), destDir, "acme", "prod", 1<<20, candidates, []string{"/folders/one"}); err != nil {
		t.Fatalf("Bundle: %v", err)
	}

	entries, err := os.ReadDir(destDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected exactly one zip in dest dir: %v", err)
	}

	zr, err := zip.OpenReader(filepath.Join(destDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("open produced zip: %v", err)
	}
	defer zr.Close()

	if len(zr.File) != 1 || zr.File[0].Name != "a.xml" {
		t.Fatalf("zip contents = %+v, want single entry a.xml", zr.File)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open zip entry: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read zip entry: %v", err)
	}
	if string(data) != "<a/>" {
		t.Errorf("entry content = %q, want <a/>", data)
	}
}

func TestBundleEmptyCandidatesIsNoop(t *testing.T) {
	destDir := t.TempDir()
	st := &fakeStore{}
	if err := Bundle(context.Background(), st, discardLogger(), destDir, "acme", "prod", 1<<20, nil, nil); err != nil {
		t.Fatalf("Bundle with no candidates: %v", err)
	}
	if len(st.rows) != 0 {
		t.Errorf("expected no bundle_tracking rows for an empty candidate set")
	}
}
