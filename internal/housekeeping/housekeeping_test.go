package housekeeping

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackupArchiveTimestampParsesName(t *testing.T) {
	ts, ok := backupArchiveTimestamp("acme_20240115T093000.zip")
	if !ok {
		t.Fatal("expected a parseable timestamp")
	}
	want := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("got %v, want %v", ts, want)
	}
}

func TestBackupArchiveTimestampRejectsUnrecognizedName(t *testing.T) {
	if _, ok := backupArchiveTimestamp("not-an-archive.zip"); ok {
		t.Error("expected no timestamp to be extracted from an unrecognized name")
	}
	if _, ok := backupArchiveTimestamp("acme_20240115T093000.zip.part"); ok {
		t.Error("expected a mangled extension to fail parsing")
	}
}

func TestLogFileTimestampParsesName(t *testing.T) {
	ts, ok := logFileTimestamp("acme_2024-01-15.txt")
	if !ok {
		t.Fatal("expected a parseable timestamp")
	}
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("got %v, want %v", ts, want)
	}
}

func TestLogFileTimestampRejectsNameWithoutDataSourcePrefix(t *testing.T) {
	if _, ok := logFileTimestamp("2024-01-15.txt"); ok {
		t.Error("expected no timestamp without a <data_source>_ prefix")
	}
}

func TestSweepDeletesOnlyFilesOlderThanCutoff(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "acme_20200101T000000.zip")
	recent := filepath.Join(dir, "acme_20991231T000000.zip")
	unrecognized := filepath.Join(dir, "readme.txt")

	for _, p := range []string{old, recent, unrecognized} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}

	cutoff := time.Now()
	Sweep(context.Background(), discardLogger(), []string{dir}, nil, cutoff, time.Time{})

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected the old backup to be deleted")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("expected the future-dated backup to survive")
	}
	if _, err := os.Stat(unrecognized); err != nil {
		t.Error("expected the unrecognized file to be left alone")
	}
}

func TestSweepDeletesOldLogFilesByDataSourcePrefix(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "acme_2020-01-01.txt")
	recent := filepath.Join(dir, "acme_2099-12-31.txt")

	for _, p := range []string{old, recent} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}

	cutoff := time.Now()
	Sweep(context.Background(), discardLogger(), nil, []string{dir}, time.Time{}, cutoff)

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected the old log file to be deleted")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("expected the future-dated log file to survive")
	}
}

func TestSweepMissingDirectoryIsNotAnError(t *testing.T) {
	Sweep(context.Background(), discardLogger(), []string{filepath.Join(t.TempDir(), "missing")}, nil, time.Now(), time.Time{})
}
