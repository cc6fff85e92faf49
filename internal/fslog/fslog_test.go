package fslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteCreatesTodaysFile(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "acme")
	defer w.Close()

	if err := w.Write("quarantined offender.csv"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	path := filepath.Join(dir, "acme_"+time.Now().Format("2006-01-02")+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file at %s: %v", path, err)
	}
	if !strings.Contains(string(data), "quarantined offender.csv") {
		t.Errorf("log content %q does not contain the written message", data)
	}
}

func TestWriteAppendsMultipleLines(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "acme")
	defer w.Close()

	if err := w.Write("first"); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	if err := w.Write("second"); err != nil {
		t.Fatalf("Write second: %v", err)
	}

	path := filepath.Join(dir, "acme_"+time.Now().Format("2006-01-02")+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
}

func TestCloseWithoutWriteIsNoop(t *testing.T) {
	w := New(t.TempDir(), "acme")
	if err := w.Close(); err != nil {
		t.Errorf("Close without Write: %v", err)
	}
}
