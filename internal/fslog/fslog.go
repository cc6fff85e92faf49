// Package fslog writes a date-stamped, append-only human-readable log file
// per data source, independent of the process's structured slog output.
// Grounded on the original's LogWriterService, which keeps its own log
// tree alongside the database error log.
package fslog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer appends timestamped lines to dir/<dataSource>_<yyyy-MM-dd>.txt,
// opening a new file whenever the date rolls over.
type Writer struct {
	mu         sync.Mutex
	dir        string
	dataSource string
	day        string
	file       *os.File
}

// New returns a Writer rooted at dir, naming each day's file after
// dataSource. dir is created lazily on first Write.
func New(dir, dataSource string) *Writer {
	return &Writer{dir: dir, dataSource: dataSource}
}

// Write appends one line, prefixed with a "yyyy:MM:dd HH:mm:ss" timestamp,
// to today's file, rolling over to a new file if the date has changed
// since the last call.
func (w *Writer) Write(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	day := now.Format("2006-01-02")
	if w.file == nil || day != w.day {
		if w.file != nil {
			w.file.Close()
		}
		if err := os.MkdirAll(w.dir, 0o755); err != nil {
			return fmt.Errorf("create log directory %s: %w", w.dir, err)
		}
		path := filepath.Join(w.dir, w.dataSource+"_"+day+".txt")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", path, err)
		}
		w.file = f
		w.day = day
	}

	line := fmt.Sprintf("%s: %s\n", now.Format("2006:01:02 15:04:05"), message)
	if _, err := w.file.WriteString(line); err != nil {
		return fmt.Errorf("write log line: %w", err)
	}
	return nil
}

// Close releases the underlying file handle, if one is open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
