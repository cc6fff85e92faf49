// Package layout materializes the per-data-source directory tree. Grounded
// on the directory-creation idiom scattered through cmd/root.go and main.go
// (plain os.MkdirAll calls) and the original's setupFolders/createFolder
// (org.ft.services.FileProcessorService).
package layout

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	TempDir       = "temp"
	BackupDir     = "backup"
	LogDir        = "log"
	ErrorDir      = "error"
	ErrorFilesDir = "files"
	ErrorLogDir   = "log"
)

// RunPaths is the materialized directory tree for one DataSource.
type RunPaths struct {
	DataSourceName string
	BasePath       string
}

// New resolves the base path for a data source without touching disk.
func New(processingRoot, dataSourceName string) RunPaths {
	return RunPaths{
		DataSourceName: dataSourceName,
		BasePath:       filepath.Join(processingRoot, dataSourceName),
	}
}

// Temp returns temp/<env>.
func (p RunPaths) Temp(env string) string { return filepath.Join(p.BasePath, TempDir, env) }

// Backup returns backup/<env>.
func (p RunPaths) Backup(env string) string { return filepath.Join(p.BasePath, BackupDir, env) }

// Log returns the log/ directory (not environment-partitioned).
func (p RunPaths) Log() string { return filepath.Join(p.BasePath, LogDir) }

// ErrorFiles returns error/files/<env>.
func (p RunPaths) ErrorFiles(env string) string {
	return filepath.Join(p.BasePath, ErrorDir, ErrorFilesDir, env)
}

// ErrorLog returns error/log/.
func (p RunPaths) ErrorLog() string {
	return filepath.Join(p.BasePath, ErrorDir, ErrorLogDir)
}

// Ensure creates base, temp/<env>, backup/<env>, log, error/files/<env>, and
// error/log for the given environment, creating parents as needed. Safe to
// call concurrently across different data sources; call it before any work
// touches the tree.
func (p RunPaths) Ensure(env string) error {
	dirs := []string{
		p.BasePath,
		p.Temp(env),
		p.Backup(env),
		p.Log(),
		p.ErrorFiles(env),
		p.ErrorLog(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return nil
}
