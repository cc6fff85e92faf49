// Package store is the DAO boundary: narrow read/write contracts over the
// data_source, folder_path, setting, error_log, and bundle_tracking tables.
// The core never depends on a specific ORM; it depends on this interface.
package store

import "time"

// DataSource is a logical ingest target. Read-only to the core.
type DataSource struct {
	ID     int64
	Name   string
	Active bool
}

// FolderPath is a physical directory drained on each ingestion tick.
type FolderPath struct {
	ID           int64
	DataSourceID int64
	Environment  string
	FolderPath   string
	Active       bool
}

// Setting is a named scalar configuration row.
type Setting struct {
	Name  string
	Value string
}

// SettingMaxZipSize is the Setting name the core reads for the per-bundle
// byte cap, interpreted as megabytes.
const SettingMaxZipSize = "MAX_ZIP_SIZE"

// ErrorKind enumerates the three quarantine reasons the core can emit.
type ErrorKind string

const (
	ErrorKindDuplicateFile   ErrorKind = "DUPLICATE_FILE"
	ErrorKindWrongFileType   ErrorKind = "WRONG_FILE_TYPE"
	ErrorKindExtractionError ErrorKind = "EXTRACTION_ERROR"
)

// ErrorLog is one quarantined file.
type ErrorLog struct {
	ID                      string
	DataSource              string
	Environment             string
	ErrorKind               ErrorKind
	FileName                string
	FolderPath              string
	OriginalArchiveFileName string
	Solved                  bool
	CreatedAt               time.Time
}

// FileInfo mirrors the lineage tracker's per-file record, serialized into a
// BundleTracking row's files_info list.
type FileInfo struct {
	FileName           string
	Source             string // "direct" or "extracted"
	SizeBytes          int64
	OriginalFolderPath string
	OriginalZip        string // root archive name; empty for direct files
}

// BundleTracking is one produced output archive.
type BundleTracking struct {
	ID                int64
	FinalArchiveName  string
	DataSource        string
	Environment       string
	SourceFolderPaths []string
	FilesInfo         []FileInfo
	BundleSizeBytes   int64
	TotalFilesCount   int
	CreatedAt         time.Time
	BackupPath        string
	UploadedToDatalake bool
}
