package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver
)

// schemaSQL creates the five tables the core reads and writes, grounded on
// InitializeSchema (internal/db/state.go) but targeting Postgres instead of
// DuckDB, since this DAO backs a relational tracking store rather than an
// embedded analytics engine.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS data_source (
	id     BIGSERIAL PRIMARY KEY,
	name   TEXT NOT NULL UNIQUE,
	active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS folder_path (
	id             BIGSERIAL PRIMARY KEY,
	data_source_id BIGINT NOT NULL REFERENCES data_source(id),
	environment    TEXT NOT NULL,
	folder_path    TEXT NOT NULL,
	active         BOOLEAN NOT NULL DEFAULT true
);
CREATE INDEX IF NOT EXISTS idx_folder_path_data_source ON folder_path(data_source_id);

CREATE TABLE IF NOT EXISTS setting (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS error_log (
	id                          TEXT PRIMARY KEY,
	data_source                 TEXT NOT NULL,
	environment                 TEXT NOT NULL,
	error_kind                  TEXT NOT NULL,
	file_name                   TEXT NOT NULL,
	folder_path                 TEXT,
	original_archive_file_name  TEXT,
	solved                      BOOLEAN NOT NULL DEFAULT false,
	created_at                  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_error_log_data_source ON error_log(data_source, environment);

CREATE TABLE IF NOT EXISTS bundle_tracking (
	id                   BIGSERIAL PRIMARY KEY,
	final_archive_name   TEXT NOT NULL,
	data_source          TEXT NOT NULL,
	environment          TEXT NOT NULL,
	source_folder_paths  TEXT NOT NULL,
	files_info           TEXT NOT NULL,
	bundle_size_bytes    BIGINT NOT NULL,
	total_files_count    INT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL,
	backup_path          TEXT,
	uploaded_to_datalake BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_bundle_tracking_archive ON bundle_tracking(final_archive_name);
`

// Store is the DAO boundary used by the core. A single implementation
// (*PostgresStore) backs it; callers in the core only ever see this
// interface, treating persistence as an external collaborator with a
// narrow read/write contract.
type Store interface {
	ActiveDataSources(ctx context.Context) ([]DataSource, error)
	ActiveFolderPaths(ctx context.Context, dataSourceID int64) ([]FolderPath, error)
	MaxZipSizeMB(ctx context.Context) int

	InsertErrorLog(ctx context.Context, row ErrorLog) error
	InsertBundleTracking(ctx context.Context, row BundleTracking) (int64, error)
	UpdateBackupPath(ctx context.Context, finalArchiveName, path string) error
	UpdateUploadStatus(ctx context.Context, finalArchiveName string, uploaded bool) error

	BundleTrackingSince(ctx context.Context, cutoff time.Time) ([]BundleTracking, error)
	RecentErrorLogs(ctx context.Context, limit int) ([]ErrorLog, error)
}

// PostgresStore is the Store implementation backed by database/sql + lib/pq.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to Postgres and ensures the schema exists, the way the
// teacher's PersistentPreRunE opens DuckDB and calls InitializeSchema.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ActiveDataSources(ctx context.Context) ([]DataSource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, active FROM data_source WHERE active = true`)
	if err != nil {
		return nil, fmt.Errorf("query active data sources: %w", err)
	}
	defer rows.Close()

	var out []DataSource
	for rows.Next() {
		var d DataSource
		if err := rows.Scan(&d.ID, &d.Name, &d.Active); err != nil {
			return nil, fmt.Errorf("scan data source: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ActiveFolderPaths(ctx context.Context, dataSourceID int64) ([]FolderPath, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data_source_id, environment, folder_path, active
		 FROM folder_path WHERE data_source_id = $1 AND active = true`, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("query folder paths: %w", err)
	}
	defer rows.Close()

	var out []FolderPath
	for rows.Next() {
		var f FolderPath
		if err := rows.Scan(&f.ID, &f.DataSourceID, &f.Environment, &f.FolderPath, &f.Active); err != nil {
			return nil, fmt.Errorf("scan folder path: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// MaxZipSizeMB reads the MAX_ZIP_SIZE setting and returns the bundle byte
// cap in megabytes. Any failure to find or parse the row falls back to the
// conservative 1 MB default rather than an ambiguous unit.
func (s *PostgresStore) MaxZipSizeMB(ctx context.Context) int {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM setting WHERE name = $1`, SettingMaxZipSize).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 1
	}
	if err != nil {
		s.logger.Warn("failed to read MAX_ZIP_SIZE setting, using default", "error", err)
		return 1
	}
	mb, err := strconv.Atoi(value)
	if err != nil || mb <= 0 {
		s.logger.Warn("invalid MAX_ZIP_SIZE setting value, using default", "value", value)
		return 1
	}
	return mb
}

// InsertErrorLog writes one offending-file row, retrying with a fresh id on
// a primary-key collision.
func (s *PostgresStore) InsertErrorLog(ctx context.Context, row ErrorLog) error {
	const maxAttempts = 5
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO error_log
				(id, data_source, environment, error_kind, file_name, folder_path, original_archive_file_name, solved, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			row.ID, row.DataSource, row.Environment, row.ErrorKind, row.FileName,
			nullableString(row.FolderPath), nullableString(row.OriginalArchiveFileName), row.Solved, row.CreatedAt)
		if err == nil {
			return nil
		}
		lastErr = err
		row.ID = "" // force regeneration on retry
	}
	return fmt.Errorf("insert error log after retries: %w", lastErr)
}

// InsertBundleTracking writes a new row before the archive is moved to
// backup.
func (s *PostgresStore) InsertBundleTracking(ctx context.Context, row BundleTracking) (int64, error) {
	folders, err := json.Marshal(row.SourceFolderPaths)
	if err != nil {
		return 0, fmt.Errorf("marshal source folder paths: %w", err)
	}
	files, err := json.Marshal(row.FilesInfo)
	if err != nil {
		return 0, fmt.Errorf("marshal files info: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO bundle_tracking
			(final_archive_name, data_source, environment, source_folder_paths, files_info,
			 bundle_size_bytes, total_files_count, created_at, backup_path, uploaded_to_datalake)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		row.FinalArchiveName, row.DataSource, row.Environment, string(folders), string(files),
		row.BundleSizeBytes, row.TotalFilesCount, row.CreatedAt, nullableString(row.BackupPath), row.UploadedToDatalake,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert bundle tracking: %w", err)
	}
	return id, nil
}

// UpdateBackupPath locates the latest row by final_archive_name (unique in
// practice because of the embedded timestamp) and sets its backup path.
func (s *PostgresStore) UpdateBackupPath(ctx context.Context, finalArchiveName, path string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bundle_tracking SET backup_path = $1
		WHERE id = (SELECT id FROM bundle_tracking WHERE final_archive_name = $2 ORDER BY id DESC LIMIT 1)`,
		path, finalArchiveName)
	if err != nil {
		return fmt.Errorf("update backup path for %s: %w", finalArchiveName, err)
	}
	return nil
}

// UpdateUploadStatus mirrors UpdateBackupPath for the uploaded flag.
func (s *PostgresStore) UpdateUploadStatus(ctx context.Context, finalArchiveName string, uploaded bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bundle_tracking SET uploaded_to_datalake = $1
		WHERE id = (SELECT id FROM bundle_tracking WHERE final_archive_name = $2 ORDER BY id DESC LIMIT 1)`,
		uploaded, finalArchiveName)
	if err != nil {
		return fmt.Errorf("update upload status for %s: %w", finalArchiveName, err)
	}
	return nil
}

func (s *PostgresStore) BundleTrackingSince(ctx context.Context, cutoff time.Time) ([]BundleTracking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, final_archive_name, data_source, environment, source_folder_paths, files_info,
		       bundle_size_bytes, total_files_count, created_at, COALESCE(backup_path, ''), uploaded_to_datalake
		FROM bundle_tracking WHERE created_at >= $1 ORDER BY created_at DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query bundle tracking: %w", err)
	}
	defer rows.Close()

	var out []BundleTracking
	for rows.Next() {
		var b BundleTracking
		var folders, files string
		if err := rows.Scan(&b.ID, &b.FinalArchiveName, &b.DataSource, &b.Environment, &folders, &files,
			&b.BundleSizeBytes, &b.TotalFilesCount, &b.CreatedAt, &b.BackupPath, &b.UploadedToDatalake); err != nil {
			return nil, fmt.Errorf("scan bundle tracking: %w", err)
		}
		_ = json.Unmarshal([]byte(folders), &b.SourceFolderPaths)
		_ = json.Unmarshal([]byte(files), &b.FilesInfo)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecentErrorLogs(ctx context.Context, limit int) ([]ErrorLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data_source, environment, error_kind, file_name, COALESCE(folder_path, ''),
		       COALESCE(original_archive_file_name, ''), solved, created_at
		FROM error_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query error log: %w", err)
	}
	defer rows.Close()

	var out []ErrorLog
	for rows.Next() {
		var e ErrorLog
		if err := rows.Scan(&e.ID, &e.DataSource, &e.Environment, &e.ErrorKind, &e.FileName,
			&e.FolderPath, &e.OriginalArchiveFileName, &e.Solved, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
