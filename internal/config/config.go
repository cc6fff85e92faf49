// Package config holds the runtime configuration for ingestord.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default settings, used when neither a config file nor a flag supplies a
// value. Environment variables are not read.
const (
	DefaultProcessingRoot    = "./ingest"
	DefaultNumWorkers        = 0 // 0 means the scheduler falls back to its own pool size
	DefaultIngestCron        = "0 */1 * * * *"
	DefaultHousekeepingCron  = "0 0 0 * * *"
	DefaultRetainBackupYears = 1
	DefaultRetainLogMonths   = 6

	// DefaultMaxZipSizeMB is the conservative fallback when the MAX_ZIP_SIZE
	// setting row is missing or unparsable. Kept at exactly 1 MB, unlike the
	// original's ambiguous "1 vs 1024*1024" constant.
	DefaultMaxZipSizeMB = 1
)

// Config is the fully resolved configuration for one ingestord process.
type Config struct {
	ProcessingRoot string `yaml:"processing_root"`
	DatabaseDSN    string `yaml:"database_dsn"`
	NumWorkers     int    `yaml:"num_workers"`

	UploadToDatalake  bool `yaml:"upload_to_datalake"`
	RetainBackupYears int  `yaml:"retain_backup_years"`
	RetainLogMonths   int  `yaml:"retain_log_months"`

	IngestCron       string `yaml:"ingest_cron"`
	HousekeepingCron string `yaml:"housekeeping_cron"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
	LogOutput string `yaml:"log_output"`

	Datalake DatalakeConfig `yaml:"datalake"`
}

// DatalakeConfig configures the optional minio-backed upload stub.
type DatalakeConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Default returns a Config with every field set to its documented default.
func Default() Config {
	return Config{
		ProcessingRoot:    DefaultProcessingRoot,
		NumWorkers:        DefaultNumWorkers,
		RetainBackupYears: DefaultRetainBackupYears,
		RetainLogMonths:   DefaultRetainLogMonths,
		IngestCron:        DefaultIngestCron,
		HousekeepingCron:  DefaultHousekeepingCron,
		LogFormat:         "text",
		LogLevel:          "info",
		LogOutput:         "stderr",
	}
}

// LoadFile layers a YAML config file on top of the defaults. An empty path
// skips this layer and returns the defaults; a path that cannot be read is
// an error.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable before the service
// starts.
func (c Config) Validate() error {
	if c.ProcessingRoot == "" {
		return fmt.Errorf("processing_root is required")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database_dsn is required")
	}
	if c.NumWorkers < 0 {
		return fmt.Errorf("num_workers must not be negative")
	}
	return nil
}
