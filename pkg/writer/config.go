package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Config holds the writer configuration.
type Config struct {
	// OutputDir is the directory where parquet files are written.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// RowGroupSize is the number of buffered rows that triggers a flush.
	RowGroupSize int `json:"row_group_size" yaml:"row_group_size"`

	// Compression names the column compression codec: snappy (default),
	// zstd, gzip, brotli, lz4, or uncompressed.
	Compression string `json:"compression" yaml:"compression"`

	// MaxRowGroupsPerFile rotates output files once a file holds this many
	// row groups. Zero writes a single file.
	MaxRowGroupsPerFile int `json:"max_row_groups_per_file" yaml:"max_row_groups_per_file"`

	// Journal configures the optional fill journal.
	Journal JournalConfig `json:"journal" yaml:"journal"`

	// Upload configures optional publication to object storage on finish.
	Upload UploadConfig `json:"upload" yaml:"upload"`
}

// JournalConfig configures the per-session fill journal.
type JournalConfig struct {
	// Enabled turns journaling on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is the journal directory. Defaults to OutputDir.
	Dir string `json:"dir" yaml:"dir"`
}

// UploadConfig configures publication of sealed files on finish.
type UploadConfig struct {
	// Enabled turns publication on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Type selects the backend: "local" or "s3".
	Type string `json:"type" yaml:"type"`

	// Prefix is prepended to every object path.
	Prefix string `json:"prefix" yaml:"prefix"`

	// LocalDir is the destination root for the local backend.
	LocalDir string `json:"local_dir" yaml:"local_dir"`

	// S3 holds the S3 backend settings.
	S3 S3UploadConfig `json:"s3" yaml:"s3"`
}

// S3UploadConfig holds S3 publication settings.
type S3UploadConfig struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default writer configuration.
func DefaultConfig() Config {
	return Config{
		OutputDir:    ".",
		RowGroupSize: 250000,
		Compression:  "snappy",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.RowGroupSize <= 0 {
		return fmt.Errorf("row_group_size must be positive, got %d", c.RowGroupSize)
	}
	if c.MaxRowGroupsPerFile < 0 {
		return fmt.Errorf("max_row_groups_per_file must not be negative, got %d", c.MaxRowGroupsPerFile)
	}

	switch c.Compression {
	case "", "snappy", "zstd", "gzip", "brotli", "lz4", "uncompressed":
	default:
		return fmt.Errorf("unknown compression codec: %s", c.Compression)
	}

	if c.Upload.Enabled {
		switch c.Upload.Type {
		case "local":
			if c.Upload.LocalDir == "" {
				return fmt.Errorf("upload.local_dir is required when upload type is local")
			}
		case "s3":
			if c.Upload.S3.Bucket == "" {
				return fmt.Errorf("upload.s3.bucket is required when upload type is s3")
			}
		default:
			return fmt.Errorf("invalid upload type: %s (must be local or s3)", c.Upload.Type)
		}
	}

	return nil
}

// LoadConfig loads configuration from a YAML or JSON file, applied on top of
// the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
