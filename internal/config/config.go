package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Defaults mirror the limits of remotes such as Box: single files above
// 1200 MB are chunked, and each chunk is capped at the same size.
const (
	DefaultThresholdBytes = 1_200_000_000
	DefaultChunkSizeBytes = 1_200_000_000
	DefaultRefreshSeconds = 300
)

// Config is passed explicitly into every component. Nothing reads it from
// package-level state.
type Config struct {
	// SourceDir is the local tree to back up.
	SourceDir string `yaml:"source_dir" envconfig:"SOURCE_DIR"`

	// Remote is the rclone remote name as defined in rclone config, e.g. "box".
	Remote string `yaml:"remote" envconfig:"REMOTE"`

	// DestDir is the folder on the remote that mirrors SourceDir.
	DestDir string `yaml:"dest_dir" envconfig:"DEST_DIR"`

	// ThresholdBytes is the large-file cutoff: files strictly larger than
	// this are chunked, files at or below it are copied whole.
	ThresholdBytes int64 `yaml:"threshold_bytes" envconfig:"THRESHOLD_BYTES"`

	// ChunkSizeBytes is the stride used when slicing large files. Changing
	// it between runs invalidates existing chunk sets.
	ChunkSizeBytes int64 `yaml:"chunk_size_bytes" envconfig:"CHUNK_SIZE_BYTES"`

	// RclonePath is the rclone binary to invoke. Empty means "rclone" on PATH.
	RclonePath string `yaml:"rclone_path" envconfig:"RCLONE_PATH"`

	// SkipExtensions lists file suffixes that are never transferred.
	SkipExtensions []string `yaml:"skip_extensions" envconfig:"SKIP_EXTENSIONS"`

	// RefreshSeconds is the full-sync interval in watch mode.
	RefreshSeconds int `yaml:"refresh_seconds" envconfig:"REFRESH_SECONDS"`

	// DryRun logs planned actions without writing or invoking rclone.
	DryRun bool `yaml:"dry_run" envconfig:"DRY_RUN"`
}

func Default() Config {
	return Config{
		ThresholdBytes: DefaultThresholdBytes,
		ChunkSizeBytes: DefaultChunkSizeBytes,
		RefreshSeconds: DefaultRefreshSeconds,
		RclonePath:     "rclone",
		SkipExtensions: []string{".tmp", ".temp", ".DS_Store"},
	}
}

// Load reads the optional YAML file at path, then applies RCLONE_CHUNKER_*
// environment overrides on top of it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("RCLONE_CHUNKER", &cfg); err != nil {
		return nil, fmt.Errorf("process env overrides: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return fmt.Errorf("source_dir is required")
	}
	info, err := os.Stat(c.SourceDir)
	if err != nil {
		return fmt.Errorf("source_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source_dir %s is not a directory", c.SourceDir)
	}
	if c.Remote == "" {
		return fmt.Errorf("remote is required")
	}
	if c.ThresholdBytes <= 0 {
		return fmt.Errorf("threshold_bytes must be positive, got %d", c.ThresholdBytes)
	}
	if c.ChunkSizeBytes <= 0 {
		return fmt.Errorf("chunk_size_bytes must be positive, got %d", c.ChunkSizeBytes)
	}
	if c.RefreshSeconds <= 0 {
		return fmt.Errorf("refresh_seconds must be positive, got %d", c.RefreshSeconds)
	}
	return nil
}
