package app

import (
	"errors"
	"path/filepath"
)

// Config holds everything an App instance needs to run.
type Config struct {
	// RootDir is the project root containing BUILD.hcl files.
	RootDir string
	// OutDir receives rule outputs. Relative paths are taken under RootDir.
	OutDir string
	// CacheDir holds the artifact store. Relative paths are taken under
	// RootDir.
	CacheDir string

	LogFormat   string
	LogLevel    string
	MetricsPort int
	WorkerCount int
	FailFast    bool
}

// NewConfig validates a Config and fills in derived defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.RootDir == "" {
		return nil, errors.New("RootDir is a required configuration field and cannot be empty")
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "quarry-out"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = ".quarry-cache"
	}
	if !filepath.IsAbs(cfg.OutDir) {
		cfg.OutDir = filepath.Join(cfg.RootDir, cfg.OutDir)
	}
	if !filepath.IsAbs(cfg.CacheDir) {
		cfg.CacheDir = filepath.Join(cfg.RootDir, cfg.CacheDir)
	}
	return &cfg, nil
}
