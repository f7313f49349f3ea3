package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Catalog   CatalogConfig
	Inference InferenceConfig
	Storage   StorageConfig
	Log       LogConfig
}

// CatalogConfig points at the remote image metadata endpoint.
type CatalogConfig struct {
	BaseURL string
	Scope   string
}

// InferenceConfig points at the local classifier server and names the
// two models it is expected to have loaded.
type InferenceConfig struct {
	BaseURL        string
	StageModel     string
	LocationsModel string
	BatchSize      int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// CheckpointPath is the location of the last-updated marker file.
func (s StorageConfig) CheckpointPath() string {
	return filepath.Join(s.DataDir, "last-updated")
}

// UpdateLogPath is the location of the append-only update run log.
func (s StorageConfig) UpdateLogPath() string {
	return filepath.Join(s.DataDir, "data-updates-log")
}

// DownloadDir is where fetched metadata payloads are staged before parsing.
func (s StorageConfig) DownloadDir() string {
	return filepath.Join(s.DataDir, "downloads")
}

func defaults() Config {
	return Config{
		Catalog: CatalogConfig{
			BaseURL: "http://localhost:8600/api/images/metadata",
			Scope:   "public",
		},
		Inference: InferenceConfig{
			BaseURL:        "http://localhost:8093",
			StageModel:     "embryo-stage",
			LocationsModel: "embryo-locations",
			BatchSize:      64,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "embrysync-data"
		}
	}
	return filepath.Join(dir, "embrysync")
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/embrysync/config.json, then applies EMBRYSYNC_*
// environment variable overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Inference.BatchSize <= 0 {
		return Config{}, fmt.Errorf("inference.batch_size must be positive, got %d", cfg.Inference.BatchSize)
	}
	if cfg.Catalog.BaseURL == "" {
		return Config{}, fmt.Errorf("catalog.base_url must not be empty")
	}

	return cfg, nil
}
