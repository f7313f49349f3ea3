package config

import (
	"testing"
)

// mapBackend is an in-memory test double for the Backend interface.
type mapBackend struct {
	data map[string]any
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (m *mapBackend) SetString(key, val string) error { m.data[key] = val; return nil }

func (m *mapBackend) SetInt(key string, val int) error { m.data[key] = val; return nil }

func (m *mapBackend) Delete(key string) error { delete(m.data, key); return nil }

// TestDefaults verifies all default values survive an empty backend.
func TestDefaults(t *testing.T) {
	cfg, err := loadWith(&mapBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Catalog.Scope != "public" {
		t.Errorf("Catalog.Scope = %q, want %q", cfg.Catalog.Scope, "public")
	}
	if cfg.Inference.BaseURL != "http://localhost:8093" {
		t.Errorf("Inference.BaseURL = %q, want %q", cfg.Inference.BaseURL, "http://localhost:8093")
	}
	if cfg.Inference.StageModel != "embryo-stage" {
		t.Errorf("Inference.StageModel = %q, want %q", cfg.Inference.StageModel, "embryo-stage")
	}
	if cfg.Inference.LocationsModel != "embryo-locations" {
		t.Errorf("Inference.LocationsModel = %q, want %q", cfg.Inference.LocationsModel, "embryo-locations")
	}
	if cfg.Inference.BatchSize != 64 {
		t.Errorf("Inference.BatchSize = %d, want 64", cfg.Inference.BatchSize)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

// TestBackendOverride verifies backend values replace defaults.
func TestBackendOverride(t *testing.T) {
	b := &mapBackend{data: map[string]any{
		"catalog.base_url":     "http://catalog.example/metadata",
		"inference.batch_size": 16,
	}}

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Catalog.BaseURL != "http://catalog.example/metadata" {
		t.Errorf("Catalog.BaseURL = %q, want backend value", cfg.Catalog.BaseURL)
	}
	if cfg.Inference.BatchSize != 16 {
		t.Errorf("Inference.BatchSize = %d, want 16", cfg.Inference.BatchSize)
	}
}

// TestEnvOverride verifies environment variables win over backend values.
func TestEnvOverride(t *testing.T) {
	b := &mapBackend{data: map[string]any{
		"catalog.scope": "internal",
	}}

	t.Setenv("EMBRYSYNC_CATALOG_SCOPE", "public")
	t.Setenv("EMBRYSYNC_INFERENCE_BATCH_SIZE", "8")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Catalog.Scope != "public" {
		t.Errorf("Catalog.Scope = %q, want env value %q", cfg.Catalog.Scope, "public")
	}
	if cfg.Inference.BatchSize != 8 {
		t.Errorf("Inference.BatchSize = %d, want 8", cfg.Inference.BatchSize)
	}
}

// TestInvalidBatchSize verifies a clear error for a non-positive batch size.
func TestInvalidBatchSize(t *testing.T) {
	b := &mapBackend{data: map[string]any{
		"inference.batch_size": 0,
	}}

	if _, err := loadWith(b); err == nil {
		t.Fatal("expected error for batch_size 0, got nil")
	}
}

func TestStoragePaths(t *testing.T) {
	s := StorageConfig{DataDir: "/var/lib/embrysync"}

	if got := s.CheckpointPath(); got != "/var/lib/embrysync/last-updated" {
		t.Errorf("CheckpointPath = %q", got)
	}
	if got := s.UpdateLogPath(); got != "/var/lib/embrysync/data-updates-log" {
		t.Errorf("UpdateLogPath = %q", got)
	}
	if got := s.DownloadDir(); got != "/var/lib/embrysync/downloads" {
		t.Errorf("DownloadDir = %q", got)
	}
}
