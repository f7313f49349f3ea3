package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "catalog.base_url", typ: kString, env: "EMBRYSYNC_CATALOG_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Catalog.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.BaseURL },
	},
	{
		key: "catalog.scope", typ: kString, env: "EMBRYSYNC_CATALOG_SCOPE",
		apply:   func(cfg *Config, v any) { cfg.Catalog.Scope = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.Scope },
	},
	{
		key: "inference.base_url", typ: kString, env: "EMBRYSYNC_INFERENCE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Inference.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.BaseURL },
	},
	{
		key: "inference.stage_model", typ: kString, env: "EMBRYSYNC_INFERENCE_STAGE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Inference.StageModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.StageModel },
	},
	{
		key: "inference.locations_model", typ: kString, env: "EMBRYSYNC_INFERENCE_LOCATIONS_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Inference.LocationsModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.LocationsModel },
	},
	{
		key: "inference.batch_size", typ: kInt, env: "EMBRYSYNC_INFERENCE_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Inference.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Inference.BatchSize },
	},
	{
		key: "storage.data_dir", typ: kString, env: "EMBRYSYNC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "EMBRYSYNC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
