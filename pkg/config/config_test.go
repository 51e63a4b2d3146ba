package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Processing.Workers < 1 {
		t.Errorf("default workers = %d, want >= 1", cfg.Processing.Workers)
	}
	if cfg.Processing.TileSize != 512 {
		t.Errorf("default tile size = %d, want 512", cfg.Processing.TileSize)
	}
	if cfg.Mipmaps.Enabled {
		t.Error("mipmaps enabled by default, want disabled")
	}
	if cfg.Converter.Name == "" || cfg.Converter.SchemaVersion == "" {
		t.Error("converter identity must have defaults")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Processing.TileSize != DefaultConfig().Processing.TileSize {
		t.Error("missing file must yield default configuration")
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("processing:\n  workers: 3\n  tileSize: 256\nmipmaps:\n  enabled: true\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Processing.Workers != 3 || cfg.Processing.TileSize != 256 {
		t.Errorf("processing = %+v, want workers 3 tileSize 256", cfg.Processing)
	}
	if !cfg.Mipmaps.Enabled {
		t.Error("mipmaps.enabled not applied")
	}
	// untouched sections keep their defaults
	if cfg.Converter.SchemaVersion != "0.1" {
		t.Errorf("schema version = %q, want default", cfg.Converter.SchemaVersion)
	}
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("processing: ["), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig accepted malformed YAML")
	}
}
