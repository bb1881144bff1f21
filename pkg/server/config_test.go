package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	def := DefaultConfig()
	if cfg.Port != def.Port || cfg.StoreBackend != def.StoreBackend {
		t.Errorf("empty path should yield defaults, got %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textmoor.yaml")
	data := []byte("world_name: Testmoor\nport: 4321\nstore_backend: redis\nredis_addr: localhost:6379\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.WorldName != "Testmoor" || cfg.Port != 4321 || cfg.StoreBackend != "redis" {
		t.Errorf("config file values not applied: %+v", cfg)
	}
	if cfg.WebPort != DefaultConfig().WebPort {
		t.Errorf("unset keys should keep defaults, got web_port = %d", cfg.WebPort)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TEXTMOOR_PORT", "9999")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("env override ignored: port = %d", cfg.Port)
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textmoor.yaml")
	if err := os.WriteFile(path, []byte("store_backend: dynamo\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown backend accepted")
	}
}
