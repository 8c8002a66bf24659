package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddress != "127.0.0.1" || cfg.ListenPort != 8088 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("expected permissive default CORS origin, got %v", cfg.CORSOrigins)
	}
}

func TestFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{"--listen-port", "9999", "--verification-password", "hunter2"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 9999 {
		t.Fatalf("expected overridden port, got %d", cfg.ListenPort)
	}
	if cfg.VerificationPassword != "hunter2" {
		t.Fatalf("expected overridden verification password, got %q", cfg.VerificationPassword)
	}
}

func TestConfigFileFillsUnsetFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colosseum.yaml")
	yaml := "bindAddress: 0.0.0.0\nlistenPort: 9000\ncorsOrigins:\n  - https://example.com\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load([]string{"--config", path, "--listen-port", "1234"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BindAddress != "0.0.0.0" {
		t.Fatalf("expected file-provided bind address, got %q", cfg.BindAddress)
	}
	if cfg.ListenPort != 1234 {
		t.Fatalf("expected explicit flag to win over file, got %d", cfg.ListenPort)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://example.com" {
		t.Fatalf("expected file-provided CORS origin, got %v", cfg.CORSOrigins)
	}
}
