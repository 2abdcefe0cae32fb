package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_YAML(t *testing.T) {
	data := []byte("db_path: /var/lib/bitledger/ledger.db\nlisten: \":9000\"\nlog_level: debug\ndedup_window: 30s\n")
	cfg, err := Load(data, ".yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/var/lib/bitledger/ledger.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	// Untouched fields keep defaults.
	if cfg.Scope != "episode" || cfg.WindowDays != 7 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	d, err := cfg.DedupWindowDuration()
	if err != nil {
		t.Fatalf("DedupWindowDuration: %v", err)
	}
	if d != 30*time.Second {
		t.Errorf("dedup window = %v, want 30s", d)
	}
}

func TestLoad_JSONDetectedByContent(t *testing.T) {
	data := []byte(`{"listen": ":7070", "scope": "none"}`)
	cfg, err := Load(data, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Scope != "none" {
		t.Errorf("scope = %q", cfg.Scope)
	}
}

func TestLoad_BadScope(t *testing.T) {
	if _, err := Load([]byte("scope: galactic\n"), ".yaml"); err == nil {
		t.Fatal("expected error for unknown scope predicate")
	}
}

func TestLoad_BadDedupWindow(t *testing.T) {
	if _, err := Load([]byte("dedup_window: sometimes\n"), ".yaml"); err == nil {
		t.Fatal("expected error for unparsable dedup window")
	}
}

func TestDedupWindowDuration_Off(t *testing.T) {
	cfg := Default()
	cfg.DedupWindow = "off"
	d, err := cfg.DedupWindowDuration()
	if err != nil {
		t.Fatalf("DedupWindowDuration: %v", err)
	}
	if d >= 0 {
		t.Errorf("off window = %v, want negative", d)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bitledger.yml")
	if err := os.WriteFile(path, []byte("listen: \":8181\"\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Listen != ":8181" {
		t.Errorf("listen = %q", cfg.Listen)
	}

	// Empty path: pure defaults.
	cfg, err = LoadFromPath("")
	if err != nil {
		t.Fatalf("LoadFromPath(\"\"): %v", err)
	}
	if cfg.Listen != ":8090" {
		t.Errorf("default listen = %q", cfg.Listen)
	}
}
