package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProbeAddrFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"libsql://nesttask-example.turso.io", "nesttask-example.turso.io:443"},
		{"libsql://db.example.com:8080", "db.example.com:8080"},
		{"libsql://db.example.com?authToken=abc", "db.example.com:443"},
		{"libsql://db.example.com/path", "db.example.com:443"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := probeAddrFromURL(tt.url); got != tt.want {
			t.Errorf("probeAddrFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.CacheWindow != 4*time.Minute {
		t.Errorf("CacheWindow = %v, want 4m", cfg.CacheWindow)
	}
	if cfg.ReconcileInterval != time.Minute {
		t.Errorf("ReconcileInterval = %v, want 1m", cfg.ReconcileInterval)
	}
	if filepath.Base(cfg.StorePath) != "cache.db" {
		t.Errorf("StorePath = %q, want a cache.db default", cfg.StorePath)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NESTTASK_REMOTE_URL", "libsql://db.example.com")
	t.Setenv("NESTTASK_OFFLINE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.RemoteURL != "libsql://db.example.com" {
		t.Errorf("RemoteURL = %q", cfg.RemoteURL)
	}
	if !cfg.Offline {
		t.Error("Offline = false, want env override applied")
	}
	if cfg.ProbeAddr != "db.example.com:443" {
		t.Errorf("ProbeAddr = %q, want derived from the remote URL", cfg.ProbeAddr)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".nesttask")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	file := "remote_url: libsql://file.example.com\ncache_window: 10m\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(file), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.RemoteURL != "libsql://file.example.com" {
		t.Errorf("RemoteURL = %q, want the file value", cfg.RemoteURL)
	}
	if cfg.CacheWindow != 10*time.Minute {
		t.Errorf("CacheWindow = %v, want 10m", cfg.CacheWindow)
	}
}
