package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if cfg.Year != time.Now().Year() {
		t.Errorf("Default year = %d, want current year", cfg.Year)
	}
	if cfg.SyncInterval != time.Hour {
		t.Errorf("Default sync interval = %v, want 1h", cfg.SyncInterval)
	}
	if cfg.DashboardPort != 0 {
		t.Errorf("Dashboard enabled by default: port %d", cfg.DashboardPort)
	}
	for name, path := range map[string]string{
		"database": cfg.DatabasePath,
		"prefs":    cfg.PrefsPath,
		"cache":    cfg.CacheDir,
	} {
		if path == "" {
			t.Errorf("No default %s path", name)
		}
		if !strings.Contains(path, ".schedstore") {
			t.Errorf("Default %s path %q not rooted in data dir", name, path)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
year: 2026
remote_url: https://example.org/schedule
database_path: /tmp/sched-test/schedule.db
sync_interval: 30m
dashboard_port: 9999
`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Year != 2026 {
		t.Errorf("Year = %d, want 2026", cfg.Year)
	}
	if cfg.RemoteURL != "https://example.org/schedule" {
		t.Errorf("RemoteURL = %q", cfg.RemoteURL)
	}
	if cfg.DatabasePath != "/tmp/sched-test/schedule.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.SyncInterval != 30*time.Minute {
		t.Errorf("SyncInterval = %v, want 30m", cfg.SyncInterval)
	}
	if cfg.DashboardPort != 9999 {
		t.Errorf("DashboardPort = %d, want 9999", cfg.DashboardPort)
	}
	// Unset values still get defaults.
	if cfg.PrefsPath == "" || cfg.CacheDir == "" {
		t.Error("Normalization skipped for unset paths")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("year: [not a year"), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Expected malformed config to fail")
	}
}
