package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sync.Interval != 30*time.Second {
		t.Errorf("expected 30s default interval, got %v", cfg.Sync.Interval)
	}
	if !cfg.Sync.Auto {
		t.Error("expected auto-sync enabled by default")
	}
	if cfg.Sync.RetentionDays != 7 {
		t.Errorf("expected 7 day retention default, got %d", cfg.Sync.RetentionDays)
	}
	if cfg.Sync.MaxRetries != 5 {
		t.Errorf("expected 5 retry default, got %d", cfg.Sync.MaxRetries)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("expected default dashboard port 8080, got %d", cfg.Dashboard.Port)
	}
	if cfg.DataDir == "" {
		t.Error("expected non-empty default data dir")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasksync.yaml")
	content := `
data_dir: /tmp/tasksync-test
remote_url: http://localhost:3000/api
sync:
  interval: 5s
  auto: false
  retention_days: 14
dashboard:
  enabled: true
  port: 9090
log:
  file: /tmp/tasksync-test/daemon.log
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DataDir != "/tmp/tasksync-test" {
		t.Errorf("unexpected data dir %q", cfg.DataDir)
	}
	if cfg.RemoteURL != "http://localhost:3000/api" {
		t.Errorf("unexpected remote url %q", cfg.RemoteURL)
	}
	if cfg.Sync.Interval != 5*time.Second {
		t.Errorf("expected 5s interval, got %v", cfg.Sync.Interval)
	}
	if cfg.Sync.Auto {
		t.Error("expected auto-sync disabled")
	}
	if cfg.Sync.RetentionDays != 14 {
		t.Errorf("expected 14 day retention, got %d", cfg.Sync.RetentionDays)
	}
	if !cfg.Dashboard.Enabled || cfg.Dashboard.Port != 9090 {
		t.Errorf("unexpected dashboard config: %+v", cfg.Dashboard)
	}
	if cfg.DatabasePath() != filepath.Join("/tmp/tasksync-test", "tasksync.db") {
		t.Errorf("unexpected database path %q", cfg.DatabasePath())
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TASKSYNC_REMOTE_URL", "http://example.test/api")
	t.Setenv("TASKSYNC_SYNC_RETENTION_DAYS", "3")

	cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.RemoteURL != "http://example.test/api" {
		t.Errorf("expected env override for remote url, got %q", cfg.RemoteURL)
	}
	if cfg.Sync.RetentionDays != 3 {
		t.Errorf("expected env override for retention, got %d", cfg.Sync.RetentionDays)
	}
}

func TestWatchReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasksync.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  interval: 10s\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	loader.Watch(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, nil)

	// Give the watcher a moment to attach before rewriting.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("sync:\n  interval: 2m\n"), 0600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Sync.Interval != 2*time.Minute {
			t.Errorf("expected reloaded interval 2m, got %v", cfg.Sync.Interval)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
