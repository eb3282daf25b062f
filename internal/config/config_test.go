package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Prefix != "mt" || cfg.Workers != 3 || cfg.Retry.Delay != 10*time.Second {
		t.Fatalf("defaults got %+v", cfg)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "prefix: tri\nworkers: 5\ntimezone: UTC\nretry:\n  attempts: 2\n  delay: 3s\npriority:\n  scan_tags: false\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Prefix != "tri" || cfg.Workers != 5 || cfg.Retry.Delay != 3*time.Second || cfg.Priority.ScanTags {
		t.Fatalf("overlay got %+v", cfg)
	}
	if cfg.RPS != 4 {
		t.Fatalf("unset fields should keep defaults, rps got %d", cfg.RPS)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("location got %v, %v", loc, err)
	}
}

func TestLoadRejectsBadAuthMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  mode: kerberos\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Prefix = "saved"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Prefix != "saved" {
		t.Fatalf("prefix got %q", got.Prefix)
	}
}

func TestDirOverride(t *testing.T) {
	t.Setenv("CHRONOTRIAGE_CONFIG_DIR", "/tmp/ct")
	dir, err := Dir()
	if err != nil || dir != "/tmp/ct" {
		t.Fatalf("dir got %q, %v", dir, err)
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("prefix: one\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changes := make(chan Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)), func(c Config) {
			changes <- c
		})
	}()

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("prefix: two\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	select {
	case c := <-changes:
		if c.Prefix != "two" {
			t.Fatalf("reloaded prefix got %q", c.Prefix)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for reload")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
}
