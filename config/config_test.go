package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFillsDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moocore.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9999\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != ":9999" {
		t.Errorf("expected overridden listen, got %q", cfg.Listen)
	}
	if cfg.DBPath != Default().DBPath {
		t.Errorf("expected default db path to survive, got %q", cfg.DBPath)
	}
	if cfg.MaxWorkers != Default().MaxWorkers {
		t.Errorf("expected default max workers to survive, got %d", cfg.MaxWorkers)
	}
}

func TestLoadOverridesEveryField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moocore.yaml")
	body := `
listen: ":1234"
db_path: "custom.db"
event_log_path: "custom-events.db"
event_log_key_path: "custom.key"
checkpoint_interval: 1m
tick_limit: 1000
time_limit: 2s
max_retries: 2
max_workers: 16
verb_cache_size: 128
metrics_listen: ":9090"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != ":1234" || cfg.DBPath != "custom.db" || cfg.EventLogPath != "custom-events.db" {
		t.Errorf("unexpected path overrides: %+v", cfg)
	}
	if cfg.EventLogKeyPath != "custom.key" || cfg.CheckpointInterval != time.Minute || cfg.MaxWorkers != 16 {
		t.Errorf("unexpected storage/worker overrides: %+v", cfg)
	}
	if cfg.TickLimit != 1000 || cfg.TimeLimit != 2*time.Second || cfg.MaxRetries != 2 {
		t.Errorf("unexpected task limits: %+v", cfg)
	}
	if cfg.VerbCacheSize != 128 || cfg.MetricsListen != ":9090" {
		t.Errorf("unexpected override values: %+v", cfg)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Error("expected error loading a missing config file")
	}
}

func TestEventLogKeyGeneratesEphemeralWhenUnset(t *testing.T) {
	cfg := Default()
	key, err := cfg.EventLogKey()
	if err != nil {
		t.Fatalf("EventLogKey failed: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected a 32-byte ephemeral key, got %d bytes", len(key))
	}
}

func TestEventLogKeyRejectsBadLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.bin")
	if err := os.WriteFile(path, []byte("too-short"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	cfg := Default()
	cfg.EventLogKeyPath = path
	if _, err := cfg.EventLogKey(); err == nil {
		t.Error("expected an error for a malformed key file")
	}
}
