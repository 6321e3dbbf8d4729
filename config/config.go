// Package config loads moocore's server configuration from a YAML file,
// filling in the same defaults the teacher's cmd/barn flags used, so a
// bare `moocore serve` with no config file still boots a usable server.
package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server holds everything cmd/moocore needs to wire up a running system:
// the listen port, the on-disk world-state location, scheduler limits, and
// the narrative event log's encryption key.
type Server struct {
	// Listen is the host:port (or :port) the connection transport binds.
	Listen string `yaml:"listen"`

	// DBPath is the bbolt file backing the world-state store.
	DBPath string `yaml:"db_path"`

	// EventLogPath is the bbolt file backing the narrative event log.
	EventLogPath string `yaml:"event_log_path"`

	// EventLogKeyPath points at a file holding the raw AES key bytes
	// (16/24/32 bytes) used to seal narrative events at rest.
	EventLogKeyPath string `yaml:"event_log_key_path"`

	// CheckpointInterval is how often the world-state store is expected
	// to be durably flushed; the store itself writes through on every
	// commit via storage.BoltProvider, so this only governs any
	// maintenance tasks (e.g. compaction) layered on top.
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// TickLimit and TimeLimit bound a single task execution the way the
	// teacher's db.Player limits bounded a command.
	TickLimit int           `yaml:"tick_limit"`
	TimeLimit time.Duration `yaml:"time_limit"`

	// MaxRetries is how many times a task is retried after an MVCC
	// commit conflict before being finalized as failed.
	MaxRetries int `yaml:"max_retries"`

	// MaxWorkers bounds the scheduler's errgroup-backed worker pool.
	MaxWorkers int `yaml:"max_workers"`

	// VerbCacheSize bounds the worldstate package's verb resolution LRU.
	VerbCacheSize int `yaml:"verb_cache_size"`

	// MetricsListen is the host:port the Prometheus handler binds, empty
	// disables metrics entirely.
	MetricsListen string `yaml:"metrics_listen"`
}

// Default returns the configuration cmd/moocore boots with when no
// config file is given, matching the teacher's flag defaults where they
// overlap (db path, port).
func Default() Server {
	return Server{
		Listen:             ":7777",
		DBPath:             "world.db",
		EventLogPath:       "events.db",
		EventLogKeyPath:    "",
		CheckpointInterval: 5 * time.Minute,
		TickLimit:          60000,
		TimeLimit:          5 * time.Second,
		MaxRetries:         5,
		MaxWorkers:         8,
		VerbCacheSize:      4096,
		MetricsListen:      "",
	}
}

// Load reads a YAML config file at path, starting from Default() so any
// field the file omits keeps its default value.
func Load(path string) (Server, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// EventLogKey reads the raw AES key bytes from EventLogKeyPath. An empty
// path generates an ephemeral key, useful for a first run or a sandboxed
// eval session where narrative durability across restarts doesn't matter.
func (s Server) EventLogKey() ([]byte, error) {
	if s.EventLogKeyPath == "" {
		return ephemeralKey(), nil
	}
	key, err := os.ReadFile(s.EventLogKeyPath)
	if err != nil {
		return nil, fmt.Errorf("config: reading event log key %s: %w", s.EventLogKeyPath, err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("config: event log key %s must be 16, 24, or 32 bytes, got %d", s.EventLogKeyPath, len(key))
	}
}

func ephemeralKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("config: generating ephemeral event log key: %v", err))
	}
	return key
}
