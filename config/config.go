// Package config loads process-level defaults for a relay pool client —
// default relay set, connection thresholds, and dedup mode — from a JSON
// file, the way the teacher's internal/config package loads its
// client.json.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nostrkit/relaypool/messagepool"
)

// Config is the top-level process configuration.
type Config struct {
	DefaultRelays         []string `json:"defaultRelays"`
	DedupMode             string   `json:"dedupMode"` // "all_copies" or "first_response_only"
	ErrorThreshold        int      `json:"errorThreshold"`
	TimeoutErrorThreshold int      `json:"timeoutErrorThreshold"`
	DialTimeoutSeconds    int      `json:"dialTimeoutSeconds"`
	PingIntervalSeconds   int      `json:"pingIntervalSeconds"`
	CloseOnEOSE           bool     `json:"closeOnEose"`
	// RedisURL, if set, is redis://[:password@]host:port/db for a shared
	// messagepool.RedisDedupStore — pass it to
	// messagepool.NewRedisDedupStore and relaymanager.WithDedupStore to
	// have a fleet of processes agree on one event-dedup set.
	RedisURL string `json:"redisUrl,omitempty"`
}

// DialTimeout returns DialTimeoutSeconds as a time.Duration.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

// PingInterval returns PingIntervalSeconds as a time.Duration.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// DedupModeValue translates the configured DedupMode string into the
// messagepool.DedupMode the constructor expects, defaulting to
// FirstResponseOnly for any unrecognized value.
func (c *Config) DedupModeValue() messagepool.DedupMode {
	if c.DedupMode == "all_copies" {
		return messagepool.AllCopies
	}
	return messagepool.FirstResponseOnly
}

func defaultConfig() *Config {
	return &Config{
		DefaultRelays: []string{
			"wss://relay.damus.io",
			"wss://relay.nostr.band",
			"wss://nos.lol",
		},
		DedupMode:             "first_response_only",
		ErrorThreshold:        3,
		TimeoutErrorThreshold: 10,
		DialTimeoutSeconds:    10,
		PingIntervalSeconds:   60,
		CloseOnEOSE:           true,
	}
}

var (
	current     *Config
	currentMu   sync.RWMutex
	currentOnce sync.Once
)

// Get returns the process configuration, loading it from disk on first
// call. The path is taken from the RELAYPOOL_CONFIG environment
// variable, defaulting to "config/relaypool.json"; a missing file is not
// an error — defaults are used instead.
func Get() *Config {
	currentOnce.Do(func() {
		currentMu.Lock()
		defer currentMu.Unlock()
		current = loadFromFile()
	})
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

// Reload re-reads the configuration file and replaces the cached value.
func Reload() error {
	cfg := loadFromFile()
	currentMu.Lock()
	current = cfg
	currentMu.Unlock()
	slog.Info("relaypool configuration reloaded", "relays", len(cfg.DefaultRelays), "dedupMode", cfg.DedupMode)
	return nil
}

func loadFromFile() *Config {
	path := os.Getenv("RELAYPOOL_CONFIG")
	if path == "" {
		path = "config/relaypool.json"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("relaypool config file not found, using defaults", "path", path)
		} else {
			slog.Warn("could not read relaypool config, using defaults", "path", path, "error", err)
		}
		return defaultConfig()
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		slog.Error("invalid JSON in relaypool config, using defaults", "path", path, "error", err)
		return defaultConfig()
	}

	slog.Info("loaded relaypool configuration", "path", path, "relays", len(cfg.DefaultRelays))
	return cfg
}

// Validate checks that the configuration is internally consistent,
// returning a descriptive error for the first problem found.
func (c *Config) Validate() error {
	switch c.DedupMode {
	case "all_copies", "first_response_only":
	default:
		return fmt.Errorf("config: unknown dedupMode %q", c.DedupMode)
	}
	if c.ErrorThreshold < 0 {
		return fmt.Errorf("config: errorThreshold must be >= 0, got %d", c.ErrorThreshold)
	}
	if c.TimeoutErrorThreshold < 0 {
		return fmt.Errorf("config: timeoutErrorThreshold must be >= 0, got %d", c.TimeoutErrorThreshold)
	}
	if c.DialTimeoutSeconds <= 0 {
		return fmt.Errorf("config: dialTimeoutSeconds must be > 0, got %d", c.DialTimeoutSeconds)
	}
	return nil
}
