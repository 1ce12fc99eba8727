package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nostrkit/relaypool/messagepool"
)

func TestLoadFromFileFallsBackToDefaultsWhenMissing(t *testing.T) {
	t.Setenv("RELAYPOOL_CONFIG", filepath.Join(t.TempDir(), "does-not-exist.json"))
	cfg := loadFromFile()
	if len(cfg.DefaultRelays) == 0 {
		t.Fatal("expected default relays when config file is missing")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestLoadFromFileReadsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaypool.json")
	if err := os.WriteFile(path, []byte(`{"dedupMode":"all_copies","errorThreshold":7,"dialTimeoutSeconds":5}`), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	t.Setenv("RELAYPOOL_CONFIG", path)

	cfg := loadFromFile()
	if cfg.DedupMode != "all_copies" {
		t.Fatalf("expected overridden dedupMode, got %q", cfg.DedupMode)
	}
	if cfg.ErrorThreshold != 7 {
		t.Fatalf("expected overridden errorThreshold, got %d", cfg.ErrorThreshold)
	}
	if cfg.DedupModeValue() != messagepool.AllCopies {
		t.Fatal("expected DedupModeValue to translate to messagepool.AllCopies")
	}
}

func TestValidateRejectsUnknownDedupMode(t *testing.T) {
	cfg := defaultConfig()
	cfg.DedupMode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown dedup mode")
	}
}
