package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.SigMode != SigModeDefault {
		t.Fatalf("SigMode = %q", cfg.SigMode)
	}
	if cfg.Workers <= 0 {
		t.Fatalf("Workers = %d", cfg.Workers)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
sig_mode: force
workers: 3
lock_timeout: 5s
store_path: /tmp/sigs.db
verbosity: 2
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SigMode != SigModeForce {
		t.Fatalf("SigMode = %q", cfg.SigMode)
	}
	if cfg.Workers != 3 {
		t.Fatalf("Workers = %d", cfg.Workers)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Fatalf("LockTimeout = %v", cfg.LockTimeout)
	}
	// Untouched keys keep their defaults.
	if cfg.StoreNetwork != "tcp" {
		t.Fatalf("StoreNetwork = %q", cfg.StoreNetwork)
	}
}

func TestLoad_RejectsBadSigMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sig_mode: sometimes\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected invalid sig_mode to be rejected")
	}
}

func TestMerge_JobOverrides(t *testing.T) {
	cfg := Default()

	merged := cfg.Merge(map[string]any{
		"sig_mode":     "ignore",
		"lock_timeout": "2s",
		"lock_ttl":     30,
		"verbosity":    0,
		"unknown_key":  "ignored",
	})

	if merged.SigMode != SigModeIgnore {
		t.Fatalf("SigMode = %q", merged.SigMode)
	}
	if merged.LockTimeout != 2*time.Second {
		t.Fatalf("LockTimeout = %v", merged.LockTimeout)
	}
	if merged.LockTTL != 30*time.Second {
		t.Fatalf("LockTTL = %v", merged.LockTTL)
	}
	if merged.Verbosity != 0 {
		t.Fatalf("Verbosity = %d", merged.Verbosity)
	}

	// The receiver is not mutated.
	if cfg.SigMode != SigModeDefault {
		t.Fatalf("Merge must not mutate the original")
	}
}

func TestValidate_RejectsZeroWorkers(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero workers to be rejected")
	}
}
