// Package config holds the engine configuration shared by workers: how
// signatures are checked, pool sizing, lock windows, and how to reach the
// signature store.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// SigMode controls signature checking.
type SigMode string

const (
	// SigModeDefault checks signatures and skips matching substeps.
	SigModeDefault SigMode = "default"

	// SigModeIgnore disables signature checking entirely.
	SigModeIgnore SigMode = "ignore"

	// SigModeForce executes and rewrites signatures even when a prior
	// record matches.
	SigModeForce SigMode = "force"
)

// Config is the worker-side engine configuration. Per-job overrides from
// Job.Config are merged on top with Merge.
type Config struct {
	// SigMode controls signature checking.
	SigMode SigMode `yaml:"sig_mode"`

	// Workers is the substep pool size; it bounds maximum parallelism.
	Workers int `yaml:"workers"`

	// LockTTL is the lease duration for signature locks. A worker that
	// dies holding a lock blocks that signature only until the lease
	// expires.
	LockTTL time.Duration `yaml:"lock_ttl"`

	// LockTimeout bounds how long a worker blocks waiting for a
	// signature lock before failing with an unavailable-lock signal.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// Store connection settings for the socket-backed signature store.
	StoreNetwork  string `yaml:"store_network"`
	StorePushAddr string `yaml:"store_push_addr"`
	StoreReqAddr  string `yaml:"store_req_addr"`

	// StorePath is the SQLite database file used when serving or when
	// running with a local store.
	StorePath string `yaml:"store_path"`

	// Verbosity raises log detail; 0 is quiet, 2 and above enables
	// debug logging.
	Verbosity int `yaml:"verbosity"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		SigMode:      SigModeDefault,
		Workers:      runtime.NumCPU(),
		LockTTL:      5 * time.Minute,
		LockTimeout:  30 * time.Second,
		StoreNetwork: "tcp",
		Verbosity:    1,
	}
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	switch c.SigMode {
	case SigModeDefault, SigModeIgnore, SigModeForce:
	default:
		return fmt.Errorf("unknown sig_mode: %q", c.SigMode)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

// Merge applies per-job overrides to a copy of the configuration. Unknown
// keys are ignored; the job owner controls only the knobs listed here.
func (c Config) Merge(overrides map[string]any) Config {
	merged := c
	for k, v := range overrides {
		switch k {
		case "sig_mode":
			if s, ok := v.(string); ok {
				merged.SigMode = SigMode(s)
			}
		case "lock_timeout":
			if d, ok := asDuration(v); ok {
				merged.LockTimeout = d
			}
		case "lock_ttl":
			if d, ok := asDuration(v); ok {
				merged.LockTTL = d
			}
		case "verbosity":
			switch n := v.(type) {
			case int:
				merged.Verbosity = n
			case int64:
				merged.Verbosity = int(n)
			case float64:
				merged.Verbosity = int(n)
			}
		}
	}
	return merged
}

func asDuration(v any) (time.Duration, bool) {
	switch d := v.(type) {
	case time.Duration:
		return d, true
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case int:
		return time.Duration(d) * time.Second, true
	case int64:
		return time.Duration(d) * time.Second, true
	case float64:
		return time.Duration(d * float64(time.Second)), true
	}
	return 0, false
}
