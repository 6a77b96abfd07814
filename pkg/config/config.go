package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// FileName is the optional configuration file read from the working directory.
const FileName = "emit-scheduler.toml"

const envPrefix = "EMIT_SCHEDULER_"

// Config holds all configuration for the application
type Config struct {
	Workspace     string `koanf:"workspace"`
	Manifest      string `koanf:"manifest"`
	Port          int    `koanf:"port"`
	Write         bool   `koanf:"write"`
	Verbosity     string `koanf:"verbosity"`
	VerboseCnt    int    `koanf:"verbose"`
	JSONLogs      bool   `koanf:"json_logs"`
	DebugChecks   bool   `koanf:"debug_checks"`
	CacheSize     int    `koanf:"emit_cache_size"`
	QuietPeriodMs int    `koanf:"quiet_period_ms"`
	MaxWaitMs     int    `koanf:"max_wait_ms"`
}

// QuietPeriod is how long the watcher waits for changes to settle.
func (c *Config) QuietPeriod() time.Duration {
	return time.Duration(c.QuietPeriodMs) * time.Millisecond
}

// MaxWait caps how long a burst of changes can delay a batch.
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("emit_cache_size must be positive, got %d", c.CacheSize)
	}
	if c.QuietPeriodMs <= 0 || c.MaxWaitMs < c.QuietPeriodMs {
		return fmt.Errorf("need 0 < quiet_period_ms <= max_wait_ms, got %d and %d", c.QuietPeriodMs, c.MaxWaitMs)
	}
	return nil
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return load(f, FileName)
}

func load(f *pflag.FlagSet, configFile string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"workspace":       ".",
		"manifest":        "",
		"port":            8080,
		"write":           true,
		"verbosity":       "",
		"verbose":         0,
		"json_logs":       false,
		"debug_checks":    false,
		"emit_cache_size": 512,
		"quiet_period_ms": 150,
		"max_wait_ms":     1000,
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	// We ignore errors here as the file might not exist
	_ = k.Load(file.Provider(configFile), toml.Parser())

	// 3. Environment Variables
	// Prefix: EMIT_SCHEDULER_ (e.g., EMIT_SCHEDULER_PORT=9090). Keys keep
	// their underscores, so EMIT_SCHEDULER_DEBUG_CHECKS sets debug_checks.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	// Flags use dashes (--debug-checks) where keys use underscores.
	if f != nil {
		if err := k.Load(posflag.ProviderWithFlag(f, ".", k, func(flag *pflag.Flag) (string, interface{}) {
			return strings.ReplaceAll(flag.Name, "-", "_"), posflag.FlagVal(f, flag)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
