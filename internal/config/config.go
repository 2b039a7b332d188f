// Package config loads service configuration with the precedence
// defaults < yaml file < environment < flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds the service settings.
type Config struct {
	Addr        string    `koanf:"addr"`
	DBPath      string    `koanf:"db_path"`
	ReposDir    string    `koanf:"repos_dir"`
	CORSOrigins []string  `koanf:"cors_origins"`
	Scheduler   Scheduler `koanf:"scheduler"`
}

// Scheduler holds the tunable scheduler settings.
type Scheduler struct {
	RequestedRetention  float64 `koanf:"requested_retention"`
	MaximumIntervalDays int     `koanf:"maximum_interval_days"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:        ":8000",
		DBPath:      "recall.db",
		ReposDir:    "repos",
		CORSOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		Scheduler: Scheduler{
			RequestedRetention:  0.9,
			MaximumIntervalDays: 36500,
		},
	}
}

// Load merges the yaml file at path (skipped when empty or missing),
// RECALL_* environment variables, and the parsed flag set over the
// defaults. Environment variables use "__" for nesting, e.g.
// RECALL_SCHEDULER__REQUESTED_RETENTION.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "RECALL_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "RECALL_"))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Scheduler.RequestedRetention <= 0 || cfg.Scheduler.RequestedRetention >= 1 {
		return Config{}, fmt.Errorf("scheduler.requested_retention %f outside (0, 1)", cfg.Scheduler.RequestedRetention)
	}
	if cfg.Scheduler.MaximumIntervalDays < 1 {
		return Config{}, fmt.Errorf("scheduler.maximum_interval_days %d must be at least 1", cfg.Scheduler.MaximumIntervalDays)
	}
	return cfg, nil
}
