package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the daemon configuration, loaded from an optional YAML file.
type Settings struct {
	Root     string          `yaml:"root"`
	Entry    string          `yaml:"entry"`
	LogLevel string          `yaml:"log_level"`
	Watch    WatchSettings   `yaml:"watch"`
	Compile  CompileSettings `yaml:"compile"`
	API      APISettings     `yaml:"api"`
}

type WatchSettings struct {
	// RecheckDelayMS is the stabilization window for suspicious file
	// states.
	RecheckDelayMS int `yaml:"recheck_delay_ms"`
	// LifetimeRounds is how many subscription rounds an unrenewed
	// dependency stays watched.
	LifetimeRounds int `yaml:"lifetime_rounds"`
}

type CompileSettings struct {
	// EvictionBudget is the read-cache generation budget per compile.
	EvictionBudget int64 `yaml:"eviction_budget"`
}

type APISettings struct {
	// Addr enables the status server when non-empty, e.g. "127.0.0.1:7733".
	Addr           string   `yaml:"addr"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func Default() Settings {
	return Settings{
		LogLevel: "info",
		Watch: WatchSettings{
			RecheckDelayMS: 50,
			LifetimeRounds: 30,
		},
		Compile: CompileSettings{
			EvictionBudget: 5,
		},
	}
}

// Load reads settings from path, falling back to defaults when the file
// does not exist. Unset fields keep their defaults.
func Load(path string) (Settings, error) {
	settings := Default()
	if path == "" {
		return settings, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(payload, &settings); err != nil {
		return Default(), fmt.Errorf("decode settings: %w", err)
	}
	return settings.normalized(), nil
}

func (s Settings) normalized() Settings {
	defaults := Default()
	if s.Watch.RecheckDelayMS <= 0 {
		s.Watch.RecheckDelayMS = defaults.Watch.RecheckDelayMS
	}
	if s.Watch.LifetimeRounds <= 0 {
		s.Watch.LifetimeRounds = defaults.Watch.LifetimeRounds
	}
	if s.Compile.EvictionBudget <= 0 {
		s.Compile.EvictionBudget = defaults.Compile.EvictionBudget
	}
	if s.LogLevel == "" {
		s.LogLevel = defaults.LogLevel
	}
	return s
}

func (s Settings) RecheckDelay() time.Duration {
	return time.Duration(s.Watch.RecheckDelayMS) * time.Millisecond
}
