// Package config loads the crucible CLI's layered configuration: flags
// override environment variables, which override a project-local
// crucible.toml, which overrides built-in defaults. Storage-layer settings
// (the database itself) never live here — this is strictly CLI-facing
// configuration, the way cmd/bd/config.go and internal/config/repos.go
// keep .beads/config.yaml separate from the issue database.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// FileName is the config file crucible looks for in the working
// directory, falling back to the user config directory.
const FileName = "crucible.toml"

// Config is the resolved set of CLI-facing settings.
type Config struct {
	// DatabasePath is the default SQLite file opened when a command is
	// run without an explicit --db flag.
	DatabasePath string `mapstructure:"database_path"`

	// AuthorName seeds the human-readable hint on the fresh author row
	// created each time the CLI opens a database.
	AuthorName string `mapstructure:"author_name"`

	// BusyTimeout is read from configuration but is not passed to the
	// store: opening a database uses the storage layer's own 5s default.
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// AppMajor and AppMinor are the application identifier this build of
	// the CLI stamps into (and expects from) files it opens.
	AppMajor int `mapstructure:"app_major"`
	AppMinor int `mapstructure:"app_minor"`
}

func defaults() Config {
	return Config{
		DatabasePath: "crucible.db",
		AuthorName:   "",
		BusyTimeout:  5 * time.Second,
		AppMajor:     1,
		AppMinor:     0,
	}
}

// Load resolves configuration from, in increasing priority: built-in
// defaults, a crucible.toml found by searching cwd and the user config
// directory, and CRUCIBLE_-prefixed environment variables. It does not
// consider command-line flags; callers bind those into the returned
// viper instance separately via v.BindPFlags before calling Unmarshal
// again if they need flag overrides to win.
func Load() (Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("CRUCIBLE")
	v.AutomaticEnv()

	cfg := defaults()
	if err := v.MergeConfigMap(toStringMap(cfg)); err != nil {
		return Config{}, nil, fmt.Errorf("seed config defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, nil, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	var resolved Config
	if err := v.Unmarshal(&resolved); err != nil {
		return Config{}, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return resolved, v, nil
}

func toStringMap(cfg Config) map[string]any {
	return map[string]any{
		"database_path": cfg.DatabasePath,
		"author_name":   cfg.AuthorName,
		"busy_timeout":  cfg.BusyTimeout,
		"app_major":     cfg.AppMajor,
		"app_minor":     cfg.AppMinor,
	}
}

func findConfigFile() string {
	if wd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(wd, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(dir, "crucible", FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Save writes cfg to path in TOML, overwriting whatever was there.
func Save(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config file %q: %w", path, err)
	}
	return nil
}
