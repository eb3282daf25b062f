// Package config loads the chronotriage YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const fileName = "config.yaml"

// Auth modes.
const (
	AuthGmailctl = "gmailctl"
	AuthOAuth    = "oauth"
)

type Config struct {
	Prefix             string         `yaml:"prefix"`
	DBPath             string         `yaml:"db_path"`
	Timezone           string         `yaml:"timezone,omitempty"`
	RPS                int            `yaml:"rps"`
	Workers            int            `yaml:"workers"`
	PageSize           int            `yaml:"page_size"`
	AutoresponderLabel string         `yaml:"autoresponder_label,omitempty"`
	Auth               AuthConfig     `yaml:"auth"`
	Priority           PriorityConfig `yaml:"priority"`
	Retry              RetryConfig    `yaml:"retry"`
	Log                LogConfig      `yaml:"log"`
}

type AuthConfig struct {
	Mode        string `yaml:"mode"`
	Dir         string `yaml:"dir"`
	Credentials string `yaml:"credentials,omitempty"`
	Token       string `yaml:"token,omitempty"`
}

type PriorityConfig struct {
	ScanTags bool     `yaml:"scan_tags"`
	Ranks    []string `yaml:"ranks,omitempty"`
}

type RetryConfig struct {
	Attempts uint          `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	dataDir, err := DataDir()
	if err != nil {
		dataDir = "."
	}
	home, _ := os.UserHomeDir()
	return Config{
		Prefix:   "mt",
		DBPath:   filepath.Join(dataDir, "chronotriage.db"),
		RPS:      4,
		Workers:  3,
		PageSize: 100,
		Auth:     AuthConfig{Mode: AuthGmailctl, Dir: filepath.Join(home, ".gmailctl")},
		Priority: PriorityConfig{ScanTags: true},
		Retry:    RetryConfig{Attempts: 3, Delay: 10 * time.Second},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Dir returns the config directory: $CHRONOTRIAGE_CONFIG_DIR, else XDG.
func Dir() (string, error) {
	if override := os.Getenv("CHRONOTRIAGE_CONFIG_DIR"); override != "" {
		return override, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "chronotriage"), nil
}

// DataDir returns the data directory: $CHRONOTRIAGE_DATA_DIR, else XDG.
func DataDir() (string, error) {
	if override := os.Getenv("CHRONOTRIAGE_DATA_DIR"); override != "" {
		return override, nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chronotriage"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "chronotriage"), nil
}

// Path returns the config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads path, layering it over Default. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) // #nosec G304 - path chosen by the operator
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects values the runtime cannot honour.
func (c Config) Validate() error {
	switch c.Auth.Mode {
	case AuthGmailctl, AuthOAuth:
	default:
		return fmt.Errorf("auth.mode must be %q or %q, got %q", AuthGmailctl, AuthOAuth, c.Auth.Mode)
	}
	if c.Workers < 0 || c.RPS < 0 {
		return fmt.Errorf("workers and rps must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the scheduling time zone, time.Local when unset.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
