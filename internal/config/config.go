package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/browsedash/config.yaml"

// Config holds all browsedash configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Sync      SyncConfig      `yaml:"sync"`
	Collect   CollectConfig   `yaml:"collect"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	DatabaseURL    string  `yaml:"database_url"`
	MaxBodyBytes   int64   `yaml:"max_body_bytes"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type SyncConfig struct {
	ServerURL           string `yaml:"server_url"`
	SyncKey             string `yaml:"sync_key"`
	WindowDays          int    `yaml:"window_days"`
	Schedule            string `yaml:"schedule"`
	CheckTimeoutSeconds int    `yaml:"check_timeout_seconds"`
}

type CollectConfig struct {
	BridgeURL        string   `yaml:"bridge_url"`
	HistoryFile      string   `yaml:"history_file"`
	ImportWindowDays int      `yaml:"import_window_days"`
	DenylistDomains  []string `yaml:"denylist_domains"`
	ExcludeSensitive bool     `yaml:"exclude_sensitive"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// RetentionConfig controls server-side pruning. Days == 0 keeps rows forever.
type RetentionConfig struct {
	Days               int `yaml:"days"`
	PruneIntervalHours int `yaml:"prune_interval_hours"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load reads a YAML config file at path, merges it with defaults, and applies
// environment overrides. Returns an error if the file cannot be read or
// contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadFile reads path merged with defaults and nothing else. Use it when
// the result is written back, so environment values never reach the file.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// LoadFileOrDefault is LoadFile, returning defaults when path does not exist.
func LoadFileOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// ApplyEnv loads a .env file from the working directory if present and
// overrides config fields from the environment.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load() // a missing .env is normal outside development

	if v := firstEnv("BROWSEDASH_DATABASE_URL", "DATABASE_URL", "DATABASE_POSTGRES_URL", "POSTGRES_URL"); v != "" {
		c.Server.DatabaseURL = v
	}
	if v := os.Getenv("BROWSEDASH_SYNC_KEY"); v != "" {
		c.Sync.SyncKey = v
	}
	if v := os.Getenv("BROWSEDASH_SERVER_URL"); v != "" {
		c.Sync.ServerURL = v
	}
	if v := os.Getenv("BROWSEDASH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := ExpandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		cfg.ApplyEnv()
		return cfg, nil
	}

	return Load(path)
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// The file may hold a sync key.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// DataDir returns the expanded storage directory.
func (c *Config) DataDir() (string, error) {
	return ExpandPath(c.Storage.DataDir)
}

// Denylist returns the domains excluded from collection.
func (c *Config) Denylist() []string {
	out := append([]string{}, c.Collect.DenylistDomains...)
	if c.Collect.ExcludeSensitive {
		out = append(out, DefaultDenylistDomains()...)
	}
	return out
}
