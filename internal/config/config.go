// Package config loads and validates onechelp configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete onechelp configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Archive ArchiveConfig `yaml:"archive" json:"archive"`
	Retry   RetryConfig   `yaml:"retry" json:"retry"`
}

// ServerConfig configures the HTTP endpoint.
type ServerConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// StoreConfig configures the document store.
type StoreConfig struct {
	// DataDir holds the index generations and the current-generation
	// manifest.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// BatchSize is the number of documents per bulk write.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the search-result LRU cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ArchiveConfig configures the documentation archive source.
type ArchiveConfig struct {
	// Path is the .hbk archive to index.
	Path string `yaml:"path" json:"path"`
	// MaxSizeMB rejects archives larger than this.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`
	// Watch enables the fsnotify watcher that rebuilds the index when
	// the archive file is replaced.
	Watch bool `yaml:"watch" json:"watch"`
	// WatchDebounce is the settle window for file change events.
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// RetryConfig configures the orchestrator's bulk-write retry policy.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8000,
			LogLevel: "info",
		},
		Store: StoreConfig{
			DataDir:   defaultDataDir(),
			BatchSize: 100,
			CacheSize: 256,
		},
		Archive: ArchiveConfig{
			MaxSizeMB:     50,
			Watch:         false,
			WatchDebounce: 2 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     16 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".onechelp", "config.yaml")
	}
	return filepath.Join(home, ".onechelp", "config.yaml")
}

// defaultDataDir returns the default index data directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".onechelp", "index")
	}
	return filepath.Join(home, ".onechelp", "index")
}

// Load loads configuration with increasing precedence:
//  1. Hardcoded defaults
//  2. YAML file at path (optional; missing file is fine when path is
//     the default location)
//  3. Environment variables (ONECHELP_*)
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies ONECHELP_* environment variables, the
// highest-precedence configuration source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ONECHELP_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("ONECHELP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("ONECHELP_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("ONECHELP_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("ONECHELP_ARCHIVE_PATH"); v != "" {
		c.Archive.Path = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir must not be empty")
	}
	if c.Store.BatchSize < 1 {
		return fmt.Errorf("store.batch_size must be positive, got %d", c.Store.BatchSize)
	}
	if c.Store.CacheSize < 1 {
		return fmt.Errorf("store.cache_size must be positive, got %d", c.Store.CacheSize)
	}
	if c.Archive.MaxSizeMB < 1 {
		return fmt.Errorf("archive.max_size_mb must be positive, got %d", c.Archive.MaxSizeMB)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Multiplier < 1.0 {
		return fmt.Errorf("retry.multiplier must be >= 1.0, got %g", c.Retry.Multiplier)
	}
	return nil
}
