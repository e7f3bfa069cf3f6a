package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/himalco/dairyerp/attsync/internal/types"
)

// Defaults applied to any field the config document leaves out. A partial
// (or entirely missing) document is valid.
const (
	DefaultAPIURL        = "http://localhost:8080"
	DefaultSyncInterval  = 300 // seconds
	DefaultDevicePort    = 4370
	DefaultDeviceTimeout = 5 // seconds
)

// DeviceConfig describes one biometric terminal.
type DeviceConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Timeout int    `yaml:"timeout"` // seconds, dial timeout
}

// DialTimeout returns the device's dial timeout as a duration.
func (d DeviceConfig) DialTimeout() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

// Config is one immutable snapshot of the agent configuration. A daemon
// reloads a fresh snapshot at each cycle boundary; a single run never
// observes a live edit.
type Config struct {
	APIURL       string         `yaml:"api_url"`
	Username     string         `yaml:"username"`
	Password     string         `yaml:"password"`
	SyncInterval int            `yaml:"sync_interval"` // seconds
	Devices      []DeviceConfig `yaml:"devices"`
	SourcePaths  []string       `yaml:"source_paths"`
	JournalPath  string         `yaml:"journal_path"`
	ControlAddr  string         `yaml:"control_addr"`
}

// Load reads the YAML document at path, applies defaults for missing
// fields, and then applies ATTSYNC_* environment overrides (a .env file is
// honored if present). A missing file yields a default config so that
// credentials can be supplied purely through the environment.
func Load(path string) (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:       DefaultAPIURL,
		SyncInterval: DefaultSyncInterval,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	for i := range cfg.Devices {
		if cfg.Devices[i].Port <= 0 {
			cfg.Devices[i].Port = DefaultDevicePort
		}
		if cfg.Devices[i].Timeout <= 0 {
			cfg.Devices[i].Timeout = DefaultDeviceTimeout
		}
		if cfg.Devices[i].Name == "" {
			cfg.Devices[i].Name = cfg.Devices[i].Address
		}
	}

	cfg.APIURL = getEnv("ATTSYNC_API_URL", cfg.APIURL)
	cfg.Username = getEnv("ATTSYNC_USERNAME", cfg.Username)
	cfg.Password = getEnv("ATTSYNC_PASSWORD", cfg.Password)
	if v := os.Getenv("ATTSYNC_SYNC_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ATTSYNC_SYNC_INTERVAL: %w", err)
		}
		cfg.SyncInterval = n
	}

	return cfg, nil
}

// Validate checks the fields a sync run cannot proceed without.
func (c *Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("%w: username and password are required", types.ErrConfig)
	}
	return nil
}

// Interval returns the sync interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
