// Package config loads tasksync configuration from file, environment,
// and defaults, with live reload on config file changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all tasksync settings.
type Config struct {
	// DataDir is where the local database lives.
	DataDir string `mapstructure:"data_dir"`

	// RemoteURL is the base URL of the remote API, e.g.
	// "http://localhost:3000/api". Empty means fully offline operation.
	RemoteURL string `mapstructure:"remote_url"`

	Sync struct {
		Interval      time.Duration `mapstructure:"interval"`
		Auto          bool          `mapstructure:"auto"`
		RetentionDays int           `mapstructure:"retention_days"`
		MaxRetries    int           `mapstructure:"max_retries"`
	} `mapstructure:"sync"`

	Dashboard struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"dashboard"`

	Log struct {
		// File is the daemon log path; empty logs to stderr.
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"log"`
}

// DatabasePath returns the SQLite file location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "tasksync.db")
}

// Loader reads and watches a configuration source.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a loader. With an empty configFile the loader searches
// for tasksync.yaml in the current directory and ~/.tasksync/.
func NewLoader(configFile string) *Loader {
	v := viper.New()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("remote_url", "")
	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("sync.auto", true)
	v.SetDefault("sync.retention_days", 7)
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("tasksync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tasksync"))
		}
	}

	v.SetEnvPrefix("TASKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load reads the configuration. A missing config file is not an error;
// defaults and environment still apply.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Watch reloads the configuration whenever the config file changes and
// hands the fresh copy to onChange. Parse failures are reported through
// onError; the previous configuration stays in effect.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to parse config after change: %w", err))
			}
			return
		}
		onChange(&cfg)
	})
	l.v.WatchConfig()
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tasksync"
	}
	return filepath.Join(home, ".tasksync")
}
