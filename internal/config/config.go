// Package config loads project configuration from .tbd/config.yml with
// TBD_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DirName is the per-project workspace directory at the repository root.
const DirName = ".tbd"

// Defaults for sync behavior.
const (
	DefaultSyncBranch = "tbd-sync"
	DefaultSyncRemote = "origin"
	DefaultMaxRetries = 3
)

// Config holds the resolved project configuration.
type Config struct {
	// Root is the directory containing the .tbd workspace.
	Root string

	SyncBranch string
	SyncRemote string
	MaxRetries int

	// UserName is recorded as created_by on new records.
	UserName string
}

// Load reads configuration for the project rooted at root. A missing config
// file is fine; defaults and environment variables still apply.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(root, DirName, "config.yml"))
	v.SetConfigType("yaml")

	v.SetDefault("sync.branch", DefaultSyncBranch)
	v.SetDefault("sync.remote", DefaultSyncRemote)
	v.SetDefault("sync.max_retries", DefaultMaxRetries)
	v.SetDefault("user.name", "")

	v.SetEnvPrefix("TBD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{
		Root:       root,
		SyncBranch: v.GetString("sync.branch"),
		SyncRemote: v.GetString("sync.remote"),
		MaxRetries: v.GetInt("sync.max_retries"),
		UserName:   v.GetString("user.name"),
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return cfg, nil
}

// Dir returns the .tbd workspace directory.
func (c *Config) Dir() string { return filepath.Join(c.Root, DirName) }

// RecordsDir returns the records directory.
func (c *Config) RecordsDir() string { return filepath.Join(c.Dir(), "records") }

// IdmapPath returns the id mapping file path.
func (c *Config) IdmapPath() string { return filepath.Join(c.Dir(), "idmap.yml") }

// AtticPath returns the conflict log path.
func (c *Config) AtticPath() string { return filepath.Join(c.Dir(), "attic", "conflicts.yml") }

// LogPath returns the rotating log file path.
func (c *Config) LogPath() string { return filepath.Join(c.Dir(), "tbd.log") }

// LockPath returns the sync lock file path.
func (c *Config) LockPath() string { return filepath.Join(c.Dir(), "sync.lock") }

// SyncedPaths returns the repo-relative paths carried on the sync branch.
func (c *Config) SyncedPaths() (recordsPrefix, idmapPath string) {
	return DirName + "/records/", DirName + "/idmap.yml"
}

// FindRoot walks up from dir looking for an existing .tbd workspace.
// Returns empty string if none is found.
func FindRoot(dir string) string {
	current, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		if info, err := os.Stat(filepath.Join(current, DirName)); err == nil && info.IsDir() {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}
