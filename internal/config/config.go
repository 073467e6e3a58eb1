// Package config loads stackup's settings from ~/.stackup/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// HomeEnv overrides the stackup home directory.
const HomeEnv = "STACKUP_HOME"

const (
	FileName    = "config.yaml"
	DBFileName  = "stackup.db"
	LogFileName = "stackup.log"
	LockName    = "stackup.lock"
	PIDFileName = "watch.pid"
)

// Dir returns the stackup home directory: $STACKUP_HOME when set, else
// ~/.stackup.
func Dir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return homedir.Expand(dir)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".stackup"), nil
}

// Config is the on-disk configuration. Relative paths are resolved against
// the stackup home directory.
type Config struct {
	CatalogDir  string            `yaml:"catalog_dir" validate:"required"`
	LogsDir     string            `yaml:"logs_dir" validate:"required"`
	Prompt      string            `yaml:"prompt" validate:"oneof=auto line form"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Backup      BackupConfig      `yaml:"backup"`
	Health      HealthConfig      `yaml:"health"`
	Install     InstallConfig     `yaml:"install"`

	// Home is the directory the config was loaded from.
	Home string `yaml:"-"`
}

type CredentialsConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file sqlite"`
	Dir     string `yaml:"dir" validate:"required_if=Backend file"`
}

type BackupConfig struct {
	Dir           string `yaml:"dir" validate:"required"`
	RetentionDays int    `yaml:"retention_days" validate:"gte=0"`
}

type HealthConfig struct {
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
	Interval    time.Duration `yaml:"interval" validate:"gte=0"`
	Concurrency int           `yaml:"concurrency" validate:"gte=0"`
}

type InstallConfig struct {
	// TranscriptLines is how many output lines are shown before asking
	// whether a dependency installed successfully.
	TranscriptLines int `yaml:"transcript_lines" validate:"gte=0"`
	// WaitAttempts bounds "install --wait" health retries.
	WaitAttempts uint `yaml:"wait_attempts"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		CatalogDir: "catalog",
		LogsDir:    "logs",
		Prompt:     "auto",
		Credentials: CredentialsConfig{
			Backend: "file",
			Dir:     "credentials",
		},
		Backup: BackupConfig{
			Dir:           "backups",
			RetentionDays: 30,
		},
		Health: HealthConfig{
			Timeout:     5 * time.Second,
			Interval:    time.Minute,
			Concurrency: 4,
		},
		Install: InstallConfig{
			TranscriptLines: 15,
			WaitAttempts:    10,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the config file at path, creating it with defaults when it
// does not exist. An empty path selects config.yaml in Dir().
func Load(path string) (*Config, error) {
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, FileName)
	}

	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.resolve(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, so omitted keys keep their default
// values, and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, fmt.Errorf("invalid config: %s failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) resolve(home string) error {
	c.Home = home
	for _, p := range []*string{&c.CatalogDir, &c.LogsDir, &c.Credentials.Dir, &c.Backup.Dir} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %s: %w", *p, err)
		}
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Join(home, expanded)
		}
		*p = expanded
	}
	return nil
}

// DBPath is the SQLite database location.
func (c *Config) DBPath() string { return filepath.Join(c.Home, DBFileName) }

// LogPath is the structured log file.
func (c *Config) LogPath() string { return filepath.Join(c.Home, LogFileName) }

// LockPath is the install lock file.
func (c *Config) LockPath() string { return filepath.Join(c.Home, LockName) }

// PIDPath is the watch daemon PID file.
func (c *Config) PIDPath() string { return filepath.Join(c.Home, PIDFileName) }

// Retention is the backup retention as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
