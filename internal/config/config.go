package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the config file looked up from the working directory upward.
const FileName = "schemasync.toml"

const (
	defaultEnvironmentName   = "local"
	defaultBootstrapAttempts = 10
	defaultBootstrapDelay    = 2 * time.Second
	defaultConnectTimeout    = 10 * time.Second
	defaultIdleTimeout       = 30 * time.Second
	defaultCloseTimeout      = 5 * time.Second
	defaultListen            = "127.0.0.1:8787"
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultHistoryPath       = ".schemasync/history.db"
)

// Duration is a time.Duration written as a string ("2s", "500ms") in toml.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// EnvironmentConfig describes a single named environment from schemasync.toml.
type EnvironmentConfig struct {
	URL              string `toml:"url"`
	ServiceKey       string `toml:"service_key"`
	DatabaseURL      string `toml:"database_url"`
	SourceURL        string `toml:"source_url"`
	SourceServiceKey string `toml:"source_service_key"`
	ResetURL         string `toml:"reset_url"`
}

// ExecutionConfig tunes how scripts are applied.
type ExecutionConfig struct {
	PreferCLI         *bool    `toml:"prefer_cli"`
	ResetDestination  *bool    `toml:"reset_destination"`
	BootstrapAttempts int      `toml:"bootstrap_attempts"`
	BootstrapDelay    Duration `toml:"bootstrap_delay"`
	ConnectTimeout    Duration `toml:"connect_timeout"`
	IdleTimeout       Duration `toml:"idle_timeout"`
	CloseTimeout      Duration `toml:"close_timeout"`
}

// Prefer reports whether direct batch execution is preferred over per-statement.
func (e ExecutionConfig) Prefer() bool {
	return e.PreferCLI == nil || *e.PreferCLI
}

// Reset reports whether clone resets the destination before applying.
func (e ExecutionConfig) Reset() bool {
	return e.ResetDestination == nil || *e.ResetDestination
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type HistoryConfig struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

type Config struct {
	DefaultEnvironment string                       `toml:"default_environment"`
	Environments       map[string]EnvironmentConfig `toml:"environments"`
	Execution          ExecutionConfig              `toml:"execution"`
	Server             ServerConfig                 `toml:"server"`
	Logging            LoggingConfig                `toml:"logging"`
	History            HistoryConfig                `toml:"history"`
	ConfigFilePath     string                       `toml:"-"`
}

// Default returns a config with every default applied and no environments.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.DefaultEnvironment == "" {
		c.DefaultEnvironment = defaultEnvironmentName
	}
	if c.Execution.BootstrapAttempts <= 0 {
		c.Execution.BootstrapAttempts = defaultBootstrapAttempts
	}
	if c.Execution.BootstrapDelay.Duration <= 0 {
		c.Execution.BootstrapDelay.Duration = defaultBootstrapDelay
	}
	if c.Execution.ConnectTimeout.Duration <= 0 {
		c.Execution.ConnectTimeout.Duration = defaultConnectTimeout
	}
	if c.Execution.IdleTimeout.Duration <= 0 {
		c.Execution.IdleTimeout.Duration = defaultIdleTimeout
	}
	if c.Execution.CloseTimeout.Duration <= 0 {
		c.Execution.CloseTimeout.Duration = defaultCloseTimeout
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.History.Path == "" {
		c.History.Path = defaultHistoryPath
	}
}

// ConfigDir returns the directory holding the loaded config file, or "".
func (c *Config) ConfigDir() string {
	if c == nil || c.ConfigFilePath == "" {
		return ""
	}
	return filepath.Dir(c.ConfigFilePath)
}

// HistoryPath resolves the history path relative to the config directory.
func (c *Config) HistoryPath() string {
	if filepath.IsAbs(c.History.Path) || c.ConfigDir() == "" {
		return c.History.Path
	}
	return filepath.Join(c.ConfigDir(), c.History.Path)
}

// LoadConfig finds schemasync.toml by walking up from the working directory
// and stops at a project root. A missing file yields the defaults.
func LoadConfig() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(startDir)
}

// LoadConfigFrom is LoadConfig starting at dir.
func LoadConfigFrom(startDir string) (*Config, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			return ReadFile(configPath)
		}

		if isProjectRoot(dir) {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return Default(), nil
}

// ReadFile parses one config file.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	config.ConfigFilePath = path
	config.applyDefaults()
	return &config, nil
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	for _, marker := range []string{".git", "go.mod", "package.json"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}
