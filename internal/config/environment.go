package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Dotenv keys read from .env.<environment>.
const (
	EnvDestinationURL         = "DESTINATION_URL"
	EnvDestinationServiceKey  = "DESTINATION_SERVICE_KEY"
	EnvDestinationDatabaseURL = "DESTINATION_DATABASE_URL"
	EnvSourceURL              = "SOURCE_URL"
	EnvSourceServiceKey       = "SOURCE_SERVICE_KEY"
	EnvResetURL               = "RESET_URL"
)

// ResolvedEnvironment is a named environment with dotenv values applied.
type ResolvedEnvironment struct {
	Name string
	EnvironmentConfig
	DotenvPath string
	FromConfig bool
	FromDotenv bool
}

// Destination reports whether enough is known to reach a destination.
func (r *ResolvedEnvironment) Destination() bool {
	return r.URL != "" || r.DatabaseURL != ""
}

// ResolveEnvironment resolves a named environment. An empty name means the
// config's default environment. Values in .env.<name> override the toml.
func ResolveEnvironment(config *Config, name string) (*ResolvedEnvironment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		if config != nil && config.DefaultEnvironment != "" {
			envName = config.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}

	resolved := &ResolvedEnvironment{Name: envName}
	if config != nil && config.Environments != nil {
		if cfg, ok := config.Environments[envName]; ok {
			resolved.EnvironmentConfig = cfg
			resolved.FromConfig = true
		}
	}

	baseDir := config.ConfigDir()
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}
	resolved.DotenvPath = filepath.Join(baseDir, ".env."+envName)

	info, err := os.Stat(resolved.DotenvPath)
	switch {
	case err == nil && !info.IsDir():
		values, err := godotenv.Read(resolved.DotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", resolved.DotenvPath, err)
		}
		resolved.FromDotenv = true
		applyDotenv(&resolved.EnvironmentConfig, values)
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to access %s: %w", resolved.DotenvPath, err)
	}

	if !resolved.FromConfig && !resolved.FromDotenv {
		return nil, fmt.Errorf("environment %q not defined in %s and %s not found", envName, FileName, resolved.DotenvPath)
	}
	return resolved, nil
}

func applyDotenv(env *EnvironmentConfig, values map[string]string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(values[key]); v != "" {
			*dst = v
		}
	}
	set(&env.URL, EnvDestinationURL)
	set(&env.ServiceKey, EnvDestinationServiceKey)
	set(&env.DatabaseURL, EnvDestinationDatabaseURL)
	set(&env.SourceURL, EnvSourceURL)
	set(&env.SourceServiceKey, EnvSourceServiceKey)
	set(&env.ResetURL, EnvResetURL)
}
