package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/lockplane/schemasync/internal/config"
	"github.com/lockplane/schemasync/internal/history"
	"github.com/lockplane/schemasync/internal/logging"
	"github.com/lockplane/schemasync/internal/orchestrator"
	"github.com/lockplane/schemasync/internal/rpc"
)

// runtime is what every command that talks to a destination needs.
type runtime struct {
	cfg *config.Config
	log *logrus.Logger
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", config.FileName, err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	format := cfg.Logging.Format
	if logFormat != "" {
		format = logFormat
	}
	log, err := logging.New(level, format, os.Stderr)
	if err != nil {
		return nil, err
	}

	return &runtime{cfg: cfg, log: log}, nil
}

func (rt *runtime) environment(name string) (*config.ResolvedEnvironment, error) {
	env, err := config.ResolveEnvironment(rt.cfg, name)
	if err != nil {
		return nil, err
	}
	if !env.Destination() {
		return nil, fmt.Errorf("environment %q has no url or database_url", env.Name)
	}
	return env, nil
}

func (rt *runtime) settings() orchestrator.Settings {
	e := rt.cfg.Execution
	return orchestrator.Settings{
		PreferCLI:         e.Prefer(),
		BootstrapAttempts: e.BootstrapAttempts,
		BootstrapDelay:    e.BootstrapDelay.Duration,
		ConnectTimeout:    e.ConnectTimeout.Duration,
		IdleTimeout:       e.IdleTimeout.Duration,
		CloseTimeout:      e.CloseTimeout.Duration,
	}
}

// orchestrator builds an orchestrator for env. The returned closer releases
// the history store.
func (rt *runtime) orchestrator(ctx context.Context, env *config.ResolvedEnvironment) (*orchestrator.Orchestrator, io.Closer, error) {
	o := orchestrator.New(rt.settings(), rt.log)
	if env != nil && env.ResetURL != "" {
		o.Resetter = rpc.NewResetClient(env.ResetURL, env.ServiceKey, nil)
	}

	if rt.cfg.History.Disabled {
		return o, io.NopCloser(nil), nil
	}
	store, err := history.Open(ctx, rt.cfg.HistoryPath())
	if err != nil {
		return nil, nil, err
	}
	o.History = store
	return o, store, nil
}

func destinationFor(env *config.ResolvedEnvironment) orchestrator.Destination {
	return orchestrator.Destination{
		URL:         env.URL,
		ServiceKey:  env.ServiceKey,
		DatabaseURL: env.DatabaseURL,
	}
}

func sourceFor(env *config.ResolvedEnvironment) *orchestrator.Source {
	if env.SourceURL == "" {
		return nil
	}
	return &orchestrator.Source{URL: env.SourceURL, ServiceKey: env.SourceServiceKey}
}

// readSQL reads a script from path, or stdin when path is "-".
func readSQL(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
