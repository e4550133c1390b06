package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrisonrobin/jotask/pkg/auth"
	"github.com/harrisonrobin/jotask/pkg/config"
	"github.com/harrisonrobin/jotask/pkg/extract"
	"github.com/harrisonrobin/jotask/pkg/kv"
	"github.com/harrisonrobin/jotask/pkg/pipeline"
	"github.com/harrisonrobin/jotask/pkg/store"
	"github.com/sirupsen/logrus"
)

type rootOptions struct {
	configPath string
	logLevel   string
	output     string
}

// app holds everything a command needs, built once per invocation.
type app struct {
	opts    rootOptions
	cfgPath string
	cfgDir  string
	cfg     *config.Config
	env     config.Env
	logger  *logrus.Logger
	kv      kv.Store
	store   *store.TaskStore
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.WarnLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func configPath(opts rootOptions) (string, error) {
	if opts.configPath != "" {
		return opts.configPath, nil
	}
	p, err := config.GetConfigPath()
	if err != nil {
		return "", fmt.Errorf("could not find path to configuration file: %w", err)
	}
	return p, nil
}

func newApp(opts rootOptions) (*app, error) {
	cfgPath, err := configPath(opts)
	if err != nil {
		return nil, err
	}
	cfgDir := filepath.Dir(cfgPath)

	env, dotenv := config.LoadEnv(".env", filepath.Join(cfgDir, ".env"))

	level := opts.logLevel
	if level == "" {
		level = env.LogLevel
	}
	logger := newLogger(level)
	if !dotenv {
		logger.Debug(".env file not found, using environment variables")
	}

	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	backend, err := kv.Open(cfg.Backend, cfg.StorePath)
	if err != nil {
		return nil, err
	}
	if fs, ok := backend.(*kv.FileStore); ok && fs.Recovered != "" {
		logger.WithField("moved_to", fs.Recovered).Warn("state file was corrupt, starting with an empty workspace")
	}

	return &app{
		opts:    opts,
		cfgPath: cfgPath,
		cfgDir:  cfgDir,
		cfg:     cfg,
		env:     env,
		logger:  logger,
		kv:      backend,
		store:   store.New(backend, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		a.logger.WithError(err).Warn("error closing state store")
	}
}

func (a *app) extractor(ctx context.Context) (extract.Extractor, error) {
	return extract.NewGeminiClient(ctx, extract.Config{
		APIKey: a.env.GeminiAPIKey,
		Model:  config.ResolveModel(a.cfg, a.env),
	}, a.logger)
}

// orchestrator builds the sync state machine. ex may be nil for commands
// that never sync.
func (a *app) orchestrator(ex extract.Extractor) *pipeline.Orchestrator {
	return pipeline.New(a.store, ex, a.logger)
}

func (a *app) clientConfig(flagClientID string) (auth.ClientConfig, string) {
	id, source := config.ResolveClientID(flagClientID, a.store.ClientID(), a.env.ClientID)
	return auth.ClientConfig{
		ClientID:     id,
		ClientSecret: config.ResolveClientSecret(a.cfg, a.env),
	}, source
}

func (a *app) tokenFlow(client auth.ClientConfig, scopes []string, tokenFile string) *auth.TokenFlow {
	return auth.NewTokenFlow(client, scopes, filepath.Join(a.cfgDir, tokenFile), a.logger)
}
