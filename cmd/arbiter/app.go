package main

import (
	"context"
	"errors"
	"io"

	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/engine"
	"mercator-hq/arbiter/pkg/security/secrets"
	"mercator-hq/arbiter/pkg/telemetry/logging"
	"mercator-hq/arbiter/pkg/telemetry/metrics"
)

// app holds the components a command opened. Close releases them in
// reverse order.
type app struct {
	cfg     *config.Config
	secrets *secrets.Manager
	metrics *metrics.Collector
	engine  *engine.Engine
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, w io.Writer) error {
	lc := logging.FromConfig(cfg.Telemetry.Logging)
	lc.Writer = w
	logger, err := logging.New(lc)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	logger.SetDefault()
	return nil
}

// openApp loads configuration, applies flag overrides, routes logs to
// logOut and builds the engine. Metrics are collected only when withMetrics
// is set.
func openApp(ctx context.Context, logOut io.Writer, withMetrics bool, override func(*config.Config)) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := setupLogging(cfg, logOut); err != nil {
		return nil, err
	}

	sec, err := secrets.NewManagerFromConfig(cfg.Security.Secrets)
	if err != nil {
		return nil, cli.NewConfigError("security.secrets", err.Error())
	}

	a := &app{cfg: cfg, secrets: sec}
	if withMetrics && cfg.Telemetry.Metrics.Enabled {
		a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	a.engine, err = engine.NewFromConfig(ctx, cfg, sec, a.metrics)
	if err != nil {
		_ = sec.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.secrets != nil {
		errs = append(errs, a.secrets.Close())
	}
	return errors.Join(errs...)
}
