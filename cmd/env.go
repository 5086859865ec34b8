package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/studio-suggest/internal/config"
	"github.com/sells-group/studio-suggest/internal/db"
	"github.com/sells-group/studio-suggest/internal/handler"
	"github.com/sells-group/studio-suggest/internal/lifecycle"
	"github.com/sells-group/studio-suggest/internal/monitoring"
	"github.com/sells-group/studio-suggest/internal/pattern"
	"github.com/sells-group/studio-suggest/internal/resilience"
	"github.com/sells-group/studio-suggest/internal/store"
)

// engineEnv bundles the resources a command needs.
type engineEnv struct {
	Store   *store.SQLStore
	Targets *handler.Targets
	Engine  *lifecycle.Engine
	Metrics *monitoring.Metrics
}

// Close releases the store.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context, c *config.Config) (*store.SQLStore, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:      c.Store.Driver,
		DatabaseURL: c.Store.DatabaseURL,
		Pool:        db.PoolConfig{MaxConns: c.Store.MaxConns, MinConns: c.Store.MinConns},
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadTargets returns the business table mapping, from targets_file when
// set. handlers.allowed_statuses overrides the file.
func loadTargets(c *config.Config) (*handler.Targets, error) {
	targets := handler.DefaultTargets()
	if c.Handlers.TargetsFile != "" {
		var err error
		if targets, err = handler.LoadTargets(c.Handlers.TargetsFile); err != nil {
			return nil, err
		}
	}
	if len(c.Handlers.AllowedStatuses) > 0 {
		targets.AllowedStatuses = c.Handlers.AllowedStatuses
	}
	return targets, nil
}

// engineConfig maps the file configuration onto the engine's.
func engineConfig(c *config.Config) lifecycle.Config {
	ec := lifecycle.DefaultConfig()
	ec.Weights = pattern.Weights{
		SignalWeight:        c.Confidence.SignalWeight,
		PatternWeight:       c.Confidence.PatternWeight,
		UsageSaturation:     c.Confidence.UsageSaturation,
		DisagreementDamping: c.Confidence.DisagreementDamping,
		PriorCorrect:        c.Confidence.PriorCorrect,
		PriorRejected:       c.Confidence.PriorRejected,
	}
	ec.Policy = pattern.Policy{
		MinEvidence:      c.Rules.MinEvidence,
		MaxRejectionRate: c.Rules.MaxRejectionRate,
		MinSample:        c.Rules.MinSample,
	}
	if c.Suggestions.TTLHours > 0 {
		ec.TTL = time.Duration(c.Suggestions.TTLHours) * time.Hour
	}
	if c.Batch.MaxConcurrency > 0 {
		ec.MaxConcurrency = c.Batch.MaxConcurrency
	}
	ec.Retry = resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)
	return ec
}

// initEngine validates the configuration for mode and wires the engine.
func initEngine(ctx context.Context, c *config.Config, mode string) (*engineEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}
	targets, err := loadTargets(c)
	if err != nil {
		return nil, err
	}
	reg, err := handler.NewDefaultRegistry(targets)
	if err != nil {
		return nil, eris.Wrap(err, "build handler registry")
	}
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}

	metrics := monitoring.NewMetrics()
	eng, err := lifecycle.New(st, reg,
		lifecycle.WithConfig(engineConfig(c)),
		lifecycle.WithTargets(targets),
		lifecycle.WithObserver(metrics),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &engineEnv{Store: st, Targets: targets, Engine: eng, Metrics: metrics}, nil
}
