// Package lifecycle is the public API of the suggestion engine. It turns
// signals into suggestions, records human decisions, applies and reverses
// approved suggestions through their handlers, and feeds the outcomes back
// into the pattern store. Every operation is one transaction guarded by a
// compare-and-set on the suggestion's status.
package lifecycle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/apperr"
	"github.com/sells-group/studio-suggest/internal/handler"
	"github.com/sells-group/studio-suggest/internal/pattern"
	"github.com/sells-group/studio-suggest/internal/resilience"
	"github.com/sells-group/studio-suggest/internal/store"
)

// Config tunes the engine.
type Config struct {
	Weights pattern.Weights
	Policy  pattern.Policy
	// TTL is how long a new suggestion stays pending before ExpireStale
	// rejects it. Zero disables expiry.
	TTL time.Duration
	// MaxConcurrency bounds batch operations.
	MaxConcurrency int
	Retry          resilience.RetryConfig
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Weights:        pattern.DefaultWeights(),
		Policy:         pattern.DefaultPolicy(),
		TTL:            14 * 24 * time.Hour,
		MaxConcurrency: 4,
		Retry:          resilience.DefaultRetryConfig(),
	}
}

// Observer receives one call per finished engine operation.
type Observer interface {
	Observe(op, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Observe(string, string, time.Duration) {}

// Engine sequences the stores and handlers. It holds no state beyond its
// configuration; everything else lives in the database.
type Engine struct {
	store    store.Store
	handlers *handler.Registry
	targets  *handler.Targets
	scorer   *pattern.Scorer
	policy   pattern.Policy
	cfg      Config
	observer Observer
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithTargets sets the business table layout used to pick target tables.
func WithTargets(t *handler.Targets) Option {
	return func(e *Engine) { e.targets = t }
}

// WithObserver reports operation outcomes to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the engine's clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over st. The registry must cover every suggestion
// type.
func New(st store.Store, reg *handler.Registry, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, eris.New("lifecycle: nil store")
	}
	if reg == nil {
		return nil, eris.New("lifecycle: nil handler registry")
	}
	if err := reg.Verify(); err != nil {
		return nil, eris.Wrap(err, "lifecycle: verify handlers")
	}

	e := &Engine{
		store:    st,
		handlers: reg,
		cfg:      DefaultConfig(),
		observer: nopObserver{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.targets == nil {
		e.targets = handler.DefaultTargets()
	}
	if e.cfg.MaxConcurrency <= 0 {
		e.cfg.MaxConcurrency = 1
	}
	if e.cfg.Policy.MaxRejectionRate <= 0 {
		e.cfg.Policy = pattern.DefaultPolicy()
	}
	e.scorer = pattern.NewScorer(e.cfg.Weights)
	e.policy = e.cfg.Policy
	return e, nil
}

// Scorer returns the engine's confidence scorer.
func (e *Engine) Scorer() *pattern.Scorer { return e.scorer }

// retry runs fn under the configured retry policy, logging each retry.
func retry[T any](ctx context.Context, e *Engine, op, id string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg := e.cfg.Retry
	cfg.OnRetry = resilience.RetryLogger(op, id)
	return resilience.DoVal(ctx, cfg, fn)
}

// observe records the outcome of one operation started at start.
func (e *Engine) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.Kind(err)
	}
	e.observer.Observe(op, outcome, time.Since(start))
}

func logger(op, id string) *zap.Logger {
	return zap.L().With(zap.String("op", op), zap.String("suggestion_id", id))
}
