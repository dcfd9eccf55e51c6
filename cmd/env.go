package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/carrier-sync/internal/model"
	"github.com/sells-group/carrier-sync/internal/pipeline"
	"github.com/sells-group/carrier-sync/internal/registry"
	"github.com/sells-group/carrier-sync/internal/regsync"
	"github.com/sells-group/carrier-sync/internal/resilience"
	"github.com/sells-group/carrier-sync/internal/signals"
	"github.com/sells-group/carrier-sync/internal/store"
)

// syncEnv holds the store, registry client, pipeline and engine used by the
// lookup, sync, jobs and serve commands.
type syncEnv struct {
	Store    store.Store
	Registry *registry.Client
	Pipeline *pipeline.Pipeline
	Engine   *regsync.Engine
	Signals  *signals.Service
	Alerter  *signals.Alerter
}

// Close releases resources held by the environment.
func (se *syncEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initRegistry builds the registry client guarded by a circuit breaker.
func initRegistry() (*registry.Client, error) {
	breakerCfg := resilience.FromCircuitConfig(cfg.Sync.CircuitFailureThreshold, cfg.Sync.CircuitResetSecs)
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("registry circuit breaker state change",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	opts := registry.OptionsFromConfig(cfg.Registry)
	opts.Breaker = resilience.NewCircuitBreaker(breakerCfg)
	return registry.NewClient(opts)
}

// initEnv validates config for mode, opens and migrates the store, and wires
// the pipeline and engine. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*syncEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client, err := initRegistry()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p, err := pipeline.New(client, st, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	alerter := signals.NewAlerter(cfg.Alerts)
	engine := regsync.NewEngine(st, p, client, cfg.Sync,
		regsync.WithJobHook(func(ctx context.Context, job *model.SyncJob) {
			alerter.NotifyJob(ctx, job)
		}),
	)

	return &syncEnv{
		Store:    st,
		Registry: client,
		Pipeline: p,
		Engine:   engine,
		Signals:  signals.NewService(st, p.Tracker()),
		Alerter:  alerter,
	}, nil
}
