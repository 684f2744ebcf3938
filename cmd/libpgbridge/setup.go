package main

import (
	"context"
	"errors"
	"os"
	"reflect"

	"github.com/santif/pgbridge/bridge"
	"github.com/santif/pgbridge/config"
	"github.com/santif/pgbridge/observability"
)

// configFileEnv names the optional configuration file; it is watched for changes
const configFileEnv = "PGBRIDGE_CONFIG"

// runtime is the process-wide bridge and everything that has to be stopped with it
type runtime struct {
	bridge  *bridge.Bridge
	manager *config.DefaultManager
	tracer  observability.Tracer
	logger  observability.Logger
}

// newRuntime loads the configuration from PGBRIDGE_* variables and the optional file.
// An invalid configuration is logged and replaced by the defaults so the library stays usable.
func newRuntime(ctx context.Context) *runtime {
	bootLogger := observability.NewLogger()

	manager := config.NewManager(
		config.WithLogger(bootLogger),
		config.WithSource(config.NewEnvSource(config.EnvPrefix)),
	)
	if path := os.Getenv(configFileEnv); path != "" {
		manager.AddSource(config.NewFileSource(path, "", config.WithWatcher(true)))
	}

	cfg := config.Default()
	if err := manager.Load(cfg); err != nil {
		bootLogger.Error("invalid configuration, using defaults", err)
		cfg = config.Default()
	}

	obs := cfg.Observability()
	logger := observability.NewLoggerWithConfig(obs.Logger)
	tracer, err := observability.NewTracerWithConfig(obs.Tracing)
	if err != nil {
		logger.Error("tracing disabled", err)
		tracer = observability.NoOpTracer()
	}

	b, err := bridge.New(cfg,
		bridge.WithLogger(logger),
		bridge.WithMetrics(observability.NewMetricsWithConfig(obs.Metrics)),
		bridge.WithTracer(tracer),
	)
	if err != nil {
		logger.Error("bridge configuration rejected, using defaults", err)
		b, _ = bridge.New(config.Default(), bridge.WithLogger(logger), bridge.WithTracer(tracer))
	}

	rt := &runtime{bridge: b, manager: manager, tracer: tracer, logger: logger}
	rt.watch(ctx, cfg)
	return rt
}

// watch pushes configuration file changes to the bridge
func (rt *runtime) watch(ctx context.Context, cfg *config.Config) {
	live, err := config.NewLive(cfg)
	if err != nil {
		return
	}
	live.Subscribe(rt.bridge)

	_ = rt.manager.Watch(func(c interface{}) {
		next, ok := c.(*config.Config)
		if !ok {
			return
		}
		// A single save often fires several file events.
		if reflect.DeepEqual(live.Get(), next) {
			return
		}
		if err := live.Update(next); err != nil {
			rt.logger.Error("configuration reload failed", err)
		}
	})
	if err := rt.manager.StartWatching(ctx, cfg); err != nil {
		rt.logger.Warn("configuration file is not watched", observability.NewField("error", err.Error()))
	}
}

// shutdown closes every connection and stops the watcher and the exporter
func (rt *runtime) shutdown(ctx context.Context) error {
	return errors.Join(
		rt.bridge.Shutdown(ctx),
		rt.manager.StopWatching(),
		rt.tracer.Shutdown(ctx),
	)
}
