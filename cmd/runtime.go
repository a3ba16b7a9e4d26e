package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/flowsync/internal/config"
	"github.com/zjrosen/flowsync/internal/flags"
	"github.com/zjrosen/flowsync/internal/infrastructure/redisstore"
	"github.com/zjrosen/flowsync/internal/infrastructure/sqlite"
	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/metadata"
	"github.com/zjrosen/flowsync/internal/metrics"
	"github.com/zjrosen/flowsync/internal/pipeline"
	"github.com/zjrosen/flowsync/internal/pubsub"
	"github.com/zjrosen/flowsync/internal/reconcile"
	"github.com/zjrosen/flowsync/internal/remote"
	"github.com/zjrosen/flowsync/internal/synccache"
	"github.com/zjrosen/flowsync/internal/tracing"
)

// runtime holds every long-lived component a sync or watch session needs.
type runtime struct {
	pipeline  *pipeline.Pipeline
	cache     *synccache.Store
	metaStore metadata.Store
	publisher *metadata.Publisher
	broker    *pubsub.Broker[pipeline.Outcome]
	tracing   *tracing.Provider
	metrics   *metrics.StatsD
}

// newRuntime wires the pipeline from configuration. Callers must Close it.
func newRuntime(ctx context.Context, c config.Config) (*runtime, error) {
	rt := &runtime{}
	ready := false
	defer func() {
		if !ready {
			rt.Close(ctx)
		}
	}()

	traceCfg := c.Tracing
	if traceCfg.FilePath == "" {
		traceCfg.FilePath = config.DefaultTracesFilePath()
	}
	var err error
	if rt.tracing, err = tracing.NewProvider(traceCfg); err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	tracer := rt.tracing.Tracer()

	if rt.metrics, err = metrics.New(c.Metrics.Client()); err != nil {
		return nil, err
	}
	rt.broker = pubsub.NewBroker[pipeline.Outcome](pubsub.WithDropHook(func(et pubsub.EventType) {
		rt.metrics.Count(metrics.BrokerDropped, 1, metrics.Tag(metrics.TagEvent, string(et)))
	}))

	client, err := remote.New(c.Remote.ClientOptions("flowsync/" + version))
	if err != nil {
		return nil, fmt.Errorf("creating remote client: %w", err)
	}
	reconciler := reconcile.New(client, reconcile.Options{
		Delay:          c.Remote.RequestDelay,
		UpdateStatuses: c.Remote.UpdateStatuses,
		Metrics:        rt.metrics,
		Tracer:         tracer,
	})

	if rt.metaStore, err = openMetadataStore(ctx, c.Metadata); err != nil {
		return nil, err
	}
	rt.publisher = metadata.NewPublisher(rt.metaStore,
		metadata.WithTimeout(c.Metadata.Timeout),
		metadata.WithMetrics(rt.metrics),
		metadata.WithTracer(tracer))

	if rt.cache, err = synccache.Open(ctx, c.Cache.Location); err != nil {
		return nil, err
	}

	rt.pipeline = pipeline.New(pipeline.Options{
		Reconciler: reconciler,
		Publisher:  rt.publisher,
		Detector:   synccache.NewDetector(rt.cache.Load(ctx)),
		Cache:      rt.cache,
		Extensions: c.Extensions,
		Recursive:  c.Recursive,
		Broker:     rt.broker,
		Metrics:    rt.metrics,
		Tracer:     tracer,
		Flags:      flags.New(c.Flags),
	})
	ready = true
	return rt, nil
}

// openMetadataStore returns the configured backend, or nil when publishing
// is disabled.
func openMetadataStore(ctx context.Context, m config.MetadataConfig) (metadata.Store, error) {
	switch m.Backend {
	case config.BackendNone:
		log.Info(log.CatMetadata, "metadata publishing disabled")
		return nil, nil
	case config.BackendRedis:
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr:     m.RedisAddr,
			Password: m.RedisPassword,
			DB:       m.RedisDB,
			Prefix:   m.RedisPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("opening redis metadata store: %w", err)
		}
		return store, nil
	default:
		db, err := sqlite.NewDB(m.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite metadata store: %w", err)
		}
		return db.AutomationRepository(), nil
	}
}

// Close releases every component, flushing traces and metrics.
func (rt *runtime) Close(ctx context.Context) {
	var errs []error
	if rt.publisher != nil {
		errs = append(errs, rt.publisher.Close())
	} else if rt.metaStore != nil {
		errs = append(errs, rt.metaStore.Close())
	}
	if rt.cache != nil {
		errs = append(errs, rt.cache.Close())
	}
	if rt.metrics != nil {
		errs = append(errs, rt.metrics.Close())
	}
	if rt.tracing != nil {
		errs = append(errs, rt.tracing.Shutdown(context.WithoutCancel(ctx)))
	}
	if rt.broker != nil {
		rt.broker.Close()
	}
	if err := errors.Join(errs...); err != nil {
		log.ErrorErr(log.CatConfig, "error during shutdown", err)
	}
}
