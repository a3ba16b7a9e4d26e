// Package pipeline runs the per-file sync state machine and the batch and
// watch drivers built on it.
//
// A run moves a file through Loaded, then Unchanged or Changed, then
// Validated, then Created, Updated or Failed, and finally records whether
// metadata was published. Only Created and Updated advance the fingerprint
// cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/flowsync/internal/definition"
	"github.com/zjrosen/flowsync/internal/flags"
	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/metadata"
	"github.com/zjrosen/flowsync/internal/metrics"
	"github.com/zjrosen/flowsync/internal/paths"
	"github.com/zjrosen/flowsync/internal/pubsub"
	"github.com/zjrosen/flowsync/internal/reconcile"
	"github.com/zjrosen/flowsync/internal/synccache"
	"github.com/zjrosen/flowsync/internal/tracing"
)

type (
	// Reconciler applies a validated definition remotely.
	Reconciler interface {
		Reconcile(ctx context.Context, def *definition.Definition) (reconcile.Result, error)
	}

	// CacheSaver persists fingerprint cache entries.
	CacheSaver interface {
		Save(ctx context.Context, entries synccache.Entries) error
	}

	// Options wires a Pipeline.
	Options struct {
		Reconciler Reconciler
		Publisher  *metadata.Publisher
		Detector   *synccache.Detector
		Cache      CacheSaver
		Extensions []string
		Recursive  bool
		Broker     *pubsub.Broker[Outcome]
		Metrics    metrics.Recorder
		Tracer     trace.Tracer
		Flags      *flags.Registry
	}

	// Pipeline is the single per-file operation shared by every trigger source.
	// Runs are serialized; the detector is never touched concurrently.
	Pipeline struct {
		mu         sync.Mutex
		reconciler Reconciler
		publisher  *metadata.Publisher
		detector   *synccache.Detector
		cache      CacheSaver
		extensions []string
		recursive  bool
		broker     *pubsub.Broker[Outcome]
		metrics    metrics.Recorder
		tracer     trace.Tracer
		flags      *flags.Registry
	}
)

// New builds a Pipeline. Reconciler is required; a nil Detector starts from
// an empty cache and a nil Cache disables persistence.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		reconciler: opts.Reconciler,
		publisher:  opts.Publisher,
		detector:   opts.Detector,
		cache:      opts.Cache,
		extensions: paths.NormalizeExtensions(opts.Extensions),
		recursive:  opts.Recursive,
		broker:     opts.Broker,
		metrics:    opts.Metrics,
		tracer:     tracing.OrNoop(opts.Tracer),
		flags:      opts.Flags,
	}
	if p.detector == nil {
		p.detector = synccache.NewDetector(nil)
	}
	if p.metrics == nil {
		p.metrics = metrics.Discard
	}
	return p
}

// Detector exposes the in-memory fingerprint cache.
func (p *Pipeline) Detector() *synccache.Detector {
	return p.detector
}

// Run processes exactly one file and returns its outcome. Failures are
// reported in the outcome, never as a panic or error, so callers can keep
// going with the next file.
func (p *Pipeline) Run(ctx context.Context, path string) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	ctx, span := tracing.Start(ctx, p.tracer, tracing.SpanPipelineRun,
		attribute.String(tracing.AttrFilePath, path))

	out := p.run(ctx, path)

	out.Duration = time.Since(start)
	out.FinishedAt = time.Now()
	span.SetAttributes(
		attribute.String(tracing.AttrSyncState, string(out.State)),
		attribute.String(tracing.AttrFingerprint, string(out.Fingerprint)),
		attribute.String(tracing.AttrFlowNamespace, out.Ref.Namespace),
		attribute.String(tracing.AttrFlowID, out.Ref.ID),
	)
	tracing.Fail(span, out.Err)
	span.End()

	p.report(out)
	return out
}

func (p *Pipeline) run(ctx context.Context, path string) Outcome {
	out := Outcome{Path: path, Metadata: MetadataSkipped}

	raw, err := os.ReadFile(path) //nolint:gosec // G304: path comes from discovery or the watcher
	if err != nil {
		out.State = Failed
		out.Err = fmt.Errorf("reading %s: %w", path, err)
		return out
	}

	change, fp := p.detector.Check(path, raw)
	out.Fingerprint = fp
	if change == synccache.Unchanged {
		out.State = Unchanged
		return out
	}

	def, err := definition.Parse(path, raw)
	if err != nil {
		out.State = Failed
		out.Err = err
		return out
	}
	out.Ref = def.Ref()

	if res := definition.Validate(def); !res.Valid {
		out.State = Failed
		out.Err = res.Err(path)
		return out
	}

	result, err := p.reconciler.Reconcile(ctx, def)
	out.Calls = result.Calls
	if err != nil {
		out.State = Failed
		out.Err = err
		return out
	}
	switch result.Action {
	case reconcile.Updated:
		out.State = Updated
	default:
		out.State = Created
	}

	if p.publisher.Enabled() {
		if err := p.publisher.Publish(ctx, def, path); err != nil {
			out.Metadata = MetadataFailed
			out.MetadataErr = err
		} else {
			out.Metadata = MetadataPublished
		}
	}

	p.detector.Advance(path, fp)
	return out
}

// report logs, counts and broadcasts an outcome.
func (p *Pipeline) report(out Outcome) {
	fields := []any{
		"path", out.Path,
		"state", out.State,
		"metadata", out.Metadata,
		"fingerprint", out.Fingerprint.Short(),
		"duration", out.Duration,
	}
	if out.Ref.ID != "" {
		fields = append(fields, "flow", out.Ref.String())
	}

	switch out.State {
	case Failed:
		var remoteErr *reconcile.RemoteFailure
		if errors.As(out.Err, &remoteErr) {
			fields = append(fields, "op", remoteErr.Op, "status", remoteErr.Status,
				"reason", remoteErr.Message(), "body", string(remoteErr.Body))
		}
		log.ErrorErr(log.CatSync, "sync failed", out.Err, fields...)
	case Unchanged:
		log.Debug(log.CatSync, "unchanged, skipping", fields...)
	default:
		log.Info(log.CatSync, "synced", fields...)
	}
	if out.MetadataErr != nil {
		log.Warn(log.CatMetadata, "metadata publish failed", "path", out.Path, "error", out.MetadataErr.Error())
	}

	p.metrics.Count(metrics.FileOutcome, 1, metrics.Tag(metrics.TagState, out.State))
	p.metrics.Timing(metrics.PipelineDuration, out.Duration, metrics.Tag(metrics.TagState, out.State))

	if p.broker != nil {
		p.broker.Publish(pubsub.OutcomeEvent, out)
	}
}

// Flush persists the fingerprint cache. It always writes, even when nothing
// changed since the last flush.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flush(ctx)
}

// FlushIfDirty persists the cache only when a run advanced it.
func (p *Pipeline) FlushIfDirty(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.detector.Dirty() {
		return nil
	}
	return p.flush(ctx)
}

func (p *Pipeline) flush(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	entries := p.detector.Entries()
	if err := p.cache.Save(ctx, entries); err != nil {
		p.metrics.Count(metrics.CacheFlush, 1, metrics.Tag(metrics.TagResult, "error"))
		return fmt.Errorf("saving sync cache: %w", err)
	}
	p.detector.MarkClean()
	p.metrics.Count(metrics.CacheFlush, 1, metrics.Tag(metrics.TagResult, "ok"))
	log.Debug(log.CatCache, "sync cache saved", "entries", len(entries))
	if p.broker != nil {
		p.broker.Publish(pubsub.FlushEvent, Outcome{})
	}
	return nil
}
