package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/flowsync/internal/definition"
	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/metrics"
	"github.com/zjrosen/flowsync/internal/tracing"
)

var (
	// ErrStore is matched by errors.Is for every *StoreError.
	ErrStore = errors.New("metadata store failure")
	// ErrNotFound is returned by Store.Get for unknown keys.
	ErrNotFound = errors.New("metadata record not found")
)

// StoreError wraps a failed upsert. It is logged, never escalated.
type StoreError struct {
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("upserting metadata %s: %v", e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// Store is a key-upsert document store. Upsert overwrites on key collision.
type Store interface {
	Upsert(ctx context.Context, p Projection) error
	Get(ctx context.Context, key string) (Projection, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Publisher projects definitions and upserts them into a Store.
type Publisher struct {
	store   Store
	timeout time.Duration
	metrics metrics.Recorder
	tracer  trace.Tracer
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithTimeout bounds each upsert. Non-positive values keep the default.
func WithTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) PublisherOption {
	return func(p *Publisher) { p.tracer = t }
}

// NewPublisher returns a Publisher writing to store. A nil store disables
// publishing; Enabled reports false and Publish is a no-op.
func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, timeout: 10 * time.Second, metrics: metrics.Discard}
	for _, opt := range opts {
		opt(p)
	}
	p.tracer = tracing.OrNoop(p.tracer)
	return p
}

// Enabled reports whether a store is configured.
func (p *Publisher) Enabled() bool {
	return p != nil && p.store != nil
}

// Publish derives the projection of def and upserts it. Errors are
// *StoreError values for the caller to log.
func (p *Publisher) Publish(ctx context.Context, def *definition.Definition, path string) error {
	if !p.Enabled() {
		return nil
	}
	proj := Project(def, path)

	ctx, span := tracing.Start(ctx, p.tracer, tracing.SpanMetadataUpsert,
		attribute.String(tracing.AttrMetadataKey, proj.Key))
	defer span.End()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.store.Upsert(ctx, proj); err != nil {
		serr := &StoreError{Key: proj.Key, Err: err}
		tracing.Fail(span, serr)
		p.metrics.Count(metrics.MetadataUpsert, 1, metrics.Tag(metrics.TagResult, "error"))
		return serr
	}

	p.metrics.Count(metrics.MetadataUpsert, 1, metrics.Tag(metrics.TagResult, "ok"))
	log.Debug(log.CatMetadata, "metadata upserted", "key", proj.Key, "path", path)
	return nil
}

// Close releases the underlying store.
func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.store.Close()
}
